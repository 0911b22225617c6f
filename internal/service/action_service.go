package service

import (
	"context"
	"errors"
	"strings"

	"genui-relay/internal/domain"
)

// ErrActionInvalid indica un evento de acción sin tipo o sin texto.
var ErrActionInvalid = errors.New("action invalid")

// ActionService traduce interacciones con widgets renderizados en un
// turno de chat normal. El evento en sí nunca se persiste; solo el
// mensaje user-role que produce.
type ActionService struct {
	relay *RelayService
}

func NewActionService(relay *RelayService) *ActionService {
	return &ActionService{relay: relay}
}

// ActionInput es la entrada de un turno disparado por un widget.
type ActionInput struct {
	UserID     string
	ThreadID   string
	ResponseID string
	Model      string
	Event      domain.ActionEvent
}

// StreamAction valida el evento, lo convierte en mensaje y delega el
// turno streaming al relay.
func (s *ActionService) StreamAction(ctx context.Context, input ActionInput, sink StreamSink) (domain.Message, error) {
	turn, err := s.toTurn(input)
	if err != nil {
		return domain.Message{}, err
	}
	return s.relay.StreamTurn(ctx, turn, sink)
}

// CompleteAction es la variante no streaming de StreamAction.
func (s *ActionService) CompleteAction(ctx context.Context, input ActionInput) (domain.Message, error) {
	turn, err := s.toTurn(input)
	if err != nil {
		return domain.Message{}, err
	}
	return s.relay.CompleteTurn(ctx, turn)
}

func (s *ActionService) toTurn(input ActionInput) (TurnInput, error) {
	if s == nil || s.relay == nil {
		return TurnInput{}, errors.New("action service not configured")
	}
	event := input.Event
	if strings.TrimSpace(event.Type) == "" {
		return TurnInput{}, ErrActionInvalid
	}
	if strings.TrimSpace(event.LLMFriendly) == "" && strings.TrimSpace(event.HumanFriendly) == "" {
		return TurnInput{}, ErrActionInvalid
	}

	prompt := event.Message(strings.TrimSpace(input.ThreadID), strings.TrimSpace(input.UserID))
	return TurnInput{
		UserID:     input.UserID,
		ThreadID:   input.ThreadID,
		ResponseID: input.ResponseID,
		Model:      input.Model,
		Prompt:     prompt,
	}, nil
}
