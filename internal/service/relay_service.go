package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"genui-relay/internal/c1"
	"genui-relay/internal/domain"
	"genui-relay/internal/metrics"
	"genui-relay/internal/repository"
)

var (
	ErrEmptyPrompt   = errors.New("empty prompt")
	ErrPromptInvalid = errors.New("prompt invalid")
)

// TurnInput es la entrada de un turno de relay.
type TurnInput struct {
	UserID     string
	ThreadID   string
	ResponseID string
	Model      string
	Prompt     domain.Message
}

// StreamSink recibe los bytes crudos del upstream en el orden en que
// llegan. Devolver error aborta el stream.
type StreamSink interface {
	WriteChunk(chunk []byte) error
}

// RelayService implementa el turno de chat: carga el historial del
// thread, reenvía todo al endpoint de completions y espeja el stream
// al cliente. Recién cuando el upstream termina limpio persiste el par
// user/assistant; un turno fallido no deja mensajes.
type RelayService struct {
	threads  *ThreadService
	messages repository.MessageRepository
	client   c1.Client
	cache    ResponseCache
	search   *SearchService
	logger   *zap.Logger
}

func NewRelayService(
	threads *ThreadService,
	messages repository.MessageRepository,
	client c1.Client,
	cache ResponseCache,
	search *SearchService,
	logger *zap.Logger,
) *RelayService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RelayService{
		threads:  threads,
		messages: messages,
		client:   client,
		cache:    cache,
		search:   search,
		logger:   logger,
	}
}

// StreamTurn ejecuta un turno streaming espejando los bytes del
// upstream en el sink y devuelve el mensaje assistant ya persistido.
func (s *RelayService) StreamTurn(ctx context.Context, input TurnInput, sink StreamSink) (domain.Message, error) {
	if s == nil || s.messages == nil || s.client == nil {
		return domain.Message{}, errors.New("relay service not configured")
	}
	prompt, err := normalizePrompt(input.Prompt)
	if err != nil {
		return domain.Message{}, err
	}

	thread, created, req, err := s.prepareTurn(ctx, input, prompt)
	if err != nil {
		return domain.Message{}, err
	}

	metrics.ActiveStreams.Inc()
	defer metrics.ActiveStreams.Dec()

	startedAt := time.Now().UTC()
	handler := &relaySinkHandler{sink: sink, started: startedAt}
	resp, err := s.client.Stream(ctx, req, handler)
	if err != nil {
		metrics.RelayTurns.WithLabelValues(turnOutcome(ctx, err)).Inc()
		return domain.Message{}, fmt.Errorf("relay stream: %w", err)
	}

	return s.finishTurn(ctx, thread, created, prompt, startedAt, input, resp)
}

// CompleteTurn ejecuta un turno no streaming y devuelve el mensaje
// assistant persistido.
func (s *RelayService) CompleteTurn(ctx context.Context, input TurnInput) (domain.Message, error) {
	if s == nil || s.messages == nil || s.client == nil {
		return domain.Message{}, errors.New("relay service not configured")
	}
	prompt, err := normalizePrompt(input.Prompt)
	if err != nil {
		return domain.Message{}, err
	}

	thread, created, req, err := s.prepareTurn(ctx, input, prompt)
	if err != nil {
		return domain.Message{}, err
	}

	startedAt := time.Now().UTC()
	resp, err := s.client.Complete(ctx, req)
	if err != nil {
		metrics.RelayTurns.WithLabelValues(turnOutcome(ctx, err)).Inc()
		return domain.Message{}, fmt.Errorf("relay complete: %w", err)
	}

	return s.finishTurn(ctx, thread, created, prompt, startedAt, input, resp)
}

// prepareTurn resuelve el thread, carga el historial y arma el request
// de completions con el historial más el prompt nuevo al final.
func (s *RelayService) prepareTurn(ctx context.Context, input TurnInput, prompt domain.Message) (domain.Thread, bool, c1.Request, error) {
	thread, created, err := s.threads.EnsureOwned(ctx, input.ThreadID, input.UserID)
	if err != nil {
		return domain.Thread{}, false, c1.Request{}, err
	}

	history, err := s.messages.ListByThreadID(ctx, thread.ID)
	if err != nil {
		return domain.Thread{}, false, c1.Request{}, err
	}

	wire := make([]c1.ChatMessage, 0, len(history)+1)
	for _, msg := range history {
		wire = append(wire, c1.ChatMessage{Role: msg.Role, Content: msg.Content})
	}
	wire = append(wire, c1.ChatMessage{Role: prompt.Role, Content: prompt.Content})

	req := c1.Request{
		Model:    input.Model,
		Messages: wire,
		Metadata: &c1.Metadata{
			ThreadID:   thread.ID,
			ResponseID: strings.TrimSpace(input.ResponseID),
		},
	}
	return thread, created, req, nil
}

// finishTurn persiste el par user/assistant del turno completado,
// alimenta el cache de respuestas y dispara el trabajo asincrónico
// (título del thread nuevo e indexado de embeddings).
func (s *RelayService) finishTurn(
	ctx context.Context,
	thread domain.Thread,
	created bool,
	prompt domain.Message,
	startedAt time.Time,
	input TurnInput,
	resp c1.Response,
) (domain.Message, error) {
	userMsg := prompt
	userMsg.ThreadID = thread.ID
	userMsg.UserID = thread.UserID
	if strings.TrimSpace(userMsg.ID) == "" {
		userMsg.ID = uuid.NewString()
	}
	userMsg.CreatedAt = startedAt
	userMsg.UpdatedAt = startedAt

	now := time.Now().UTC()
	assistantMsg := domain.Message{
		ID:        uuid.NewString(),
		ThreadID:  thread.ID,
		UserID:    thread.UserID,
		Role:      domain.RoleAssistant,
		Content:   resp.Content,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.messages.CreateTurn(ctx, userMsg, assistantMsg); err != nil {
		metrics.RelayTurns.WithLabelValues(metrics.OutcomeStoreError).Inc()
		return domain.Message{}, fmt.Errorf("persist turn: %w", err)
	}
	metrics.RelayTurns.WithLabelValues(metrics.OutcomeCompleted).Inc()

	if s.cache != nil && strings.TrimSpace(input.ResponseID) != "" {
		if err := s.cache.Put(ctx, CachedResponse{
			ResponseID: strings.TrimSpace(input.ResponseID),
			ThreadID:   thread.ID,
			MessageID:  assistantMsg.ID,
			Content:    assistantMsg.Content,
			Model:      resp.Model,
			CreatedAt:  assistantMsg.CreatedAt,
		}); err != nil {
			s.logger.Warn("response cache put failed", zap.Error(err), zap.String("response_id", input.ResponseID))
		}
	}

	// El trabajo posterior al turno no bloquea la respuesta al usuario.
	if created {
		go func(threadID, firstPrompt string) {
			genCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := s.threads.GenerateTitle(genCtx, threadID, firstPrompt); err != nil {
				s.logger.Warn("thread title generation failed", zap.Error(err), zap.String("thread_id", threadID))
			}
		}(thread.ID, userMsg.Content)
	}
	if s.search.Enabled() {
		go func(msgs ...domain.Message) {
			idxCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			for _, msg := range msgs {
				if err := s.search.IndexMessage(idxCtx, msg); err != nil {
					s.logger.Warn("message indexing failed", zap.Error(err), zap.String("message_id", msg.ID))
				}
			}
		}(userMsg, assistantMsg)
	}

	return assistantMsg, nil
}

// normalizePrompt valida el mensaje entrante. Solo se aceptan prompts
// user-role; el role vacío se asume user.
func normalizePrompt(prompt domain.Message) (domain.Message, error) {
	prompt.Content = strings.TrimSpace(prompt.Content)
	if prompt.Content == "" {
		return domain.Message{}, ErrEmptyPrompt
	}
	prompt.Role = strings.TrimSpace(prompt.Role)
	if prompt.Role == "" {
		prompt.Role = domain.RoleUser
	}
	if prompt.Role != domain.RoleUser {
		return domain.Message{}, ErrPromptInvalid
	}
	prompt.ID = strings.TrimSpace(prompt.ID)
	return prompt, nil
}

func turnOutcome(ctx context.Context, err error) string {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		return metrics.OutcomeAborted
	}
	return metrics.OutcomeUpstreamError
}

// relaySinkHandler adapta el StreamSink al handler del cliente c1 y
// registra las métricas de streaming en el camino.
type relaySinkHandler struct {
	sink     StreamSink
	started  time.Time
	sawFirst bool
}

func (h *relaySinkHandler) OnRaw(chunk []byte) error {
	if !h.sawFirst {
		h.sawFirst = true
		metrics.UpstreamFirstByteSeconds.Observe(time.Since(h.started).Seconds())
	}
	metrics.StreamBytesTotal.Add(float64(len(chunk)))
	if h.sink == nil {
		return nil
	}
	return h.sink.WriteChunk(chunk)
}

func (h *relaySinkHandler) OnDelta(string) {}
