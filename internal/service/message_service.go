package service

import (
	"context"
	"errors"
	"strings"

	"genui-relay/internal/domain"
	"genui-relay/internal/repository"
)

// MessageService expone el timeline de un thread y la reescritura de
// contenido que usan los widgets para persistir su estado.
type MessageService struct {
	messages repository.MessageRepository
	threads  *ThreadService
}

var (
	ErrMessageNotFound     = errors.New("message not found")
	ErrMessageInvalidInput = errors.New("message invalid input")
	ErrMessageNotEditable  = errors.New("message not editable")
)

func NewMessageService(messages repository.MessageRepository, threads *ThreadService) *MessageService {
	return &MessageService{messages: messages, threads: threads}
}

func (s *MessageService) ListByThread(ctx context.Context, threadID, userID string) ([]domain.Message, error) {
	if s == nil || s.messages == nil {
		return nil, errors.New("message service not configured")
	}
	if _, err := s.threads.GetOwned(ctx, threadID, userID); err != nil {
		return nil, err
	}
	messages, err := s.messages.ListByThreadID(ctx, threadID)
	if err != nil {
		return nil, err
	}
	if messages == nil {
		messages = []domain.Message{}
	}
	return messages, nil
}

// UpdateContent reescribe in place el contenido de un mensaje assistant.
// Solo cambian content y updated_at; la posición en el timeline queda
// intacta.
func (s *MessageService) UpdateContent(ctx context.Context, threadID, messageID, userID, content string) (domain.Message, error) {
	if s == nil || s.messages == nil {
		return domain.Message{}, errors.New("message service not configured")
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return domain.Message{}, ErrMessageInvalidInput
	}

	if _, err := s.threads.GetOwned(ctx, threadID, userID); err != nil {
		return domain.Message{}, err
	}

	msg, err := s.messages.GetByID(ctx, strings.TrimSpace(messageID))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.Message{}, ErrMessageNotFound
		}
		return domain.Message{}, err
	}
	if msg.ThreadID != threadID {
		return domain.Message{}, ErrMessageNotFound
	}
	if msg.Role != domain.RoleAssistant {
		return domain.Message{}, ErrMessageNotEditable
	}

	if err := s.messages.UpdateContent(ctx, msg.ID, content); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.Message{}, ErrMessageNotFound
		}
		return domain.Message{}, err
	}
	updated, err := s.messages.GetByID(ctx, msg.ID)
	if err != nil {
		return domain.Message{}, err
	}
	return updated, nil
}
