package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"genui-relay/internal/c1"
	"genui-relay/internal/domain"
	"genui-relay/internal/repository"
)

// ThreadService coordina el ciclo de vida de los threads de conversación.
type ThreadService struct {
	threads repository.ThreadRepository
	client  c1.Client
}

var (
	ErrThreadNotFound     = errors.New("thread not found")
	ErrThreadInvalidInput = errors.New("thread invalid input")
)

const maxThreadIDLength = 128

func NewThreadService(threads repository.ThreadRepository, client c1.Client) *ThreadService {
	return &ThreadService{threads: threads, client: client}
}

func (s *ThreadService) Create(ctx context.Context, userID, title string) (domain.Thread, error) {
	if s == nil || s.threads == nil {
		return domain.Thread{}, errors.New("thread service not configured")
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.Thread{}, ErrThreadInvalidInput
	}

	now := time.Now().UTC()
	thread := domain.Thread{
		ID:        uuid.NewString(),
		UserID:    userID,
		Title:     strings.TrimSpace(title),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.threads.Create(ctx, thread); err != nil {
		return domain.Thread{}, err
	}
	return thread, nil
}

// GetOwned devuelve el thread solo si pertenece al usuario. Un thread
// ajeno se reporta igual que uno inexistente.
func (s *ThreadService) GetOwned(ctx context.Context, threadID, userID string) (domain.Thread, error) {
	if s == nil || s.threads == nil {
		return domain.Thread{}, errors.New("thread service not configured")
	}
	threadID = strings.TrimSpace(threadID)
	userID = strings.TrimSpace(userID)
	if threadID == "" || userID == "" {
		return domain.Thread{}, ErrThreadNotFound
	}
	thread, err := s.threads.GetByID(ctx, threadID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.Thread{}, ErrThreadNotFound
		}
		return domain.Thread{}, err
	}
	if thread.UserID != userID {
		return domain.Thread{}, ErrThreadNotFound
	}
	return thread, nil
}

// EnsureOwned resuelve el threadId que manda el cliente: lo devuelve si
// existe y es del usuario, o crea uno nuevo conservando el ID recibido.
// Devuelve true cuando el thread fue creado en esta llamada.
func (s *ThreadService) EnsureOwned(ctx context.Context, threadID, userID string) (domain.Thread, bool, error) {
	if s == nil || s.threads == nil {
		return domain.Thread{}, false, errors.New("thread service not configured")
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.Thread{}, false, ErrThreadInvalidInput
	}

	threadID = strings.TrimSpace(threadID)
	if len(threadID) > maxThreadIDLength || !validThreadID(threadID) {
		return domain.Thread{}, false, ErrThreadInvalidInput
	}
	if threadID == "" {
		threadID = uuid.NewString()
	} else {
		thread, err := s.threads.GetByID(ctx, threadID)
		switch {
		case err == nil:
			if thread.UserID != userID {
				return domain.Thread{}, false, ErrThreadNotFound
			}
			return thread, false, nil
		case !errors.Is(err, repository.ErrNotFound):
			return domain.Thread{}, false, err
		}
	}

	now := time.Now().UTC()
	thread := domain.Thread{
		ID:        threadID,
		UserID:    userID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.threads.Create(ctx, thread); err != nil {
		return domain.Thread{}, false, err
	}
	return thread, true, nil
}

// validThreadID acepta ids estilo uuid: letras, dígitos, guión y guión
// bajo. Un ':' u otro separador en el id se colaría en el esquema de
// claves del store pebble y mezclaría timelines de threads distintos.
func validThreadID(id string) bool {
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '-', r == '_':
		default:
			return false
		}
	}
	return true
}

func (s *ThreadService) List(ctx context.Context, userID string) ([]domain.Thread, error) {
	if s == nil || s.threads == nil {
		return nil, errors.New("thread service not configured")
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return []domain.Thread{}, nil
	}
	threads, err := s.threads.ListByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if threads == nil {
		threads = []domain.Thread{}
	}
	return threads, nil
}

func (s *ThreadService) Rename(ctx context.Context, threadID, userID, title string) (domain.Thread, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return domain.Thread{}, ErrThreadInvalidInput
	}
	thread, err := s.GetOwned(ctx, threadID, userID)
	if err != nil {
		return domain.Thread{}, err
	}
	if err := s.threads.UpdateTitle(ctx, thread.ID, title); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.Thread{}, ErrThreadNotFound
		}
		return domain.Thread{}, err
	}
	thread.Title = title
	thread.UpdatedAt = time.Now().UTC()
	return thread, nil
}

func (s *ThreadService) Delete(ctx context.Context, threadID, userID string) error {
	thread, err := s.GetOwned(ctx, threadID, userID)
	if err != nil {
		return err
	}
	if err := s.threads.SoftDelete(ctx, thread.ID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrThreadNotFound
		}
		return err
	}
	return nil
}

const titleInstruction = "Resume the following opening message as a conversation title of at most six words. Reply with the title only, no quotes."

// GenerateTitle pide al modelo un título corto para el thread a partir
// del primer prompt y lo persiste.
func (s *ThreadService) GenerateTitle(ctx context.Context, threadID, firstPrompt string) error {
	if s == nil || s.threads == nil {
		return errors.New("thread service not configured")
	}
	if s.client == nil {
		return nil
	}
	firstPrompt = strings.TrimSpace(firstPrompt)
	if firstPrompt == "" {
		return nil
	}

	resp, err := s.client.Complete(ctx, c1.Request{
		Messages: []c1.ChatMessage{
			{Role: domain.RoleSystem, Content: titleInstruction},
			{Role: domain.RoleUser, Content: firstPrompt},
		},
	})
	if err != nil {
		return err
	}

	title := sanitizeTitle(resp.Content)
	if title == "" {
		return nil
	}
	return s.threads.UpdateTitle(ctx, threadID, title)
}

func sanitizeTitle(raw string) string {
	title := strings.TrimSpace(raw)
	if idx := strings.IndexByte(title, '\n'); idx >= 0 {
		title = title[:idx]
	}
	title = strings.Trim(title, `"'`)
	title = strings.TrimSpace(title)
	if len(title) > 80 {
		title = strings.TrimSpace(title[:80])
	}
	return title
}
