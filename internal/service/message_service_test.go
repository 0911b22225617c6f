package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"genui-relay/internal/domain"
)

func newMessageFixture() (*MessageService, *mockThreadRepo, *mockMessageRepo) {
	threadRepo := newMockThreadRepo()
	messageRepo := &mockMessageRepo{}
	threads := NewThreadService(threadRepo, nil)
	return NewMessageService(messageRepo, threads), threadRepo, messageRepo
}

func seedThread(repo *mockThreadRepo, id, userID string) {
	now := time.Now().UTC()
	repo.threads[id] = domain.Thread{ID: id, UserID: userID, CreatedAt: now, UpdatedAt: now}
}

func TestMessageServiceListByThreadChecksOwnership(t *testing.T) {
	svc, threadRepo, messageRepo := newMessageFixture()
	seedThread(threadRepo, "t1", "u1")
	messageRepo.msgs = []domain.Message{
		{ID: "m1", ThreadID: "t1", Role: domain.RoleUser, Content: "hola"},
		{ID: "m2", ThreadID: "t1", Role: domain.RoleAssistant, Content: "respuesta"},
		{ID: "m3", ThreadID: "t2", Role: domain.RoleUser, Content: "otro thread"},
	}

	msgs, err := svc.ListByThread(context.Background(), "t1", "u1")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(msgs) != 2 || msgs[0].ID != "m1" || msgs[1].ID != "m2" {
		t.Fatalf("unexpected timeline: %+v", msgs)
	}

	if _, err := svc.ListByThread(context.Background(), "t1", "u2"); !errors.Is(err, ErrThreadNotFound) {
		t.Fatalf("foreign thread must look like missing, got %v", err)
	}
}

func TestMessageServiceUpdateContent(t *testing.T) {
	svc, threadRepo, messageRepo := newMessageFixture()
	seedThread(threadRepo, "t1", "u1")
	messageRepo.msgs = []domain.Message{
		{ID: "m1", ThreadID: "t1", Role: domain.RoleUser, Content: "hola"},
		{ID: "m2", ThreadID: "t1", Role: domain.RoleAssistant, Content: "<dsl v1>"},
		{ID: "m3", ThreadID: "t2", Role: domain.RoleAssistant, Content: "ajeno"},
	}

	t.Run("rewrites assistant content in place", func(t *testing.T) {
		updated, err := svc.UpdateContent(context.Background(), "t1", "m2", "u1", "<dsl v2>")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if updated.Content != "<dsl v2>" || updated.ID != "m2" {
			t.Fatalf("unexpected update: %+v", updated)
		}
		// La posición en el timeline no cambia.
		if messageRepo.msgs[1].ID != "m2" || messageRepo.msgs[1].Content != "<dsl v2>" {
			t.Fatalf("message moved or not rewritten: %+v", messageRepo.msgs)
		}
	})

	t.Run("user messages are not editable", func(t *testing.T) {
		if _, err := svc.UpdateContent(context.Background(), "t1", "m1", "u1", "x"); !errors.Is(err, ErrMessageNotEditable) {
			t.Fatalf("expected ErrMessageNotEditable, got %v", err)
		}
	})

	t.Run("message from another thread is missing", func(t *testing.T) {
		if _, err := svc.UpdateContent(context.Background(), "t1", "m3", "u1", "x"); !errors.Is(err, ErrMessageNotFound) {
			t.Fatalf("expected ErrMessageNotFound, got %v", err)
		}
	})

	t.Run("blank content rejected", func(t *testing.T) {
		if _, err := svc.UpdateContent(context.Background(), "t1", "m2", "u1", "  "); !errors.Is(err, ErrMessageInvalidInput) {
			t.Fatalf("expected ErrMessageInvalidInput, got %v", err)
		}
	})

	t.Run("unknown message", func(t *testing.T) {
		if _, err := svc.UpdateContent(context.Background(), "t1", "nope", "u1", "x"); !errors.Is(err, ErrMessageNotFound) {
			t.Fatalf("expected ErrMessageNotFound, got %v", err)
		}
	})
}
