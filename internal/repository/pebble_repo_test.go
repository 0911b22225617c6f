package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"genui-relay/internal/domain"
)

func newTestStore(t *testing.T) *PebbleStore {
	t.Helper()
	store, err := OpenPebble(t.TempDir())
	if err != nil {
		t.Fatalf("open pebble: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestPebbleThreadRepositoryLifecycle(t *testing.T) {
	store := newTestStore(t)
	repo := NewPebbleThreadRepository(store)
	ctx := context.Background()

	base := time.Now().UTC()
	older := domain.Thread{ID: "t1", UserID: "u1", Title: "first", CreatedAt: base, UpdatedAt: base}
	newer := domain.Thread{ID: "t2", UserID: "u1", Title: "second", CreatedAt: base, UpdatedAt: base.Add(time.Minute)}
	foreign := domain.Thread{ID: "t3", UserID: "u2", Title: "other user", CreatedAt: base, UpdatedAt: base}

	for _, th := range []domain.Thread{older, newer, foreign} {
		if err := repo.Create(ctx, th); err != nil {
			t.Fatalf("create %s: %v", th.ID, err)
		}
	}

	got, err := repo.GetByID(ctx, "t1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Title != "first" || got.UserID != "u1" {
		t.Fatalf("unexpected thread: %+v", got)
	}

	list, err := repo.ListByUserID(ctx, "u1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 threads, got %d", len(list))
	}
	if list[0].ID != "t2" || list[1].ID != "t1" {
		t.Fatalf("expected most recently updated first, got %s,%s", list[0].ID, list[1].ID)
	}

	if err := repo.UpdateTitle(ctx, "t1", "renamed"); err != nil {
		t.Fatalf("update title: %v", err)
	}
	got, err = repo.GetByID(ctx, "t1")
	if err != nil {
		t.Fatalf("get after rename: %v", err)
	}
	if got.Title != "renamed" {
		t.Fatalf("expected renamed, got %q", got.Title)
	}
	if !got.UpdatedAt.After(base) {
		t.Fatalf("expected updated_at to move forward")
	}

	if err := repo.SoftDelete(ctx, "t1"); err != nil {
		t.Fatalf("soft delete: %v", err)
	}
	if _, err := repo.GetByID(ctx, "t1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	list, err = repo.ListByUserID(ctx, "u1")
	if err != nil {
		t.Fatalf("list after delete: %v", err)
	}
	if len(list) != 1 || list[0].ID != "t2" {
		t.Fatalf("deleted thread must not be listed: %+v", list)
	}

	if err := repo.UpdateTitle(ctx, "missing", "x"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing thread, got %v", err)
	}
}

func TestPebbleMessageRepositoryAppendOrder(t *testing.T) {
	store := newTestStore(t)
	repo := NewPebbleMessageRepository(store)
	ctx := context.Background()

	now := time.Now().UTC()
	userMsg := domain.Message{ID: "m1", ThreadID: "t1", UserID: "u1", Role: domain.RoleUser, Content: "hola", CreatedAt: now, UpdatedAt: now}
	asstMsg := domain.Message{ID: "m2", ThreadID: "t1", UserID: "u1", Role: domain.RoleAssistant, Content: "respuesta", CreatedAt: now, UpdatedAt: now}
	if err := repo.CreateTurn(ctx, userMsg, asstMsg); err != nil {
		t.Fatalf("create turn: %v", err)
	}

	followUp := domain.Message{ID: "m3", ThreadID: "t1", UserID: "u1", Role: domain.RoleUser, Content: "otra", CreatedAt: now, UpdatedAt: now}
	if err := repo.Create(ctx, followUp); err != nil {
		t.Fatalf("create: %v", err)
	}

	list, err := repo.ListByThreadID(ctx, "t1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(list))
	}
	for i, wantID := range []string{"m1", "m2", "m3"} {
		if list[i].ID != wantID {
			t.Fatalf("expected insertion order m1,m2,m3, got %v", []string{list[0].ID, list[1].ID, list[2].ID})
		}
	}

	got, err := repo.GetByID(ctx, "m2")
	if err != nil {
		t.Fatalf("get by id: %v", err)
	}
	if got.Content != "respuesta" {
		t.Fatalf("unexpected content %q", got.Content)
	}

	if err := repo.UpdateContent(ctx, "m2", "respuesta con estado de widget"); err != nil {
		t.Fatalf("update content: %v", err)
	}
	list, err = repo.ListByThreadID(ctx, "t1")
	if err != nil {
		t.Fatalf("list after update: %v", err)
	}
	if list[1].ID != "m2" || list[1].Content != "respuesta con estado de widget" {
		t.Fatalf("in place rewrite must keep position: %+v", list[1])
	}
	if !list[1].UpdatedAt.After(now) {
		t.Fatalf("expected updated_at to move forward")
	}
	if !list[1].CreatedAt.Equal(userMsg.CreatedAt) {
		t.Fatalf("created_at must not change on rewrite")
	}

	if _, err := repo.GetByID(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPebbleMessageRepositoryIsolatesThreads(t *testing.T) {
	store := newTestStore(t)
	repo := NewPebbleMessageRepository(store)
	ctx := context.Background()

	now := time.Now().UTC()
	if err := repo.Create(ctx, domain.Message{ID: "a", ThreadID: "t1", Role: domain.RoleUser, Content: "x", CreatedAt: now, UpdatedAt: now}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := repo.Create(ctx, domain.Message{ID: "b", ThreadID: "t10", Role: domain.RoleUser, Content: "y", CreatedAt: now, UpdatedAt: now}); err != nil {
		t.Fatalf("create: %v", err)
	}

	list, err := repo.ListByThreadID(ctx, "t1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 || list[0].ID != "a" {
		t.Fatalf("prefix scan leaked across threads: %+v", list)
	}
}

func TestPebbleMessageRepositoryIgnoresColonThreadIDs(t *testing.T) {
	store := newTestStore(t)
	threads := NewPebbleThreadRepository(store)
	repo := NewPebbleMessageRepository(store)
	ctx := context.Background()

	now := time.Now().UTC()
	if err := repo.Create(ctx, domain.Message{ID: "a", ThreadID: "t1", UserID: "victim", Role: domain.RoleUser, Content: "x", CreatedAt: now, UpdatedAt: now}); err != nil {
		t.Fatalf("create: %v", err)
	}

	// Un thread cuyo id imita el formato de las claves de fila cae,
	// junto con sus mensajes, bajo el prefijo de scan de "t1".
	hostile := "t1:msg:00000000000000000000-000000"
	if err := threads.Create(ctx, domain.Thread{ID: hostile, UserID: "intruder", CreatedAt: now, UpdatedAt: now}); err != nil {
		t.Fatalf("create thread: %v", err)
	}
	if err := repo.Create(ctx, domain.Message{ID: "b", ThreadID: hostile, UserID: "intruder", Role: domain.RoleUser, Content: "y", CreatedAt: now, UpdatedAt: now}); err != nil {
		t.Fatalf("create: %v", err)
	}

	list, err := repo.ListByThreadID(ctx, "t1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 || list[0].ID != "a" || list[0].UserID != "victim" {
		t.Fatalf("timeline contains foreign rows: %+v", list)
	}
}

func TestPebbleUserRepository(t *testing.T) {
	store := newTestStore(t)
	repo := NewPebbleUserRepository(store)
	ctx := context.Background()

	user := domain.User{ID: "u1", Email: "user@example.com", DisplayName: "User", PasswordHash: "hash", CreatedAt: time.Now().UTC()}
	if err := repo.Create(ctx, user); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := repo.GetByID(ctx, "u1")
	if err != nil {
		t.Fatalf("get by id: %v", err)
	}
	if got.Email != user.Email || got.PasswordHash != "hash" {
		t.Fatalf("unexpected user: %+v", got)
	}

	got, err = repo.GetByEmail(ctx, "USER@example.com")
	if err != nil {
		t.Fatalf("get by email: %v", err)
	}
	if got.ID != "u1" {
		t.Fatalf("expected u1, got %s", got.ID)
	}

	if _, err := repo.GetByEmail(ctx, "nobody@example.com"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
