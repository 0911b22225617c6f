package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	pgvector "github.com/pgvector/pgvector-go"
	"go.uber.org/zap"

	"genui-relay/internal/c1"
	"genui-relay/internal/domain"
	"genui-relay/internal/repository"
	"genui-relay/internal/service"
)

func seedOwnedThread(f *apiFixture, id, userID string) {
	now := time.Now().UTC()
	f.threadRepo.threads[id] = domain.Thread{ID: id, UserID: userID, CreatedAt: now, UpdatedAt: now}
}

func TestThreadLifecycleEndpoints(t *testing.T) {
	f := newAPIFixture(t, &c1.MockClient{}, nil)

	w := f.do(http.MethodPost, "/threads", gin.H{"title": "Mi tema"}, f.token)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var created struct {
		Thread domain.Thread `json:"thread"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if created.Thread.ID == "" || created.Thread.Title != "Mi tema" {
		t.Fatalf("unexpected thread: %+v", created.Thread)
	}

	w = f.do(http.MethodGet, "/threads", nil, f.token)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	w = f.do(http.MethodPut, "/threads/"+created.Thread.ID, gin.H{"title": "Renombrado"}, f.token)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	w = f.do(http.MethodDelete, "/threads/"+created.Thread.ID, nil, f.token)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	w = f.do(http.MethodGet, "/threads/"+created.Thread.ID, nil, f.token)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", w.Code)
	}
}

func TestThreadOwnershipHidesForeignThreads(t *testing.T) {
	f := newAPIFixture(t, &c1.MockClient{}, nil)
	seedOwnedThread(f, "t-ajeno", "otro-usuario")

	for _, tc := range []struct {
		method, path string
		body         any
	}{
		{http.MethodGet, "/threads/t-ajeno", nil},
		{http.MethodPut, "/threads/t-ajeno", gin.H{"title": "x"}},
		{http.MethodDelete, "/threads/t-ajeno", nil},
		{http.MethodGet, "/threads/t-ajeno/messages", nil},
	} {
		w := f.do(tc.method, tc.path, tc.body, f.token)
		if w.Code != http.StatusNotFound {
			t.Fatalf("%s %s: expected 404, got %d", tc.method, tc.path, w.Code)
		}
	}
}

func TestMessageTimelineEndpoints(t *testing.T) {
	f := newAPIFixture(t, &c1.MockClient{}, nil)
	seedOwnedThread(f, "t1", "u1")
	now := time.Now().UTC()
	f.messageRepo.msgs = []domain.Message{
		{ID: "m1", ThreadID: "t1", UserID: "u1", Role: domain.RoleUser, Content: "hola", CreatedAt: now},
		{ID: "m2", ThreadID: "t1", UserID: "u1", Role: domain.RoleAssistant, Content: "<dsl v1>", CreatedAt: now},
	}

	w := f.do(http.MethodGet, "/threads/t1/messages", nil, f.token)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var listed struct {
		Messages []domain.Message `json:"messages"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &listed); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(listed.Messages) != 2 || listed.Messages[0].ID != "m1" {
		t.Fatalf("unexpected timeline: %+v", listed.Messages)
	}

	t.Run("widget state writeback", func(t *testing.T) {
		w := f.do(http.MethodPut, "/threads/t1/messages/m2", gin.H{"content": "<dsl v2>"}, f.token)
		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
		}
		if f.messageRepo.msgs[1].Content != "<dsl v2>" {
			t.Fatalf("message not rewritten: %+v", f.messageRepo.msgs[1])
		}
	})

	t.Run("user messages are read-only", func(t *testing.T) {
		w := f.do(http.MethodPut, "/threads/t1/messages/m1", gin.H{"content": "x"}, f.token)
		if w.Code != http.StatusConflict {
			t.Fatalf("expected 409, got %d", w.Code)
		}
	})
}

func TestSearchDisabledWithoutEmbeddings(t *testing.T) {
	f := newAPIFixture(t, &c1.MockClient{}, nil)

	w := f.do(http.MethodGet, "/threads/search?q=vacaciones", nil, f.token)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d: %s", w.Code, w.Body.String())
	}
}

type stubEmbeddingRepo struct{}

func (stubEmbeddingRepo) Upsert(context.Context, string, string, string, pgvector.Vector) error {
	return nil
}

func (stubEmbeddingRepo) SearchByUser(context.Context, string, pgvector.Vector, int) ([]repository.EmbeddingHit, error) {
	return nil, nil
}

func TestSearchUnconfiguredEmbeddingsModel(t *testing.T) {
	logger := zap.NewNop()
	jwtSvc := service.NewJWTService("test-secret", time.Minute, time.Hour)
	pair, err := jwtSvc.GeneratePair(domain.User{ID: "u1", Email: "ana@example.com"})
	if err != nil {
		t.Fatalf("token: %v", err)
	}

	// Repo de vectores presente pero cliente sin modelo de embeddings:
	// la búsqueda debe reportarse no disponible, no fallar con 500.
	client := &c1.MockClient{EmbedErr: c1.ErrNotConfigured}
	threadSvc := service.NewThreadService(&stubThreadRepo{threads: make(map[string]domain.Thread)}, nil)
	handler := NewThreadHandler(
		logger,
		threadSvc,
		service.NewMessageService(&stubMessageRepo{}, threadSvc),
		service.NewSearchService(client, stubEmbeddingRepo{}, logger),
	)

	r := gin.New()
	r.GET("/threads/search", JWTAuthMiddleware(jwtSvc), handler.Search)

	req := httptest.NewRequest(http.MethodGet, "/threads/search?q=vacaciones", nil)
	req.Header.Set("Authorization", "Bearer "+pair.AccessToken)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 with embeddings model unset, got %d: %s", w.Code, w.Body.String())
	}
}
