package service

import (
	"context"
	"errors"
	"strings"

	pgvector "github.com/pgvector/pgvector-go"
	"go.uber.org/zap"

	"genui-relay/internal/c1"
	"genui-relay/internal/domain"
	"genui-relay/internal/repository"
)

// ErrSearchNotConfigured se devuelve cuando el servicio no tiene
// backend de embeddings (driver pebble o modelo sin configurar).
var ErrSearchNotConfigured = errors.New("search not configured")

// SearchHit es un mensaje encontrado por similitud semántica.
type SearchHit struct {
	ThreadID  string  `json:"thread_id"`
	MessageID string  `json:"message_id"`
	Content   string  `json:"content"`
	Distance  float64 `json:"distance"`
}

// SearchService indexa mensajes como embeddings y resuelve búsquedas
// semánticas sobre los threads del usuario.
type SearchService struct {
	client     c1.Client
	embeddings repository.EmbeddingRepository
	logger     *zap.Logger
}

func NewSearchService(client c1.Client, embeddings repository.EmbeddingRepository, logger *zap.Logger) *SearchService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SearchService{client: client, embeddings: embeddings, logger: logger}
}

// Enabled indica si la búsqueda tiene backend disponible.
func (s *SearchService) Enabled() bool {
	return s != nil && s.client != nil && s.embeddings != nil
}

// IndexMessage calcula y persiste el embedding de un mensaje. Es
// best-effort: el turno ya quedó persistido cuando esto corre.
func (s *SearchService) IndexMessage(ctx context.Context, msg domain.Message) error {
	if !s.Enabled() {
		return ErrSearchNotConfigured
	}
	content := strings.TrimSpace(msg.Content)
	if content == "" {
		return nil
	}

	vec, err := s.client.Embed(ctx, content)
	if err != nil {
		if errors.Is(err, c1.ErrNotConfigured) {
			return ErrSearchNotConfigured
		}
		return err
	}
	return s.embeddings.Upsert(ctx, msg.ID, msg.ThreadID, msg.UserID, pgvector.NewVector(vec))
}

// Search embebe el query y devuelve los k mensajes más cercanos del
// usuario.
func (s *SearchService) Search(ctx context.Context, userID, query string, k int) ([]SearchHit, error) {
	if !s.Enabled() {
		return nil, ErrSearchNotConfigured
	}
	userID = strings.TrimSpace(userID)
	query = strings.TrimSpace(query)
	if userID == "" || query == "" {
		return []SearchHit{}, nil
	}

	vec, err := s.client.Embed(ctx, query)
	if err != nil {
		if errors.Is(err, c1.ErrNotConfigured) {
			return nil, ErrSearchNotConfigured
		}
		return nil, err
	}
	rows, err := s.embeddings.SearchByUser(ctx, userID, pgvector.NewVector(vec), k)
	if err != nil {
		return nil, err
	}

	hits := make([]SearchHit, 0, len(rows))
	for _, row := range rows {
		hits = append(hits, SearchHit{
			ThreadID:  row.ThreadID,
			MessageID: row.MessageID,
			Content:   row.Content,
			Distance:  row.Distance,
		})
	}
	return hits, nil
}
