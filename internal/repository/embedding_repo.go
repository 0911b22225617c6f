package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
)

// EmbeddingHit es un mensaje recuperado por similitud vectorial.
type EmbeddingHit struct {
	MessageID string
	ThreadID  string
	Content   string
	Distance  float64
}

// EmbeddingRepository indexa embeddings de mensajes para búsqueda
// semántica. Solo existe implementación Postgres (pgvector); con el
// driver pebble la búsqueda queda deshabilitada.
type EmbeddingRepository interface {
	Upsert(ctx context.Context, messageID, threadID, userID string, embedding pgvector.Vector) error
	SearchByUser(ctx context.Context, userID string, query pgvector.Vector, k int) ([]EmbeddingHit, error)
}

type PgEmbeddingRepository struct {
	pool *pgxpool.Pool
}

func NewPgEmbeddingRepository(pool *pgxpool.Pool) *PgEmbeddingRepository {
	return &PgEmbeddingRepository{pool: pool}
}

func (r *PgEmbeddingRepository) Upsert(ctx context.Context, messageID, threadID, userID string, embedding pgvector.Vector) error {
	const query = `
		INSERT INTO message_embeddings (message_id, thread_id, user_id, embedding, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (message_id) DO UPDATE SET embedding = EXCLUDED.embedding
	`
	_, err := r.pool.Exec(ctx, query,
		messageID,
		threadID,
		userID,
		embedding,
		time.Now().UTC(),
	)
	return err
}

func (r *PgEmbeddingRepository) SearchByUser(ctx context.Context, userID string, query pgvector.Vector, k int) ([]EmbeddingHit, error) {
	if k <= 0 {
		k = 5
	}
	const sql = `
		SELECT e.message_id, e.thread_id, m.content, e.embedding <=> $2 AS distance
		FROM message_embeddings e
		JOIN messages m ON m.id = e.message_id
		WHERE e.user_id = $1
		ORDER BY e.embedding <=> $2
		LIMIT $3
	`
	rows, err := r.pool.Query(ctx, sql, userID, query, k)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hits []EmbeddingHit
	for rows.Next() {
		var h EmbeddingHit
		if err := rows.Scan(&h.MessageID, &h.ThreadID, &h.Content, &h.Distance); err != nil {
			return nil, err
		}
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return hits, nil
}
