package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"genui-relay/internal/domain"
)

// MessageRepository define el contrato de persistencia para mensajes.
// El timeline es append-only: las filas nunca se borran y solo el
// contenido puede reescribirse in place.
type MessageRepository interface {
	Create(ctx context.Context, message domain.Message) error
	// CreateTurn persiste el par user/assistant de un turno completo en
	// una sola transacción.
	CreateTurn(ctx context.Context, userMsg, assistantMsg domain.Message) error
	GetByID(ctx context.Context, id string) (domain.Message, error)
	ListByThreadID(ctx context.Context, threadID string) ([]domain.Message, error)
	UpdateContent(ctx context.Context, id, content string) error
}

// PgMessageRepository implementa MessageRepository usando pgxpool.
type PgMessageRepository struct {
	pool *pgxpool.Pool
}

func NewPgMessageRepository(pool *pgxpool.Pool) *PgMessageRepository {
	return &PgMessageRepository{pool: pool}
}

const insertMessageQuery = `
	INSERT INTO messages (id, thread_id, user_id, role, content, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
`

func (r *PgMessageRepository) Create(ctx context.Context, message domain.Message) error {
	_, err := r.pool.Exec(ctx, insertMessageQuery,
		message.ID,
		message.ThreadID,
		message.UserID,
		message.Role,
		message.Content,
		message.CreatedAt,
		message.UpdatedAt,
	)
	return err
}

func (r *PgMessageRepository) CreateTurn(ctx context.Context, userMsg, assistantMsg domain.Message) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, msg := range []domain.Message{userMsg, assistantMsg} {
		if _, err := tx.Exec(ctx, insertMessageQuery,
			msg.ID,
			msg.ThreadID,
			msg.UserID,
			msg.Role,
			msg.Content,
			msg.CreatedAt,
			msg.UpdatedAt,
		); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (r *PgMessageRepository) GetByID(ctx context.Context, id string) (domain.Message, error) {
	const query = `
		SELECT id, thread_id, user_id, role, content, created_at, updated_at
		FROM messages
		WHERE id = $1
	`
	var msg domain.Message
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&msg.ID,
		&msg.ThreadID,
		&msg.UserID,
		&msg.Role,
		&msg.Content,
		&msg.CreatedAt,
		&msg.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Message{}, ErrNotFound
	}
	return msg, err
}

func (r *PgMessageRepository) ListByThreadID(ctx context.Context, threadID string) ([]domain.Message, error) {
	const query = `
		SELECT id, thread_id, user_id, role, content, created_at, updated_at
		FROM messages
		WHERE thread_id = $1
		ORDER BY created_at ASC, id ASC
	`
	rows, err := r.pool.Query(ctx, query, threadID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanMessages(rows)
}

func (r *PgMessageRepository) UpdateContent(ctx context.Context, id, content string) error {
	const query = `
		UPDATE messages
		SET content = $2, updated_at = $3
		WHERE id = $1
	`
	ct, err := r.pool.Exec(ctx, query, id, content, time.Now().UTC())
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanMessages(rows pgxRows) ([]domain.Message, error) {
	var messages []domain.Message
	for rows.Next() {
		var msg domain.Message
		if err := rows.Scan(
			&msg.ID,
			&msg.ThreadID,
			&msg.UserID,
			&msg.Role,
			&msg.Content,
			&msg.CreatedAt,
			&msg.UpdatedAt,
		); err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return messages, nil
}

// pgxRows is a minimal interface to allow scanning from pgx rows and
// simplify testing.
type pgxRows interface {
	Next() bool
	Scan(...interface{}) error
	Err() error
	Close()
}
