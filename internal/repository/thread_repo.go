package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"genui-relay/internal/domain"
)

// ThreadRepository define el contrato de persistencia para threads.
type ThreadRepository interface {
	Create(ctx context.Context, thread domain.Thread) error
	GetByID(ctx context.Context, id string) (domain.Thread, error)
	ListByUserID(ctx context.Context, userID string) ([]domain.Thread, error)
	UpdateTitle(ctx context.Context, id, title string) error
	SoftDelete(ctx context.Context, id string) error
}

// PgThreadRepository implementa ThreadRepository usando pgxpool.
type PgThreadRepository struct {
	pool *pgxpool.Pool
}

func NewPgThreadRepository(pool *pgxpool.Pool) *PgThreadRepository {
	return &PgThreadRepository{pool: pool}
}

func (r *PgThreadRepository) Create(ctx context.Context, thread domain.Thread) error {
	const query = `
		INSERT INTO threads (id, user_id, title, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := r.pool.Exec(ctx, query,
		thread.ID,
		thread.UserID,
		thread.Title,
		thread.CreatedAt,
		thread.UpdatedAt,
	)
	return err
}

func (r *PgThreadRepository) GetByID(ctx context.Context, id string) (domain.Thread, error) {
	const query = `
		SELECT id, user_id, title, created_at, updated_at, deleted_at
		FROM threads
		WHERE id = $1 AND deleted_at IS NULL
	`
	var t domain.Thread
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&t.ID,
		&t.UserID,
		&t.Title,
		&t.CreatedAt,
		&t.UpdatedAt,
		&t.DeletedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Thread{}, ErrNotFound
	}
	return t, err
}

func (r *PgThreadRepository) ListByUserID(ctx context.Context, userID string) ([]domain.Thread, error) {
	const query = `
		SELECT id, user_id, title, created_at, updated_at, deleted_at
		FROM threads
		WHERE user_id = $1 AND deleted_at IS NULL
		ORDER BY updated_at DESC
	`
	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanThreads(rows)
}

func (r *PgThreadRepository) UpdateTitle(ctx context.Context, id, title string) error {
	const query = `
		UPDATE threads
		SET title = $2, updated_at = $3
		WHERE id = $1 AND deleted_at IS NULL
	`
	ct, err := r.pool.Exec(ctx, query, id, title, time.Now().UTC())
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PgThreadRepository) SoftDelete(ctx context.Context, id string) error {
	const query = `
		UPDATE threads
		SET deleted_at = $2, updated_at = $2
		WHERE id = $1 AND deleted_at IS NULL
	`
	ct, err := r.pool.Exec(ctx, query, id, time.Now().UTC())
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanThreads(rows pgxRows) ([]domain.Thread, error) {
	var threads []domain.Thread
	for rows.Next() {
		var t domain.Thread
		if err := rows.Scan(
			&t.ID,
			&t.UserID,
			&t.Title,
			&t.CreatedAt,
			&t.UpdatedAt,
			&t.DeletedAt,
		); err != nil {
			return nil, err
		}
		threads = append(threads, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return threads, nil
}
