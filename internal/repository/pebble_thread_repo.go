package repository

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/cockroachdb/pebble"

	"genui-relay/internal/domain"
)

// PebbleThreadRepository implementa ThreadRepository sobre pebble.
type PebbleThreadRepository struct {
	store *PebbleStore
}

func NewPebbleThreadRepository(store *PebbleStore) *PebbleThreadRepository {
	return &PebbleThreadRepository{store: store}
}

func threadMetaKey(id string) []byte {
	return []byte("thread:" + id + ":meta")
}

func userThreadKey(userID, threadID string) []byte {
	return []byte("userthread:" + userID + ":" + threadID)
}

func (r *PebbleThreadRepository) Create(ctx context.Context, thread domain.Thread) error {
	data, err := json.Marshal(thread)
	if err != nil {
		return err
	}

	b := r.store.db.NewBatch()
	defer b.Close()
	if err := b.Set(threadMetaKey(thread.ID), data, nil); err != nil {
		return err
	}
	if err := b.Set(userThreadKey(thread.UserID, thread.ID), nil, nil); err != nil {
		return err
	}
	return b.Commit(pebble.Sync)
}

func (r *PebbleThreadRepository) GetByID(ctx context.Context, id string) (domain.Thread, error) {
	data, err := r.store.get(threadMetaKey(id))
	if err != nil {
		return domain.Thread{}, err
	}
	var t domain.Thread
	if err := json.Unmarshal(data, &t); err != nil {
		return domain.Thread{}, err
	}
	if t.Deleted() {
		return domain.Thread{}, ErrNotFound
	}
	return t, nil
}

func (r *PebbleThreadRepository) ListByUserID(ctx context.Context, userID string) ([]domain.Thread, error) {
	prefix := []byte("userthread:" + userID + ":")
	var threads []domain.Thread
	err := r.store.scanPrefix(prefix, func(key, _ []byte) error {
		threadID := string(key[len(prefix):])
		t, err := r.GetByID(ctx, threadID)
		if err != nil {
			// Los threads borrados conservan su entrada en el índice.
			if err == ErrNotFound {
				return nil
			}
			return err
		}
		threads = append(threads, t)
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(threads, func(i, j int) bool {
		return threads[i].UpdatedAt.After(threads[j].UpdatedAt)
	})
	return threads, nil
}

func (r *PebbleThreadRepository) UpdateTitle(ctx context.Context, id, title string) error {
	t, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	t.Title = title
	t.UpdatedAt = time.Now().UTC()
	data, err := json.Marshal(t)
	if err != nil {
		return err
	}
	return r.store.set(threadMetaKey(id), data)
}

func (r *PebbleThreadRepository) SoftDelete(ctx context.Context, id string) error {
	t, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	t.DeletedAt = &now
	t.UpdatedAt = now
	data, err := json.Marshal(t)
	if err != nil {
		return err
	}
	return r.store.set(threadMetaKey(id), data)
}
