package repository

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/cockroachdb/pebble"

	"genui-relay/internal/domain"
)

// PebbleUserRepository implementa UserRepository sobre pebble.
type PebbleUserRepository struct {
	store *PebbleStore
}

func NewPebbleUserRepository(store *PebbleStore) *PebbleUserRepository {
	return &PebbleUserRepository{store: store}
}

func userKey(id string) []byte {
	return []byte("user:" + id)
}

func userEmailKey(email string) []byte {
	return []byte("useremail:" + strings.ToLower(strings.TrimSpace(email)))
}

func (r *PebbleUserRepository) Create(ctx context.Context, user domain.User) error {
	data, err := json.Marshal(user)
	if err != nil {
		return err
	}

	b := r.store.db.NewBatch()
	defer b.Close()
	if err := b.Set(userKey(user.ID), data, nil); err != nil {
		return err
	}
	if err := b.Set(userEmailKey(user.Email), []byte(user.ID), nil); err != nil {
		return err
	}
	return b.Commit(pebble.Sync)
}

func (r *PebbleUserRepository) GetByID(ctx context.Context, id string) (domain.User, error) {
	data, err := r.store.get(userKey(id))
	if err != nil {
		return domain.User{}, err
	}
	var u domain.User
	if err := json.Unmarshal(data, &u); err != nil {
		return domain.User{}, err
	}
	return u, nil
}

func (r *PebbleUserRepository) GetByEmail(ctx context.Context, email string) (domain.User, error) {
	id, err := r.store.get(userEmailKey(email))
	if err != nil {
		return domain.User{}, err
	}
	return r.GetByID(ctx, string(id))
}
