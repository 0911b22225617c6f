package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cockroachdb/pebble"

	"genui-relay/internal/domain"
)

// PebbleMessageRepository implementa MessageRepository sobre pebble.
// Clave de fila: thread:<threadID>:msg:<unix_nano_padded>-<seq>, de modo
// que el orden de claves es el orden de inserción.
type PebbleMessageRepository struct {
	store *PebbleStore
}

func NewPebbleMessageRepository(store *PebbleStore) *PebbleMessageRepository {
	return &PebbleMessageRepository{store: store}
}

func (r *PebbleMessageRepository) rowKey(threadID string) []byte {
	ts := time.Now().UTC().UnixNano()
	return []byte(fmt.Sprintf("thread:%s:msg:%020d-%06d", threadID, ts, r.store.nextSeq()))
}

func msgIDKey(id string) []byte {
	return []byte("msgid:" + id)
}

func (r *PebbleMessageRepository) Create(ctx context.Context, message domain.Message) error {
	b := r.store.db.NewBatch()
	defer b.Close()
	if err := r.appendToBatch(b, message); err != nil {
		return err
	}
	return b.Commit(pebble.Sync)
}

func (r *PebbleMessageRepository) CreateTurn(ctx context.Context, userMsg, assistantMsg domain.Message) error {
	b := r.store.db.NewBatch()
	defer b.Close()
	if err := r.appendToBatch(b, userMsg); err != nil {
		return err
	}
	if err := r.appendToBatch(b, assistantMsg); err != nil {
		return err
	}
	return b.Commit(pebble.Sync)
}

func (r *PebbleMessageRepository) appendToBatch(b *pebble.Batch, message domain.Message) error {
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}
	key := r.rowKey(message.ThreadID)
	if err := b.Set(key, data, nil); err != nil {
		return err
	}
	// Índice por ID para lookups y reescritura de contenido.
	return b.Set(msgIDKey(message.ID), key, nil)
}

func (r *PebbleMessageRepository) GetByID(ctx context.Context, id string) (domain.Message, error) {
	rowKey, err := r.store.get(msgIDKey(id))
	if err != nil {
		return domain.Message{}, err
	}
	data, err := r.store.get(rowKey)
	if err != nil {
		return domain.Message{}, err
	}
	var msg domain.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return domain.Message{}, err
	}
	return msg, nil
}

func (r *PebbleMessageRepository) ListByThreadID(ctx context.Context, threadID string) ([]domain.Message, error) {
	prefix := []byte("thread:" + threadID + ":msg:")
	var messages []domain.Message
	err := r.store.scanPrefix(prefix, func(_, value []byte) error {
		var msg domain.Message
		if err := json.Unmarshal(value, &msg); err != nil {
			return err
		}
		// Las claves de un thread cuyo id contiene ':' pueden caer bajo
		// este prefijo; la fila misma dice a qué thread pertenece.
		if msg.ThreadID != threadID {
			return nil
		}
		messages = append(messages, msg)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return messages, nil
}

func (r *PebbleMessageRepository) UpdateContent(ctx context.Context, id, content string) error {
	rowKey, err := r.store.get(msgIDKey(id))
	if err != nil {
		return err
	}
	data, err := r.store.get(rowKey)
	if err != nil {
		return err
	}
	var msg domain.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return err
	}

	// Reescritura in place: misma clave de fila, el orden del timeline
	// no cambia.
	msg.Content = content
	msg.UpdatedAt = time.Now().UTC()
	updated, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return r.store.set(rowKey, updated)
}
