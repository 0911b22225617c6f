package repository

import (
	"bytes"
	"errors"
	"sync/atomic"

	"github.com/cockroachdb/pebble"
)

// PebbleStore es el backend embebido para despliegues sin Postgres.
// Todos los repos pebble comparten el mismo handle.
type PebbleStore struct {
	db  *pebble.DB
	seq uint64
}

// OpenPebble abre (o crea) la base pebble en el path dado.
func OpenPebble(path string) (*PebbleStore, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, err
	}
	return &PebbleStore{db: db}, nil
}

func (s *PebbleStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// nextSeq desempata mensajes escritos en el mismo nanosegundo.
func (s *PebbleStore) nextSeq() uint64 {
	return atomic.AddUint64(&s.seq, 1)
}

// get devuelve una copia del valor. pebble.ErrNotFound se traduce al
// sentinel del paquete.
func (s *PebbleStore) get(key []byte) ([]byte, error) {
	v, closer, err := s.db.Get(key)
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	out := append([]byte(nil), v...)
	if closer != nil {
		closer.Close()
	}
	return out, nil
}

func (s *PebbleStore) set(key, value []byte) error {
	return s.db.Set(key, value, pebble.Sync)
}

// scanPrefix recorre las claves bajo prefix en orden y entrega copias
// de clave y valor al callback.
func (s *PebbleStore) scanPrefix(prefix []byte, fn func(key, value []byte) error) error {
	iter, err := s.db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		k := append([]byte(nil), iter.Key()...)
		v := append([]byte(nil), iter.Value()...)
		if err := fn(k, v); err != nil {
			return err
		}
	}
	return iter.Error()
}
