package service

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// CachedResponse es el resultado de un turno completado, indexado por
// el responseId que mandó el cliente. Permite re-consultar la respuesta
// cuando el stream del browser se cortó después de completarse el turno.
type CachedResponse struct {
	ResponseID string    `json:"response_id"`
	ThreadID   string    `json:"thread_id"`
	MessageID  string    `json:"message_id"`
	Content    string    `json:"content"`
	Model      string    `json:"model"`
	CreatedAt  time.Time `json:"created_at"`
}

// ResponseCache guarda respuestas completadas con TTL.
type ResponseCache interface {
	Put(ctx context.Context, resp CachedResponse) error
	Get(ctx context.Context, responseID string) (CachedResponse, bool, error)
}

type memoryResponseCache struct {
	mu    sync.Mutex
	ttl   time.Duration
	items map[string]cachedEntry
}

type cachedEntry struct {
	resp      CachedResponse
	expiresAt time.Time
}

func NewMemoryResponseCache(ttl time.Duration) ResponseCache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &memoryResponseCache{
		ttl:   ttl,
		items: make(map[string]cachedEntry),
	}
}

func (c *memoryResponseCache) Put(ctx context.Context, resp CachedResponse) error {
	id := strings.TrimSpace(resp.ResponseID)
	if id == "" {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now().UTC()
	for key, entry := range c.items {
		if now.After(entry.expiresAt) {
			delete(c.items, key)
		}
	}
	c.items[id] = cachedEntry{resp: resp, expiresAt: now.Add(c.ttl)}
	return nil
}

func (c *memoryResponseCache) Get(ctx context.Context, responseID string) (CachedResponse, bool, error) {
	id := strings.TrimSpace(responseID)
	if id == "" {
		return CachedResponse{}, false, nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.items[id]
	if !ok {
		return CachedResponse{}, false, nil
	}
	if time.Now().UTC().After(entry.expiresAt) {
		delete(c.items, id)
		return CachedResponse{}, false, nil
	}
	return entry.resp, true, nil
}

type redisResponseCache struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

func NewRedisResponseCache(client *redis.Client, ttl time.Duration) ResponseCache {
	if client == nil {
		return nil
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &redisResponseCache{
		client: client,
		ttl:    ttl,
		prefix: "chat:resp:",
	}
}

func (c *redisResponseCache) Put(ctx context.Context, resp CachedResponse) error {
	id := strings.TrimSpace(resp.ResponseID)
	if id == "" {
		return nil
	}
	data, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.prefix+id, data, c.ttl).Err()
}

func (c *redisResponseCache) Get(ctx context.Context, responseID string) (CachedResponse, bool, error) {
	id := strings.TrimSpace(responseID)
	if id == "" {
		return CachedResponse{}, false, nil
	}
	data, err := c.client.Get(ctx, c.prefix+id).Bytes()
	if err != nil {
		if err == redis.Nil {
			return CachedResponse{}, false, nil
		}
		return CachedResponse{}, false, err
	}
	var resp CachedResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return CachedResponse{}, false, err
	}
	return resp, true, nil
}
