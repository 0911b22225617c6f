package service

import (
	"context"
	"testing"
	"time"
)

func TestMemoryResponseCachePutGet(t *testing.T) {
	cache := NewMemoryResponseCache(time.Minute)
	ctx := context.Background()

	resp := CachedResponse{
		ResponseID: "r1",
		ThreadID:   "t1",
		MessageID:  "m1",
		Content:    "<dsl>",
		Model:      "c1-test",
		CreatedAt:  time.Now().UTC(),
	}
	if err := cache.Put(ctx, resp); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	got, found, err := cache.Get(ctx, "r1")
	if err != nil || !found {
		t.Fatalf("expected hit, found=%v err=%v", found, err)
	}
	if got.Content != "<dsl>" || got.ThreadID != "t1" {
		t.Fatalf("unexpected cached response: %+v", got)
	}

	if _, found, _ := cache.Get(ctx, "nope"); found {
		t.Fatalf("expected miss for unknown id")
	}
	if _, found, _ := cache.Get(ctx, "  "); found {
		t.Fatalf("expected miss for blank id")
	}
}

func TestMemoryResponseCacheExpiry(t *testing.T) {
	cache := NewMemoryResponseCache(5 * time.Millisecond)
	ctx := context.Background()

	if err := cache.Put(ctx, CachedResponse{ResponseID: "r1", Content: "x"}); err != nil {
		t.Fatalf("put: %v", err)
	}
	time.Sleep(15 * time.Millisecond)

	if _, found, _ := cache.Get(ctx, "r1"); found {
		t.Fatalf("expected expired entry to miss")
	}
}

func TestMemoryResponseCacheIgnoresBlankID(t *testing.T) {
	cache := NewMemoryResponseCache(time.Minute)
	if err := cache.Put(context.Background(), CachedResponse{ResponseID: "  ", Content: "x"}); err != nil {
		t.Fatalf("expected nil for blank id, got %v", err)
	}
}
