package cache

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"tessera/api/internal/store"
)

func testCache(t *testing.T) (*BlockCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	c := NewWithClient(client, time.Minute)
	t.Cleanup(func() { _ = c.Close() })
	return c, mr
}

func TestSetGetRoundTrip(t *testing.T) {
	c, _ := testCache(t)
	ctx := context.Background()

	blk := store.Block{
		ID:      "blk-1",
		TabID:   "tab-1",
		Type:    "table",
		Content: json.RawMessage(`{"rows":3}`),
		Version: 7,
	}
	c.Set(ctx, blk)

	got, ok := c.Get(ctx, "blk-1")
	if !ok {
		t.Fatal("expected cache hit")
	}
	if got.ID != blk.ID || got.Version != 7 || string(got.Content) != `{"rows":3}` {
		t.Fatalf("cached block mismatch: %+v", got)
	}
}

func TestGetMissingIsMiss(t *testing.T) {
	c, _ := testCache(t)
	if _, ok := c.Get(context.Background(), "nope"); ok {
		t.Fatal("expected miss")
	}
}

func TestInvalidateRemovesEntry(t *testing.T) {
	c, _ := testCache(t)
	ctx := context.Background()

	c.Set(ctx, store.Block{ID: "blk-1", Content: json.RawMessage(`{}`)})
	c.Invalidate(ctx, "blk-1")
	if _, ok := c.Get(ctx, "blk-1"); ok {
		t.Fatal("entry should be gone after invalidate")
	}
}

func TestEntriesExpire(t *testing.T) {
	c, mr := testCache(t)
	ctx := context.Background()

	c.Set(ctx, store.Block{ID: "blk-1", Content: json.RawMessage(`{}`)})
	mr.FastForward(2 * time.Minute)
	if _, ok := c.Get(ctx, "blk-1"); ok {
		t.Fatal("entry should expire after the TTL")
	}
}

func TestCorruptEntryIsMiss(t *testing.T) {
	c, mr := testCache(t)
	if err := mr.Set("block:blk-1", "not json"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, ok := c.Get(context.Background(), "blk-1"); ok {
		t.Fatal("corrupt entry should read as a miss")
	}
}
