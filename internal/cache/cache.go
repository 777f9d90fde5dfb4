// Package cache provides a read-through Redis cache for block content
// documents. Caching is best effort: every failure degrades to the
// store, never to the caller.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"tessera/api/internal/store"
)

type BlockCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// New creates a Redis-backed block cache.
func New(redisURL string, ttl time.Duration) (*BlockCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewWithClient(client, ttl), nil
}

// NewWithClient creates a cache from an existing Redis client.
func NewWithClient(client *redis.Client, ttl time.Duration) *BlockCache {
	return &BlockCache{
		client: client,
		prefix: "block:",
		ttl:    ttl,
	}
}

func (c *BlockCache) key(blockID string) string {
	return c.prefix + blockID
}

// Get returns the cached block, if present.
func (c *BlockCache) Get(ctx context.Context, blockID string) (store.Block, bool) {
	raw, err := c.client.Get(ctx, c.key(blockID)).Result()
	if err == redis.Nil {
		return store.Block{}, false
	}
	if err != nil {
		log.Printf("cache: get block %s: %v", blockID, err)
		return store.Block{}, false
	}
	var blk store.Block
	if err := json.Unmarshal([]byte(raw), &blk); err != nil {
		log.Printf("cache: decode block %s: %v", blockID, err)
		return store.Block{}, false
	}
	return blk, true
}

// Set stores the block with the configured TTL.
func (c *BlockCache) Set(ctx context.Context, blk store.Block) {
	raw, err := json.Marshal(blk)
	if err != nil {
		log.Printf("cache: encode block %s: %v", blk.ID, err)
		return
	}
	if err := c.client.Set(ctx, c.key(blk.ID), raw, c.ttl).Err(); err != nil {
		log.Printf("cache: set block %s: %v", blk.ID, err)
	}
}

// Invalidate drops the cached entry; called on every content write so a
// stale document never outlives a save.
func (c *BlockCache) Invalidate(ctx context.Context, blockID string) {
	if err := c.client.Del(ctx, c.key(blockID)).Err(); err != nil {
		log.Printf("cache: invalidate block %s: %v", blockID, err)
	}
}

func (c *BlockCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *BlockCache) Close() error {
	return c.client.Close()
}
