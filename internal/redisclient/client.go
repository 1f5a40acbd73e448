package redisclient

import (
	"context"
	_ "embed"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

//go:embed scripts/decrement_stock.lua
var decrementStockScript string

// Client mirrors committed stock counts and tracks checkout idempotency
// keys. The database is the source of truth; everything here is
// best-effort.
type Client struct {
	rdb             *redis.Client
	decrementScript *redis.Script
}

// NewClient creates a new Redis client with Lua scripts loaded
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{
		rdb:             rdb,
		decrementScript: redis.NewScript(decrementStockScript),
	}, nil
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

func stockKey(productID int64) string {
	return fmt.Sprintf("stock:%d", productID)
}

// SetStock sets the mirrored stock count for a product
func (c *Client) SetStock(ctx context.Context, productID int64, quantity int) error {
	return c.rdb.Set(ctx, stockKey(productID), quantity, 0).Err()
}

// GetStock retrieves the mirrored stock count for a product
func (c *Client) GetStock(ctx context.Context, productID int64) (int, error) {
	val, err := c.rdb.Get(ctx, stockKey(productID)).Result()
	if err == redis.Nil {
		return 0, fmt.Errorf("stock not mirrored for product %d", productID)
	}
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(val)
}

// DecrementStock atomically decrements the mirrored stock count,
// flooring at zero. Used after a checkout transaction commits so
// concurrent mirror updates cannot reorder into a stale value.
func (c *Client) DecrementStock(ctx context.Context, productID int64, quantity int) error {
	_, err := c.decrementScript.Run(ctx, c.rdb, []string{stockKey(productID)}, quantity).Result()
	if err != nil {
		return fmt.Errorf("decrement stock script failed: %w", err)
	}
	return nil
}

// AcquireIdempotencyKey reserves an idempotency key via SETNX with a
// TTL. Returns false when another request already holds the key.
func (c *Client) AcquireIdempotencyKey(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return c.rdb.SetNX(ctx, fmt.Sprintf("idempotency:%s", key), "1", ttl).Result()
}

// ReleaseIdempotencyKey frees a reserved key after a failed placement
// so the client can retry with the same key.
func (c *Client) ReleaseIdempotencyKey(ctx context.Context, key string) error {
	return c.rdb.Del(ctx, fmt.Sprintf("idempotency:%s", key)).Err()
}
