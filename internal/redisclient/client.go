package redisclient

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

//go:embed scripts/release_lock.lua
var releaseLockScript string

type Client struct {
	rdb           *redis.Client
	releaseScript *redis.Script
}

// NewClient creates a new Redis client
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
		rdb:           rdb,
		releaseScript: redis.NewScript(releaseLockScript),
	}, nil
}

// GetClient returns the underlying Redis client
func (c *Client) GetClient() *redis.Client {
	return c.rdb
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// SeenToken reports whether a callback idempotency token is inside the
// dedup window
func (c *Client) SeenToken(ctx context.Context, token string) (bool, error) {
	result, err := c.rdb.Exists(ctx, fmt.Sprintf("dedup:%s", token)).Result()
	if err != nil {
		return false, err
	}
	return result > 0, nil
}

// MarkToken records a callback idempotency token for the dedup window.
// Marked only after a successful apply so a transient failure does not
// swallow the redelivered event.
func (c *Client) MarkToken(ctx context.Context, token string, ttl time.Duration) error {
	return c.rdb.Set(ctx, fmt.Sprintf("dedup:%s", token), "1", ttl).Err()
}

// AcquireOrderLock acquires the per-order reconcile lock. Returns the owner
// token to release with and whether the lock was obtained.
func (c *Client) AcquireOrderLock(ctx context.Context, orderCode string, ttl time.Duration) (string, bool, error) {
	token := uuid.New().String()
	ok, err := c.rdb.SetNX(ctx, fmt.Sprintf("lock:order:%s", orderCode), token, ttl).Result()
	if err != nil {
		return "", false, err
	}
	return token, ok, nil
}

// ReleaseOrderLock releases the per-order lock if the token still owns it
func (c *Client) ReleaseOrderLock(ctx context.Context, orderCode, token string) error {
	key := fmt.Sprintf("lock:order:%s", orderCode)
	_, err := c.releaseScript.Run(ctx, c.rdb, []string{key}, token).Result()
	if err != nil {
		return fmt.Errorf("release lock script failed: %w", err)
	}
	return nil
}

// ClaimBidSlot claims the single in-flight bid slot a bidder gets per
// session. Returns false when a previous bid is still in flight.
func (c *Client) ClaimBidSlot(ctx context.Context, sessionID, bidderID int64, ttl time.Duration) (bool, error) {
	key := fmt.Sprintf("inflight:%d:%d", sessionID, bidderID)
	return c.rdb.SetNX(ctx, key, "1", ttl).Result()
}

// ReleaseBidSlot releases the in-flight bid slot
func (c *Client) ReleaseBidSlot(ctx context.Context, sessionID, bidderID int64) error {
	return c.rdb.Del(ctx, fmt.Sprintf("inflight:%d:%d", sessionID, bidderID)).Err()
}
