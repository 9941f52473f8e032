// Package cache provides the Redis-backed availability snapshot cache.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/rueidis"

	"fiado/internal/credit"
	"fiado/internal/models"
)

// Client caches display-only availability snapshots with a short TTL. It
// serves only the non-transactional read path; the engine never consults it
// when deciding whether to reserve.
type Client struct {
	redis rueidis.Client
	ttl   time.Duration
}

// NewClient creates a new Redis client.
func NewClient(ctx context.Context, url string, ttl time.Duration) (*Client, error) {
	// Parse Redis URL (redis://localhost:6379)
	opts, err := rueidis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}

	client, err := rueidis.NewClient(opts)
	if err != nil {
		return nil, fmt.Errorf("create redis client: %w", err)
	}

	// Verify connection
	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &Client{redis: client, ttl: ttl}, nil
}

// Close closes the Redis client.
func (c *Client) Close() {
	c.redis.Close()
}

// Ping checks if Redis is reachable.
func (c *Client) Ping(ctx context.Context) error {
	return c.redis.Do(ctx, c.redis.B().Ping().Build()).Error()
}

func availabilityKey(pair models.Pair) string {
	return fmt.Sprintf("availability:%s", pair)
}

// GetAvailability returns the cached snapshot for the pair, if any. Cache
// failures are treated as misses.
func (c *Client) GetAvailability(ctx context.Context, pair models.Pair) (*credit.Availability, bool) {
	raw, err := c.redis.Do(ctx, c.redis.B().Get().Key(availabilityKey(pair)).Build()).AsBytes()
	if err != nil {
		return nil, false
	}

	var av credit.Availability
	if err := json.Unmarshal(raw, &av); err != nil {
		return nil, false
	}
	return &av, true
}

// SetAvailability stores a snapshot with the configured TTL. Best effort.
func (c *Client) SetAvailability(ctx context.Context, pair models.Pair, av *credit.Availability) {
	raw, err := json.Marshal(av)
	if err != nil {
		return
	}

	c.redis.Do(ctx,
		c.redis.B().Set().Key(availabilityKey(pair)).Value(string(raw)).Ex(c.ttl).Build(),
	)
}

// InvalidateAvailability drops the pair's snapshot after a committed
// mutation so display reads converge promptly.
func (c *Client) InvalidateAvailability(ctx context.Context, pair models.Pair) {
	c.redis.Do(ctx, c.redis.B().Del().Key(availabilityKey(pair)).Build())
}
