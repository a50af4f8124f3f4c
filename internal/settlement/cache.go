package settlement

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	cacheVersionKey = "settlement:version"
	bumpChannel     = "settlement.bump"
)

// Cache stores normalized query results in Redis under versioned keys.
// While ListenForInvalidation runs, the version is held in memory and kept
// current by bump messages instead of being read from Redis per query.
type Cache struct {
	client    *redis.Client
	ttl       time.Duration
	local     atomic.Int64
	following atomic.Bool
}

// NewCache instantiates the cache helper.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

// Version returns the current cache version, initialising when missing.
func (c *Cache) Version(ctx context.Context) (int64, error) {
	if c == nil || c.client == nil {
		return 0, nil
	}
	if c.following.Load() {
		if ver := c.local.Load(); ver > 0 {
			return ver, nil
		}
	}
	return c.readVersion(ctx)
}

func (c *Cache) readVersion(ctx context.Context) (int64, error) {
	ver, err := c.client.Get(ctx, cacheVersionKey).Int64()
	if errors.Is(err, redis.Nil) {
		if err := c.client.SetNX(ctx, cacheVersionKey, 1, 0).Err(); err != nil {
			return 0, err
		}
		return 1, nil
	}
	if err != nil {
		return 0, err
	}
	if ver <= 0 {
		ver = 1
		if err := c.client.Set(ctx, cacheVersionKey, ver, 0).Err(); err != nil {
			return 0, err
		}
	}
	return ver, nil
}

// observe raises the in-memory version; bump messages can arrive out of order.
func (c *Cache) observe(ver int64) {
	for {
		cur := c.local.Load()
		if ver <= cur || c.local.CompareAndSwap(cur, ver) {
			return
		}
	}
}

// BuildKey composes the cache key with the current version.
func (c *Cache) BuildKey(ctx context.Context, parts ...string) (string, error) {
	joined := strings.Join(parts, ":")
	if c == nil || c.client == nil {
		return joined, nil
	}
	ver, err := c.Version(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s:%d", joined, ver), nil
}

// FetchJSON loads a cached value or populates it using the loader.
func (c *Cache) FetchJSON(ctx context.Context, key string, dest any, loader func(context.Context) (any, error)) error {
	if loader == nil {
		return errors.New("settlement: cache loader required")
	}
	if c == nil || c.client == nil {
		value, err := loader(ctx)
		if err != nil {
			return err
		}
		return roundTrip(value, dest)
	}
	payload, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		return json.Unmarshal(payload, dest)
	}
	if !errors.Is(err, redis.Nil) {
		return err
	}
	value, err := loader(ctx)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		return err
	}
	return json.Unmarshal(raw, dest)
}

// Bump invalidates every cached entry by incrementing the version and publishing it.
func (c *Cache) Bump(ctx context.Context) (int64, error) {
	if c == nil || c.client == nil {
		return 0, nil
	}
	ver, err := c.client.Incr(ctx, cacheVersionKey).Result()
	if err != nil {
		return 0, err
	}
	c.observe(ver)
	return ver, c.client.Publish(ctx, bumpChannel, strconv.FormatInt(ver, 10)).Err()
}

// ListenForInvalidation keeps the in-memory version in step with bumps
// published by any instance. Every resync interval the version is re-read
// from Redis to cover messages lost while the subscription reconnected.
// When ctx ends the cache falls back to reading the version per query.
func (c *Cache) ListenForInvalidation(ctx context.Context, resync time.Duration) error {
	if c == nil || c.client == nil {
		return nil
	}
	pubsub := c.client.Subscribe(ctx, bumpChannel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return err
	}
	ver, err := c.readVersion(ctx)
	if err != nil {
		_ = pubsub.Close()
		return err
	}
	c.local.Store(ver)
	c.following.Store(true)

	go func() {
		var tick <-chan time.Time
		if resync > 0 {
			ticker := time.NewTicker(resync)
			defer ticker.Stop()
			tick = ticker.C
		}
		defer func() {
			c.following.Store(false)
			c.local.Store(0)
			_ = pubsub.Close()
		}()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case <-tick:
				if ver, err := c.readVersion(ctx); err == nil {
					c.local.Store(ver)
				}
			case msg, ok := <-ch:
				if !ok {
					return
				}
				ver, err := strconv.ParseInt(msg.Payload, 10, 64)
				if err != nil {
					continue
				}
				c.observe(ver)
			}
		}
	}()
	return nil
}

func roundTrip(value, dest any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dest)
}

func queryKey(q Query) string {
	return strings.Join([]string{
		"settlement",
		strconv.FormatInt(q.SellerID, 10),
		string(q.Granularity),
		q.From.Format(time.RFC3339),
		q.To.Format(time.RFC3339),
		strconv.Itoa(q.Page),
		strconv.Itoa(q.Size),
		statusToken(q.Status),
	}, ":")
}

func statusToken(s StatusFilter) string {
	if s == "" {
		return "-"
	}
	return strings.ToLower(string(s))
}
