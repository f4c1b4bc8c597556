// Package cache keeps resolved user snapshots in Redis so authorization does
// not hit the database on every request.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"adminkit.org/internal/auth"
	"adminkit.org/internal/obs"
)

const (
	keyPrefix     = "adminkit:principal"
	generationKey = keyPrefix + ":gen"
)

// PrincipalCache is a read-through cache over a UserLoader. Snapshot keys
// embed a global generation; Invalidate bumps it so that every cached entry
// becomes unreachable at once and expires on its own TTL.
//
// A failed bump marks the cache dirty. While dirty, reads go straight to the
// backing loader until a later bump succeeds.
type PrincipalCache struct {
	client *redis.Client
	next   auth.UserLoader
	ttl    time.Duration
	dirty  atomic.Bool
}

var (
	_ auth.UserLoader  = (*PrincipalCache)(nil)
	_ auth.Invalidator = (*PrincipalCache)(nil)
)

func NewPrincipalCache(client *redis.Client, next auth.UserLoader, ttl time.Duration) *PrincipalCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &PrincipalCache{client: client, next: next, ttl: ttl}
}

// SetLoader wires the backing loader after construction.
func (c *PrincipalCache) SetLoader(next auth.UserLoader) { c.next = next }

// LoadUser returns the cached snapshot or loads and stores it. Redis failures
// degrade to the backing loader.
func (c *PrincipalCache) LoadUser(ctx context.Context, userID string) (auth.User, error) {
	if c.next == nil {
		return auth.User{}, errors.New("cache: loader required")
	}
	if c.client == nil {
		return c.next.LoadUser(ctx, userID)
	}
	if c.dirty.Load() && !c.bump(ctx) {
		return c.next.LoadUser(ctx, userID)
	}
	key, err := c.key(ctx, userID)
	if err != nil {
		obs.Logger().Warn("principal cache unavailable", "error", err)
		return c.next.LoadUser(ctx, userID)
	}
	raw, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		var user auth.User
		if err := json.Unmarshal(raw, &user); err == nil {
			return user, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		obs.Logger().Warn("principal cache read failed", "error", err)
	}

	user, err := c.next.LoadUser(ctx, userID)
	if err != nil {
		return auth.User{}, err
	}
	data, err := json.Marshal(user)
	if err != nil {
		return user, nil
	}
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		obs.Logger().Warn("principal cache write failed", "error", err)
	}
	return user, nil
}

// Invalidate advances the generation. When Redis refuses the bump the cache
// stops serving snapshots instead of failing the caller's write.
func (c *PrincipalCache) Invalidate(ctx context.Context) error {
	if c.client == nil {
		return nil
	}
	c.bump(ctx)
	return nil
}

// Dirty reports whether a generation bump is still owed.
func (c *PrincipalCache) Dirty() bool { return c.dirty.Load() }

func (c *PrincipalCache) bump(ctx context.Context) bool {
	if err := c.client.Incr(ctx, generationKey).Err(); err != nil {
		c.dirty.Store(true)
		obs.Logger().Warn("principal cache invalidation failed; bypassing cache", "error", err)
		return false
	}
	c.dirty.Store(false)
	return true
}

// Generation returns the current generation, zero when never bumped.
func (c *PrincipalCache) Generation(ctx context.Context) (int64, error) {
	gen, err := c.client.Get(ctx, generationKey).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

// Ping reports whether Redis answers.
func (c *PrincipalCache) Ping(ctx context.Context) error {
	if c.client == nil {
		return nil
	}
	return c.client.Ping(ctx).Err()
}

func (c *PrincipalCache) key(ctx context.Context, userID string) (string, error) {
	gen, err := c.Generation(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s:%d:%s", keyPrefix, gen, userID), nil
}
