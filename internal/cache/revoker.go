package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"adminkit.org/internal/auth"
)

const (
	revokedSessionPrefix = "adminkit:revoked:session:"
	tokenVersionPrefix   = "adminkit:token-version:"
)

// TokenRevoker stores the session denylist and per-user token versions in
// Redis so every API replica sees a logout at once. Denylist keys expire
// with the session they block.
type TokenRevoker struct {
	client *redis.Client
	now    func() time.Time
}

var _ auth.TokenRevoker = (*TokenRevoker)(nil)

func NewTokenRevoker(client *redis.Client) *TokenRevoker {
	return &TokenRevoker{client: client, now: time.Now}
}

func (r *TokenRevoker) RevokeSession(ctx context.Context, sessionID string, until time.Time) (bool, error) {
	ttl := until.Sub(r.now())
	if ttl < time.Second {
		ttl = time.Second
	}
	return r.client.SetNX(ctx, revokedSessionPrefix+sessionID, "revoked", ttl).Result()
}

func (r *TokenRevoker) SessionRevoked(ctx context.Context, sessionID string) (bool, error) {
	n, err := r.client.Exists(ctx, revokedSessionPrefix+sessionID).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *TokenRevoker) BumpUserVersion(ctx context.Context, userID string) (int64, error) {
	return r.client.Incr(ctx, tokenVersionPrefix+userID).Result()
}

func (r *TokenRevoker) UserVersion(ctx context.Context, userID string) (int64, error) {
	v, err := r.client.Get(ctx, tokenVersionPrefix+userID).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return v, err
}
