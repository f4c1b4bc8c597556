package memory

import (
	"context"
	"sync"
	"time"

	"adminkit.org/internal/auth"
)

// Revoker keeps session denylist entries and token versions in process
// memory. Entries vanish on restart.
type Revoker struct {
	mu       sync.Mutex
	sessions map[string]time.Time
	versions map[string]int64
	now      func() time.Time
}

var _ auth.TokenRevoker = (*Revoker)(nil)

func NewRevoker() *Revoker {
	return &Revoker{
		sessions: make(map[string]time.Time),
		versions: make(map[string]int64),
		now:      time.Now,
	}
}

func (r *Revoker) RevokeSession(ctx context.Context, sessionID string, until time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	r.pruneLocked(now)
	if exp, ok := r.sessions[sessionID]; ok && now.Before(exp) {
		return false, nil
	}
	r.sessions[sessionID] = until
	return true, nil
}

func (r *Revoker) SessionRevoked(ctx context.Context, sessionID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	exp, ok := r.sessions[sessionID]
	return ok && r.now().Before(exp), nil
}

func (r *Revoker) BumpUserVersion(ctx context.Context, userID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.versions[userID]++
	return r.versions[userID], nil
}

func (r *Revoker) UserVersion(ctx context.Context, userID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.versions[userID], nil
}

func (r *Revoker) pruneLocked(now time.Time) {
	for sid, exp := range r.sessions {
		if !now.Before(exp) {
			delete(r.sessions, sid)
		}
	}
}
