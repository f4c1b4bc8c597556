package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"adminkit.org/internal/auth"
	"adminkit.org/internal/authz"
)

type stubLoader struct {
	calls int
	users map[string]auth.User
}

func (s *stubLoader) LoadUser(_ context.Context, userID string) (auth.User, error) {
	s.calls++
	u, ok := s.users[userID]
	if !ok {
		return auth.User{}, auth.ErrNotFound
	}
	return u, nil
}

func newTestClient(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client, mr
}

func newTestCache(t *testing.T, loader auth.UserLoader) (*PrincipalCache, *miniredis.Miniredis) {
	t.Helper()
	client, mr := newTestClient(t)
	return NewPrincipalCache(client, loader, time.Minute), mr
}

func editorUser() auth.User {
	return auth.User{
		ID:       "u1",
		Username: "editor",
		Roles:    []auth.Role{{ID: "r1", Name: "EDITOR", Permissions: []string{"users:view", "users:edit"}}},
	}
}

func canEdit(u auth.User) bool {
	return authz.NewChecker(u.Snapshot(), authz.DefaultPolicy()).HasPermission("users:edit")
}

func TestLoadUserReadsThrough(t *testing.T) {
	loader := &stubLoader{users: map[string]auth.User{"u1": editorUser()}}
	c, mr := newTestCache(t, loader)
	ctx := context.Background()

	first, err := c.LoadUser(ctx, "u1")
	if err != nil {
		t.Fatalf("first load: %v", err)
	}
	second, err := c.LoadUser(ctx, "u1")
	if err != nil {
		t.Fatalf("second load: %v", err)
	}
	if loader.calls != 1 {
		t.Fatalf("expected one backing load, got %d", loader.calls)
	}
	if len(second.Roles) != 1 || len(second.Roles[0].Permissions) != len(first.Roles[0].Permissions) {
		t.Fatalf("cached snapshot differs: %+v vs %+v", first.Roles, second.Roles)
	}
	if !mr.Exists("adminkit:principal:0:u1") {
		t.Fatal("expected snapshot key in redis")
	}
	if ttl := mr.TTL("adminkit:principal:0:u1"); ttl != time.Minute {
		t.Fatalf("unexpected ttl %s", ttl)
	}
}

func TestInvalidateDropsEverySnapshot(t *testing.T) {
	loader := &stubLoader{users: map[string]auth.User{"u1": editorUser()}}
	c, _ := newTestCache(t, loader)
	ctx := context.Background()

	if _, err := c.LoadUser(ctx, "u1"); err != nil {
		t.Fatalf("load: %v", err)
	}

	updated := editorUser()
	updated.Roles[0].Permissions = []string{"users:view"}
	loader.users["u1"] = updated
	if err := c.Invalidate(ctx); err != nil {
		t.Fatalf("invalidate: %v", err)
	}

	got, err := c.LoadUser(ctx, "u1")
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if loader.calls != 2 {
		t.Fatalf("expected a second backing load, got %d", loader.calls)
	}
	if canEdit(got) {
		t.Fatal("revoked permission still granted")
	}
	gen, err := c.Generation(ctx)
	if err != nil || gen != 1 {
		t.Fatalf("expected generation 1, got %d (%v)", gen, err)
	}
}

func TestFailedInvalidateBypassesCacheUntilBumped(t *testing.T) {
	loader := &stubLoader{users: map[string]auth.User{"u1": editorUser()}}
	c, mr := newTestCache(t, loader)
	ctx := context.Background()

	if _, err := c.LoadUser(ctx, "u1"); err != nil {
		t.Fatalf("warm cache: %v", err)
	}

	updated := editorUser()
	updated.Roles[0].Permissions = []string{"users:view"}
	loader.users["u1"] = updated

	mr.SetError("ERR injected failure")
	if err := c.Invalidate(ctx); err != nil {
		t.Fatalf("invalidate must not fail the caller: %v", err)
	}
	if !c.Dirty() {
		t.Fatal("expected cache to be marked dirty")
	}
	got, err := c.LoadUser(ctx, "u1")
	if err != nil {
		t.Fatalf("load while dirty: %v", err)
	}
	if canEdit(got) {
		t.Fatal("stale snapshot served after failed invalidation")
	}

	mr.SetError("")
	got, err = c.LoadUser(ctx, "u1")
	if err != nil {
		t.Fatalf("load after recovery: %v", err)
	}
	if canEdit(got) {
		t.Fatal("stale snapshot served after recovery")
	}
	if c.Dirty() {
		t.Fatal("expected dirty flag cleared once the bump succeeds")
	}
	if gen, err := c.Generation(ctx); err != nil || gen < 1 {
		t.Fatalf("expected generation to advance, got %d (%v)", gen, err)
	}
}

func TestLoadUserPropagatesNotFound(t *testing.T) {
	c, _ := newTestCache(t, &stubLoader{users: map[string]auth.User{}})
	_, err := c.LoadUser(context.Background(), "missing")
	if !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestLoadUserFallsBackWhenRedisDown(t *testing.T) {
	loader := &stubLoader{users: map[string]auth.User{"u1": editorUser()}}
	c, mr := newTestCache(t, loader)
	mr.Close()

	got, err := c.LoadUser(context.Background(), "u1")
	if err != nil {
		t.Fatalf("load with redis down: %v", err)
	}
	if got.ID != "u1" {
		t.Fatalf("unexpected user %+v", got)
	}
}
