package cache

import (
	"context"
	"testing"
	"time"
)

func TestTokenRevokerSessionDenylist(t *testing.T) {
	client, mr := newTestClient(t)
	r := NewTokenRevoker(client)
	ctx := context.Background()

	first, err := r.RevokeSession(ctx, "sid-1", time.Now().Add(time.Hour))
	if err != nil || !first {
		t.Fatalf("expected first revocation, got %v (%v)", first, err)
	}
	again, err := r.RevokeSession(ctx, "sid-1", time.Now().Add(time.Hour))
	if err != nil || again {
		t.Fatalf("second revocation must report false, got %v (%v)", again, err)
	}
	revoked, err := r.SessionRevoked(ctx, "sid-1")
	if err != nil || !revoked {
		t.Fatalf("expected sid-1 revoked, got %v (%v)", revoked, err)
	}
	if ttl := mr.TTL(revokedSessionPrefix + "sid-1"); ttl <= 0 || ttl > time.Hour {
		t.Fatalf("denylist entry must expire with the session, ttl %s", ttl)
	}

	mr.FastForward(2 * time.Hour)
	revoked, err = r.SessionRevoked(ctx, "sid-1")
	if err != nil || revoked {
		t.Fatalf("expired entry still reported, got %v (%v)", revoked, err)
	}
}

func TestTokenRevokerUserVersion(t *testing.T) {
	client, _ := newTestClient(t)
	r := NewTokenRevoker(client)
	ctx := context.Background()

	v, err := r.UserVersion(ctx, "u1")
	if err != nil || v != 0 {
		t.Fatalf("expected version 0, got %d (%v)", v, err)
	}
	if _, err := r.BumpUserVersion(ctx, "u1"); err != nil {
		t.Fatalf("bump: %v", err)
	}
	v, err = r.UserVersion(ctx, "u1")
	if err != nil || v != 1 {
		t.Fatalf("expected version 1, got %d (%v)", v, err)
	}
}

func TestTokenRevokerReportsRedisErrors(t *testing.T) {
	client, mr := newTestClient(t)
	r := NewTokenRevoker(client)
	mr.SetError("ERR injected failure")

	if _, err := r.SessionRevoked(context.Background(), "sid-1"); err == nil {
		t.Fatal("expected error while redis refuses commands")
	}
}
