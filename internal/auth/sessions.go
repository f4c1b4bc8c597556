package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// TokenRevoker records ended sessions and per-user token versions.
type TokenRevoker interface {
	// RevokeSession denylists sessionID until the given time and reports
	// whether this call was the first to do so.
	RevokeSession(ctx context.Context, sessionID string, until time.Time) (bool, error)
	SessionRevoked(ctx context.Context, sessionID string) (bool, error)
	// BumpUserVersion invalidates every token issued to userID so far.
	BumpUserVersion(ctx context.Context, userID string) (int64, error)
	UserVersion(ctx context.Context, userID string) (int64, error)
}

// Sessions issues token pairs and enforces logout, refresh rotation and
// password-change revocation on top of a TokenIssuer.
type Sessions struct {
	tokens  *TokenIssuer
	revoker TokenRevoker
}

func NewSessions(tokens *TokenIssuer, revoker TokenRevoker) (*Sessions, error) {
	if tokens == nil {
		return nil, errors.New("auth: token issuer is required")
	}
	if revoker == nil {
		return nil, errors.New("auth: token revoker is required")
	}
	return &Sessions{tokens: tokens, revoker: revoker}, nil
}

// Start opens a new session for user.
func (s *Sessions) Start(ctx context.Context, user User) (TokenPair, error) {
	version, err := s.revoker.UserVersion(ctx, user.ID)
	if err != nil {
		return TokenPair{}, fmt.Errorf("load token version: %w", err)
	}
	return s.tokens.IssueSession(user, uuid.NewString(), version)
}

// Verify parses token and rejects it with ErrInvalidToken when its session
// was ended or its version is stale. Other errors mean the revocation state
// could not be read.
func (s *Sessions) Verify(ctx context.Context, token, wantType string) (*Claims, error) {
	claims, err := s.tokens.Parse(token, wantType)
	if err != nil {
		return nil, err
	}
	if sid := strings.TrimSpace(claims.SessionID); sid != "" {
		revoked, err := s.revoker.SessionRevoked(ctx, sid)
		if err != nil {
			return nil, fmt.Errorf("check session: %w", err)
		}
		if revoked {
			return nil, ErrInvalidToken
		}
	}
	version, err := s.revoker.UserVersion(ctx, claims.Subject)
	if err != nil {
		return nil, fmt.Errorf("load token version: %w", err)
	}
	if claims.Version < version {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Rotate consumes a refresh token and ends its session. Each refresh token
// rotates once; a replay fails with ErrInvalidToken.
func (s *Sessions) Rotate(ctx context.Context, refresh string) (*Claims, error) {
	claims, err := s.Verify(ctx, refresh, TokenTypeRefresh)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(claims.SessionID) == "" {
		return nil, ErrInvalidToken
	}
	first, err := s.revoker.RevokeSession(ctx, claims.SessionID, s.sessionEnd(claims))
	if err != nil {
		return nil, fmt.Errorf("revoke session: %w", err)
	}
	if !first {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// End revokes the session claims belong to, covering both tokens of the pair.
func (s *Sessions) End(ctx context.Context, claims *Claims) error {
	if claims == nil || strings.TrimSpace(claims.SessionID) == "" {
		return ErrInvalidToken
	}
	_, err := s.revoker.RevokeSession(ctx, claims.SessionID, s.sessionEnd(claims))
	return err
}

// EndAll revokes every token issued to userID so far.
func (s *Sessions) EndAll(ctx context.Context, userID string) error {
	if strings.TrimSpace(userID) == "" {
		return ErrInvalidInput
	}
	_, err := s.revoker.BumpUserVersion(ctx, userID)
	return err
}

// sessionEnd is the latest expiry of any token in the pair.
func (s *Sessions) sessionEnd(claims *Claims) time.Time {
	var end time.Time
	if claims.IssuedAt != nil {
		end = claims.IssuedAt.Add(s.tokens.RefreshTTL())
	}
	if claims.ExpiresAt != nil && claims.ExpiresAt.After(end) {
		end = claims.ExpiresAt.Time
	}
	return end.Add(clockSkew)
}
