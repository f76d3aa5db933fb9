// Package session owns the durable AuthSession cell shared by a surface:
// bearer token, workspace/project ids, and an optionally carried project
// key. The cell is destroyed on logout or on an authorization failure from
// the remote backend.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/zecrypt/zecrypt-go/internal/common"
)

const (
	sessionKey  = "auth_session"
	clientIDKey = "client_id"
)

// Session is the authenticated state handed between surfaces.
type Session struct {
	Token       string `json:"token"`
	WorkspaceID string `json:"workspace_id"`
	ProjectID   string `json:"project_id"`
	ProjectKey  string `json:"project_key,omitempty"`
}

// SettingsStore is the durable slot the session is persisted to. Writes are
// atomic at the storage layer.
type SettingsStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// Store caches the current session over a durable settings slot.
type Store struct {
	mu       sync.RWMutex
	settings SettingsStore
	current  *Session
	loaded   bool
}

// NewStore returns a session store over the given settings.
func NewStore(settings SettingsStore) *Store {
	return &Store{settings: settings}
}

// Current returns the active session, loading it from durable storage on
// first use. common.ErrNotFound means no one is logged in.
func (s *Store) Current(ctx context.Context) (*Session, error) {
	s.mu.RLock()
	if s.loaded {
		defer s.mu.RUnlock()
		if s.current == nil {
			return nil, common.ErrNotFound
		}
		cp := *s.current
		return &cp, nil
	}
	s.mu.RUnlock()

	raw, err := s.settings.Get(ctx, sessionKey)
	if errors.Is(err, common.ErrNotFound) {
		s.mu.Lock()
		s.current, s.loaded = nil, true
		s.mu.Unlock()
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("session read: %w", err)
	}

	var sess Session
	if err := json.Unmarshal([]byte(raw), &sess); err != nil {
		return nil, fmt.Errorf("session read: %w", err)
	}

	s.mu.Lock()
	s.current, s.loaded = &sess, true
	s.mu.Unlock()
	cp := sess
	return &cp, nil
}

// Save persists sess as the active session.
func (s *Store) Save(ctx context.Context, sess *Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("session write: %w", err)
	}
	if err := s.settings.Set(ctx, sessionKey, string(data)); err != nil {
		return fmt.Errorf("session write: %w", err)
	}

	s.mu.Lock()
	cp := *sess
	s.current, s.loaded = &cp, true
	s.mu.Unlock()
	return nil
}

// Clear tears the session down (logout, or a 401 from the backend).
func (s *Store) Clear(ctx context.Context) error {
	if err := s.settings.Delete(ctx, sessionKey); err != nil && !errors.Is(err, common.ErrNotFound) {
		return fmt.Errorf("session clear: %w", err)
	}
	s.mu.Lock()
	s.current, s.loaded = nil, true
	s.mu.Unlock()
	return nil
}

// Token returns the bearer token for the active session, rejecting tokens
// whose embedded expiry has already passed so callers can re-authenticate
// instead of issuing a doomed request.
func (s *Store) Token(ctx context.Context) (string, error) {
	sess, err := s.Current(ctx)
	if err != nil {
		return "", err
	}
	if TokenExpired(sess.Token) {
		return "", common.ErrAuthExpired
	}
	return sess.Token, nil
}

// WorkspaceID returns the workspace of the active session.
func (s *Store) WorkspaceID(ctx context.Context) (string, error) {
	sess, err := s.Current(ctx)
	if err != nil {
		return "", err
	}
	return sess.WorkspaceID, nil
}

// ClientID returns the stable per-install identifier, generating and
// persisting one on first use.
func (s *Store) ClientID(ctx context.Context) (string, error) {
	id, err := s.settings.Get(ctx, clientIDKey)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, common.ErrNotFound) {
		return "", fmt.Errorf("client id read: %w", err)
	}

	id = uuid.NewString()
	if err := s.settings.Set(ctx, clientIDKey, id); err != nil {
		return "", fmt.Errorf("client id write: %w", err)
	}
	return id, nil
}

// TokenExpired inspects the token's exp claim without verifying the
// signature (the remote service is the verifier; this is a local fast path).
// Opaque non-JWT tokens are never treated as expired.
func TokenExpired(token string) bool {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return exp.Before(time.Now())
}
