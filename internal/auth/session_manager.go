package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/voicedrop/backend/internal/models"
)

// ErrSessionInvalid indicates the provided token does not map to a live
// session, either because it was never issued, was revoked, or has expired.
var ErrSessionInvalid = errors.New("session invalid")

// DefaultSessionTTL applies when a Manager is constructed with a
// non-positive TTL.
const DefaultSessionTTL = 720 * time.Hour

// SessionStore persists issued tokens so sessions survive process restarts.
type SessionStore interface {
	Save(ctx context.Context, session models.Session) error
	Find(ctx context.Context, token string) (models.Session, error)
	Delete(ctx context.Context, token string) error
}

// Manager manages the lifecycle of issued bearer tokens backed by a
// persistent store.
type Manager struct {
	ttl   time.Duration
	store SessionStore
}

// NewManager constructs a Manager that issues tokens with the provided TTL.
func NewManager(ttl time.Duration, store SessionStore) *Manager {
	if store == nil {
		panic("auth: session store must not be nil")
	}
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &Manager{ttl: ttl, store: store}
}

// Issue creates a new session for the provided user and returns it with a
// freshly generated token.
func (m *Manager) Issue(ctx context.Context, userID int64) (models.Session, error) {
	if userID <= 0 {
		return models.Session{}, fmt.Errorf("user id must be positive, got %d", userID)
	}

	token, err := randomToken()
	if err != nil {
		return models.Session{}, err
	}

	now := time.Now().UTC()
	session := models.Session{
		Token:     token,
		UserID:    userID,
		ExpiresAt: now.Add(m.ttl),
		CreatedAt: now,
	}

	if err := m.store.Save(ctx, session); err != nil {
		return models.Session{}, err
	}
	return session, nil
}

// Validate resolves a bearer token to the owning user. Expired sessions are
// removed from the store as they are discovered.
func (m *Manager) Validate(ctx context.Context, token string) (int64, error) {
	if token == "" {
		return 0, ErrSessionInvalid
	}

	session, err := m.store.Find(ctx, token)
	if err != nil {
		return 0, err
	}

	if !time.Now().UTC().Before(session.ExpiresAt) {
		_ = m.store.Delete(ctx, token)
		return 0, ErrSessionInvalid
	}
	return session.UserID, nil
}

// Revoke removes the provided token from the active session store.
func (m *Manager) Revoke(ctx context.Context, token string) {
	if token == "" {
		return
	}
	_ = m.store.Delete(ctx, token)
}

func randomToken() (string, error) {
	const size = 32
	buf := make([]byte, size)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
