// Package identity owns account registration, credential checks, and handle
// resolution. Profile handles are derived from the email local part and made
// unique with a random suffix so two users with the same mailbox name never
// collide.
package identity

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"strings"

	"github.com/voicedrop/backend/internal/models"
)

var (
	// ErrEmailTaken indicates an account already exists for the email.
	ErrEmailTaken = errors.New("email already registered")
	// ErrHandleTaken indicates the generated profile handle is in use.
	ErrHandleTaken = errors.New("handle already taken")
	// ErrHandleExhausted indicates handle generation kept colliding.
	ErrHandleExhausted = errors.New("could not generate unique handle")
	// ErrInvalidCredentials indicates the email or password did not match.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrNotFound indicates no user matches the lookup.
	ErrNotFound = errors.New("user not found")
)

const handleAttempts = 5

// UserStore persists accounts. Create must return ErrEmailTaken or
// ErrHandleTaken on the matching uniqueness violation.
type UserStore interface {
	Create(ctx context.Context, user models.User) (models.User, error)
	FindByEmail(ctx context.Context, email string) (models.User, error)
	FindByHandle(ctx context.Context, handle string) (models.User, error)
	FindByID(ctx context.Context, id int64) (models.User, error)
}

// PasswordHasher derives and verifies password digests.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(digest, password string) bool
}

// Manager implements account registration and authentication on top of a
// UserStore.
type Manager struct {
	store  UserStore
	hasher PasswordHasher
}

// NewManager constructs a Manager backed by the provided store and hasher.
func NewManager(store UserStore, hasher PasswordHasher) *Manager {
	if store == nil {
		panic("identity: user store must not be nil")
	}
	if hasher == nil {
		panic("identity: password hasher must not be nil")
	}
	return &Manager{store: store, hasher: hasher}
}

// Register creates an account with a generated profile handle. The email is
// stored exactly as provided; lookups against it are case sensitive. Handle
// collisions are retried with fresh suffixes before giving up with
// ErrHandleExhausted.
func (m *Manager) Register(ctx context.Context, email, password, displayName string) (models.User, error) {
	digest, err := m.hasher.Hash(password)
	if err != nil {
		return models.User{}, err
	}

	for attempt := 0; attempt < handleAttempts; attempt++ {
		handle, err := generateHandle(email)
		if err != nil {
			return models.User{}, err
		}

		user, err := m.store.Create(ctx, models.User{
			Email:        email,
			PasswordHash: digest,
			DisplayName:  displayName,
			Handle:       handle,
		})
		if err == nil {
			return user, nil
		}
		if errors.Is(err, ErrHandleTaken) {
			continue
		}
		return models.User{}, err
	}
	return models.User{}, ErrHandleExhausted
}

// Authenticate resolves an email and password to the owning account. Unknown
// emails and wrong passwords both report ErrInvalidCredentials.
func (m *Manager) Authenticate(ctx context.Context, email, password string) (models.User, error) {
	user, err := m.store.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return models.User{}, ErrInvalidCredentials
		}
		return models.User{}, err
	}
	if !m.hasher.Verify(user.PasswordHash, password) {
		return models.User{}, ErrInvalidCredentials
	}
	return user, nil
}

// FindByHandle returns the account owning the profile handle.
func (m *Manager) FindByHandle(ctx context.Context, handle string) (models.User, error) {
	return m.store.FindByHandle(ctx, handle)
}

// FindByID returns the account with the given identifier.
func (m *Manager) FindByID(ctx context.Context, id int64) (models.User, error) {
	return m.store.FindByID(ctx, id)
}

// generateHandle builds a profile handle from the email local part: lowered,
// stripped of dots and underscores, then suffixed with four random bytes in
// hex. An empty local part falls back to "user".
func generateHandle(email string) (string, error) {
	local := email
	if at := strings.IndexByte(email, '@'); at >= 0 {
		local = email[:at]
	}
	base := strings.ToLower(local)
	base = strings.ReplaceAll(base, ".", "")
	base = strings.ReplaceAll(base, "_", "")
	if base == "" {
		base = "user"
	}

	suffix := make([]byte, 4)
	if _, err := rand.Read(suffix); err != nil {
		return "", err
	}
	return base + "-" + hex.EncodeToString(suffix), nil
}
