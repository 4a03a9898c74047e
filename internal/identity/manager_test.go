package identity

import (
	"context"
	"encoding/hex"
	"errors"
	"strings"
	"testing"

	"github.com/voicedrop/backend/internal/models"
)

type plainHasher struct{}

func (plainHasher) Hash(password string) (string, error) { return "digest:" + password, nil }

func (plainHasher) Verify(digest, password string) bool { return digest == "digest:"+password }

func TestManagerRegister(t *testing.T) {
	store := NewInMemoryUserStore()
	manager := NewManager(store, plainHasher{})

	user, err := manager.Register(context.Background(), "Alice.Smith_dev@Example.com", "secret", "Alice Smith")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if user.ID == 0 {
		t.Fatal("expected assigned user id")
	}
	if user.Email != "Alice.Smith_dev@Example.com" {
		t.Fatalf("expected email stored as given, got %q", user.Email)
	}
	if user.DisplayName != "Alice Smith" {
		t.Fatalf("unexpected display name %q", user.DisplayName)
	}
	if user.PasswordHash == "secret" {
		t.Fatal("password must not be stored in plaintext")
	}
	if !strings.HasPrefix(user.Handle, "alicesmithdev-") {
		t.Fatalf("expected handle derived from email local part, got %q", user.Handle)
	}
}

func TestGenerateHandle(t *testing.T) {
	cases := []struct {
		email string
		base  string
	}{
		{"alice@example.com", "alice"},
		{"Bob.Jones_99@Example.COM", "bobjones99"},
		{"._@example.com", "user"},
		{"plainaddress", "plainaddress"},
	}

	for _, tc := range cases {
		handle, err := generateHandle(tc.email)
		if err != nil {
			t.Fatalf("generate handle for %q: %v", tc.email, err)
		}
		prefix := tc.base + "-"
		if !strings.HasPrefix(handle, prefix) {
			t.Fatalf("expected %q to start with %q", handle, prefix)
		}
		suffix := strings.TrimPrefix(handle, prefix)
		if len(suffix) != 8 {
			t.Fatalf("expected 8 hex chars of suffix, got %q", suffix)
		}
		if _, err := hex.DecodeString(suffix); err != nil {
			t.Fatalf("expected hex suffix, got %q", suffix)
		}
	}
}

func TestManagerRegisterEmailTaken(t *testing.T) {
	store := NewInMemoryUserStore()
	manager := NewManager(store, plainHasher{})

	if _, err := manager.Register(context.Background(), "alice@example.com", "secret", "Alice"); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := manager.Register(context.Background(), "alice@example.com", "other", "Alice Again"); !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("expected email taken got %v", err)
	}
}

type collideStore struct {
	creates int
}

func (s *collideStore) Create(context.Context, models.User) (models.User, error) {
	s.creates++
	return models.User{}, ErrHandleTaken
}

func (s *collideStore) FindByEmail(context.Context, string) (models.User, error) {
	return models.User{}, ErrNotFound
}

func (s *collideStore) FindByHandle(context.Context, string) (models.User, error) {
	return models.User{}, ErrNotFound
}

func (s *collideStore) FindByID(context.Context, int64) (models.User, error) {
	return models.User{}, ErrNotFound
}

func TestManagerRegisterHandleExhausted(t *testing.T) {
	store := &collideStore{}
	manager := NewManager(store, plainHasher{})

	if _, err := manager.Register(context.Background(), "alice@example.com", "secret", "Alice"); !errors.Is(err, ErrHandleExhausted) {
		t.Fatalf("expected handle exhausted got %v", err)
	}
	if store.creates != handleAttempts {
		t.Fatalf("expected %d create attempts got %d", handleAttempts, store.creates)
	}
}

func TestManagerAuthenticate(t *testing.T) {
	store := NewInMemoryUserStore()
	manager := NewManager(store, plainHasher{})

	registered, err := manager.Register(context.Background(), "alice@example.com", "secret", "Alice")
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	user, err := manager.Authenticate(context.Background(), "alice@example.com", "secret")
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if user.ID != registered.ID {
		t.Fatalf("expected user %d got %d", registered.ID, user.ID)
	}

	if _, err := manager.Authenticate(context.Background(), "alice@example.com", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials for wrong password got %v", err)
	}
	if _, err := manager.Authenticate(context.Background(), "nobody@example.com", "secret"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials for unknown email got %v", err)
	}
}

func TestManagerAuthenticateEmailCaseSensitive(t *testing.T) {
	store := NewInMemoryUserStore()
	manager := NewManager(store, plainHasher{})

	if _, err := manager.Register(context.Background(), "Alice@Example.com", "secret", "Alice"); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := manager.Authenticate(context.Background(), "alice@example.com", "secret"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials for differently cased email got %v", err)
	}
}

func TestManagerFinds(t *testing.T) {
	store := NewInMemoryUserStore()
	manager := NewManager(store, plainHasher{})

	registered, err := manager.Register(context.Background(), "alice@example.com", "secret", "Alice")
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	byHandle, err := manager.FindByHandle(context.Background(), registered.Handle)
	if err != nil {
		t.Fatalf("find by handle: %v", err)
	}
	if byHandle.ID != registered.ID {
		t.Fatalf("expected user %d got %d", registered.ID, byHandle.ID)
	}

	byID, err := manager.FindByID(context.Background(), registered.ID)
	if err != nil {
		t.Fatalf("find by id: %v", err)
	}
	if byID.Email != registered.Email {
		t.Fatalf("expected email %q got %q", registered.Email, byID.Email)
	}

	if _, err := manager.FindByHandle(context.Background(), "missing-00000000"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found got %v", err)
	}
	if _, err := manager.FindByID(context.Background(), 9999); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found got %v", err)
	}
}
