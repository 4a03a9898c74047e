package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/voicedrop/backend/internal/auth"
	"github.com/voicedrop/backend/internal/identity"
)

func TestProfileHandlerShow(t *testing.T) {
	ident := identity.NewManager(identity.NewInMemoryUserStore(), auth.PasswordHasher{Cost: bcrypt.MinCost})
	user, err := ident.Register(context.Background(), "alice@example.com", "supersafe", "Alice Smith")
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	handler := ProfileHandler{Profiles: ident}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/profile/"+user.Handle, nil)
	req.SetPathValue("handle", user.Handle)
	rec := httptest.NewRecorder()
	handler.Show(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d got %d: %s", http.StatusOK, rec.Code, rec.Body.String())
	}

	var payload map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload["display_name"] != "Alice Smith" || payload["handle"] != user.Handle {
		t.Fatalf("unexpected projection %+v", payload)
	}
	// Public projection only.
	if _, leaked := payload["email"]; leaked {
		t.Fatal("profile response leaked the email address")
	}
	if _, leaked := payload["id"]; leaked {
		t.Fatal("profile response leaked the user id")
	}
}

func TestProfileHandlerShowUnknown(t *testing.T) {
	ident := identity.NewManager(identity.NewInMemoryUserStore(), auth.PasswordHasher{Cost: bcrypt.MinCost})
	handler := ProfileHandler{Profiles: ident}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/profile/nobody-00000000", nil)
	req.SetPathValue("handle", "nobody-00000000")
	rec := httptest.NewRecorder()
	handler.Show(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected status %d got %d", http.StatusNotFound, rec.Code)
	}
}
