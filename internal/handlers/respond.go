package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/voicedrop/backend/internal/auth"
	"github.com/voicedrop/backend/internal/logging"
)

func respondJSON(ctx context.Context, w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logging.FromContext(ctx).Error("encode response body", "status", status, "error", err)
		return
	}

	logger := logging.FromContext(ctx)
	switch {
	case status >= http.StatusInternalServerError:
		logger.Error("request failed", "status", status, "response", payload)
	case status >= http.StatusBadRequest:
		logger.Warn("request returned client error", "status", status, "response", payload)
	}
}

// bearerToken extracts the token from an "Authorization: Bearer" header.
// Returns the empty string when the header is absent or malformed.
func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return ""
	}
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}

// authenticate resolves the request's bearer token to a user id. On failure
// it writes the error response itself and returns ok=false; the handler must
// not touch its services afterwards.
func authenticate(w http.ResponseWriter, r *http.Request, sessions SessionService) (int64, bool) {
	ctx := r.Context()

	token := bearerToken(r)
	if token == "" {
		respondJSON(ctx, w, http.StatusUnauthorized, map[string]string{"error": "authentication required"})
		return 0, false
	}

	userID, err := sessions.Validate(ctx, token)
	if err != nil {
		if errors.Is(err, auth.ErrSessionInvalid) {
			respondJSON(ctx, w, http.StatusUnauthorized, map[string]string{"error": "invalid or expired session"})
			return 0, false
		}
		logging.FromContext(ctx).Error("validate session", "error", err)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "unable to validate session"})
		return 0, false
	}

	return userID, true
}
