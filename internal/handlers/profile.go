package handlers

import (
	"errors"
	"net/http"

	"github.com/voicedrop/backend/internal/identity"
	"github.com/voicedrop/backend/internal/logging"
)

// ProfileHandler serves public profile lookups.
type ProfileHandler struct {
	Profiles ProfileResolver
}

// Show handles GET /api/v1/profile/{handle} requests. The response carries
// the public projection only; email and id stay private.
func (h ProfileHandler) Show(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if h.Profiles == nil {
		logger.Error("profile resolver unavailable")
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "profile service unavailable"})
		return
	}

	handle := r.PathValue("handle")
	user, err := h.Profiles.FindByHandle(ctx, handle)
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			respondJSON(ctx, w, http.StatusNotFound, map[string]string{"error": "profile not found"})
			return
		}
		logger.Error("resolve profile", "handle", handle, "error", err)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "unable to resolve profile"})
		return
	}

	respondJSON(ctx, w, http.StatusOK, profileResponse{
		DisplayName: user.DisplayName,
		Handle:      user.Handle,
		Bio:         user.Bio,
	})
}

type profileResponse struct {
	DisplayName string `json:"display_name"`
	Handle      string `json:"handle"`
	Bio         string `json:"bio"`
}
