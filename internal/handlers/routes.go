package handlers

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RegisterRoutes wires HTTP handlers into the provided ServeMux.
func RegisterRoutes(mux *http.ServeMux, deps Dependencies) {
	health := HealthHandler{}
	auth := AuthHandler{Identity: deps.Identity, Sessions: deps.Sessions, Limiter: deps.AuthLimiter}
	profile := ProfileHandler{Profiles: deps.Profiles}
	recs := RecordingHandler{
		Recordings:     deps.Recordings,
		Profiles:       deps.Profiles,
		Sessions:       deps.Sessions,
		Limiter:        deps.UploadLimiter,
		MaxUploadBytes: deps.MaxUploadBytes,
	}

	mux.HandleFunc("/healthz", health.Handle)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/api/v1/auth/signup", auth.SignUp)
	mux.HandleFunc("/api/v1/auth/login", auth.Login)
	mux.HandleFunc("/api/v1/auth/logout", auth.Logout)
	mux.HandleFunc("/api/v1/me", auth.Me)
	mux.HandleFunc("/api/v1/profile/{handle}", profile.Show)
	mux.HandleFunc("/api/v1/recordings", recs.Create)
	mux.HandleFunc("/api/v1/recordings/{key}", recs.ByKey)
	mux.HandleFunc("/api/v1/recordings/{id}/read", recs.MarkRead)
	mux.HandleFunc("/api/v1/recordings/{id}/favorite", recs.ToggleFavorite)
	mux.HandleFunc("/api/v1/recordings/{id}/audio", recs.Audio)
	mux.HandleFunc("/api/v1/stats", recs.Stats)
}

// Dependencies aggregates collaborators required by HTTP handlers.
type Dependencies struct {
	Identity       IdentityService
	Profiles       ProfileResolver
	Sessions       SessionService
	Recordings     RecordingService
	AuthLimiter    RateLimiter
	UploadLimiter  RateLimiter
	MaxUploadBytes int64
}
