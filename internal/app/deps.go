package app

import (
	"context"
	"fmt"
	"time"

	"github.com/voicedrop/backend/internal/auth"
	"github.com/voicedrop/backend/internal/config"
	"github.com/voicedrop/backend/internal/db"
	"github.com/voicedrop/backend/internal/handlers"
	"github.com/voicedrop/backend/internal/identity"
	"github.com/voicedrop/backend/internal/middleware"
	"github.com/voicedrop/backend/internal/recordings"
	"github.com/voicedrop/backend/internal/repositories"
	"github.com/voicedrop/backend/internal/storage"
)

// buildDependencies wires together concrete implementations used by the HTTP
// handlers. The recording store and blob store come back separately so serve
// can hand them to the tombstone reaper.
func buildDependencies(ctx context.Context, pool db.Pool, cfg config.Config) (handlers.Dependencies, recordings.Store, recordings.BlobStore, error) {
	blobs, err := newBlobStore(ctx, cfg)
	if err != nil {
		return handlers.Dependencies{}, nil, nil, err
	}

	userStore := repositories.NewPostgresUserStore(pool)
	recordingStore := repositories.NewPostgresRecordingStore(pool)
	sessionStore := repositories.NewPostgresSessionStore(pool)

	identityManager := identity.NewManager(userStore, auth.PasswordHasher{})

	deps := handlers.Dependencies{
		Identity:       identityManager,
		Profiles:       identity.NewCachingResolver(identityManager, cfg.HandleCacheTTL),
		Sessions:       auth.NewManager(cfg.SessionTTL, sessionStore),
		Recordings:     recordings.NewManager(recordingStore, blobs),
		AuthLimiter:    middleware.NewIPRateLimiter(cfg.RateLimit.AuthPerMinute, time.Minute, cfg.RateLimit.AuthPerMinute, 10*time.Minute),
		UploadLimiter:  middleware.NewIPRateLimiter(cfg.RateLimit.UploadPerMinute, time.Minute, cfg.RateLimit.UploadPerMinute, 10*time.Minute),
		MaxUploadBytes: cfg.MaxUploadBytes,
	}

	return deps, recordingStore, blobs, nil
}

func newBlobStore(ctx context.Context, cfg config.Config) (recordings.BlobStore, error) {
	switch cfg.Blob.Backend {
	case config.BlobBackendS3:
		return storage.NewS3Store(ctx, cfg.Blob)
	case config.BlobBackendLocal, "":
		return storage.NewLocalStore(cfg.Blob.Dir)
	default:
		return nil, fmt.Errorf("unknown blob backend %q", cfg.Blob.Backend)
	}
}
