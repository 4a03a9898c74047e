package handlers

import (
	"context"
	"io"

	"github.com/voicedrop/backend/internal/models"
	"github.com/voicedrop/backend/internal/recordings"
)

// IdentityService is the account surface required by the auth endpoints.
type IdentityService interface {
	Register(ctx context.Context, email, password, displayName string) (models.User, error)
	Authenticate(ctx context.Context, email, password string) (models.User, error)
	FindByID(ctx context.Context, id int64) (models.User, error)
}

// ProfileResolver resolves profile handles to accounts.
type ProfileResolver interface {
	FindByHandle(ctx context.Context, handle string) (models.User, error)
}

// SessionService issues, validates, and revokes bearer sessions.
type SessionService interface {
	Issue(ctx context.Context, userID int64) (models.Session, error)
	Validate(ctx context.Context, token string) (int64, error)
	Revoke(ctx context.Context, token string)
}

// RecordingService is the voice message surface required by the recording
// endpoints.
type RecordingService interface {
	Create(ctx context.Context, params recordings.CreateParams) (models.Recording, error)
	List(ctx context.Context, userID int64, view models.View) ([]models.Recording, error)
	MarkRead(ctx context.Context, id, recipientID int64) error
	ToggleFavorite(ctx context.Context, id, recipientID int64) error
	Delete(ctx context.Context, id, recipientID int64) error
	Audio(ctx context.Context, id, userID int64) (io.ReadCloser, models.Recording, error)
	Stats(ctx context.Context, userID int64) (models.Stats, error)
}
