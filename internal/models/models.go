package models

import "time"

// User represents a registered voicedrop account. PasswordHash never leaves
// the identity layer; handlers project the public or private subset instead.
type User struct {
	ID           int64
	Email        string
	PasswordHash string
	DisplayName  string
	Handle       string
	Bio          string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Session is a bearer credential bound to a user with an absolute expiry.
// The token is opaque: validity is a row lookup plus a clock check, nothing
// is encoded or signed into the token itself.
type Session struct {
	Token     string
	UserID    int64
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Transform describes the voice effect applied to a recording before it was
// submitted. Kind is a free-form tag; the backend stores it verbatim.
type Transform struct {
	Kind       string
	PitchShift float64
	SpeedRate  float64
}

// TransformOriginal is the Kind recorded when no effect was applied.
const TransformOriginal = "original"

// Recording is a voice message addressed to a recipient. SenderID is nil for
// anonymous submissions. SenderName/SenderEmail are join annotations filled
// on inbox and favorites views; RecipientName/RecipientEmail on the sent
// view. AudioKey locates the blob in the configured store.
type Recording struct {
	ID          int64
	SenderID    *int64
	RecipientID int64
	AudioKey    string
	AudioSize   int64
	Duration    float64
	Transform   Transform
	Read        bool
	Favorite    bool
	CreatedAt   time.Time

	SenderName     string
	SenderEmail    string
	RecipientName  string
	RecipientEmail string
}

// View selects one of the per-user recording listings.
type View string

const (
	// ViewInbox lists recordings addressed to the user, newest first.
	ViewInbox View = "inbox"
	// ViewSent lists recordings the user sent while authenticated.
	ViewSent View = "sent"
	// ViewFavorites lists inbox recordings the user has favorited.
	ViewFavorites View = "favorites"
)

// Stats aggregates a user's recording counts.
type Stats struct {
	Received  int64
	Sent      int64
	Favorites int64
	Unread    int64
}

// BlobTombstone records an audio blob whose database row is gone but whose
// bytes may still exist in the blob store. The reaper retries removal until
// the tombstone clears.
type BlobTombstone struct {
	AudioKey  string
	CreatedAt time.Time
}
