// Package recordings owns the lifecycle of voice messages: upload, listing,
// read/favorite flags, deletion, and audio playback. Audio payloads live in a
// BlobStore addressed by key; only this package hands out those keys, and the
// database row is the source of truth for who may touch them.
package recordings

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/voicedrop/backend/internal/logging"
	"github.com/voicedrop/backend/internal/metrics"
	"github.com/voicedrop/backend/internal/models"
)

var (
	// ErrNotFound indicates no recording matches the id for the caller. A
	// missing row and a row owned by someone else are indistinguishable.
	ErrNotFound = errors.New("recording not found")
	// ErrRecipientNotFound indicates the target account does not exist.
	ErrRecipientNotFound = errors.New("recipient not found")
	// ErrUnknownView indicates the requested listing view does not exist.
	ErrUnknownView = errors.New("unknown view")
)

// Store persists recording rows and the tombstones left behind when a blob
// outlives its row.
type Store interface {
	Insert(ctx context.Context, rec models.Recording) (models.Recording, error)
	List(ctx context.Context, userID int64, view models.View) ([]models.Recording, error)
	MarkRead(ctx context.Context, id, recipientID int64) error
	ToggleFavorite(ctx context.Context, id, recipientID int64) error
	DeleteReturningKey(ctx context.Context, id, recipientID int64) (string, error)
	FindForParticipant(ctx context.Context, id, userID int64) (models.Recording, error)
	Stats(ctx context.Context, userID int64) (models.Stats, error)
	ClearTombstone(ctx context.Context, audioKey string) error
	ListTombstones(ctx context.Context, olderThan time.Time, limit int) ([]models.BlobTombstone, error)
}

// BlobStore stores audio payloads addressed by key.
type BlobStore interface {
	Save(ctx context.Context, key string, data []byte) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

// CreateParams carries an upload. A nil SenderID records an anonymous send.
type CreateParams struct {
	SenderID    *int64
	RecipientID int64
	Audio       []byte
	Duration    float64
	Transform   models.Transform
}

// Manager implements recording operations on top of a Store and a BlobStore.
type Manager struct {
	store Store
	blobs BlobStore
	now   func() time.Time
}

// NewManager constructs a Manager backed by the provided stores.
func NewManager(store Store, blobs BlobStore) *Manager {
	if store == nil {
		panic("recordings: store must not be nil")
	}
	if blobs == nil {
		panic("recordings: blob store must not be nil")
	}
	return &Manager{store: store, blobs: blobs, now: time.Now}
}

// WithNowFunc allows tests to override the time source used for blob keys.
func (m *Manager) WithNowFunc(now func() time.Time) *Manager {
	if now != nil {
		m.now = now
	}
	return m
}

// Create stores the audio blob, then inserts the row. The orphan direction is
// fixed: a failed insert leaves at worst an unreferenced blob, never a row
// whose audio is missing. Such a blob is deleted best-effort on the spot.
func (m *Manager) Create(ctx context.Context, params CreateParams) (models.Recording, error) {
	if params.RecipientID <= 0 {
		return models.Recording{}, fmt.Errorf("recipient id must be positive, got %d", params.RecipientID)
	}
	if len(params.Audio) == 0 {
		return models.Recording{}, errors.New("audio payload must not be empty")
	}

	transform := params.Transform
	if transform.Kind == "" {
		transform.Kind = models.TransformOriginal
	}

	key := m.audioKey(params.RecipientID)
	if err := m.blobs.Save(ctx, key, params.Audio); err != nil {
		return models.Recording{}, fmt.Errorf("save audio blob %s: %w", key, err)
	}

	rec, err := m.store.Insert(ctx, models.Recording{
		SenderID:    params.SenderID,
		RecipientID: params.RecipientID,
		AudioKey:    key,
		AudioSize:   int64(len(params.Audio)),
		Duration:    params.Duration,
		Transform:   transform,
	})
	if err != nil {
		if delErr := m.blobs.Delete(ctx, key); delErr != nil {
			logging.FromContext(ctx).Error("remove orphaned audio blob", "audioKey", key, "error", delErr)
		}
		return models.Recording{}, err
	}

	metrics.RecordingsCreatedTotal.WithLabelValues(transform.Kind).Inc()
	return rec, nil
}

// List returns the caller's recordings for the given view, newest first.
func (m *Manager) List(ctx context.Context, userID int64, view models.View) ([]models.Recording, error) {
	switch view {
	case models.ViewInbox, models.ViewSent, models.ViewFavorites:
	default:
		return nil, fmt.Errorf("%w %q", ErrUnknownView, view)
	}
	return m.store.List(ctx, userID, view)
}

// MarkRead flags a received recording as read. Rows that do not exist or
// belong to another recipient are left untouched and no error is reported.
func (m *Manager) MarkRead(ctx context.Context, id, recipientID int64) error {
	return m.store.MarkRead(ctx, id, recipientID)
}

// ToggleFavorite flips the favorite flag on a received recording. Same quiet
// scoping as MarkRead.
func (m *Manager) ToggleFavorite(ctx context.Context, id, recipientID int64) error {
	return m.store.ToggleFavorite(ctx, id, recipientID)
}

// Delete removes a recording the caller received. The row and its tombstone
// move in one transaction; the blob delete happens after commit, so a storage
// failure costs at most an orphaned blob the reaper retries later. The caller
// sees success as soon as the row is gone.
func (m *Manager) Delete(ctx context.Context, id, recipientID int64) error {
	ctx, span := logging.StartSpan(ctx, "recordings.delete")
	defer span.End()

	key, err := m.store.DeleteReturningKey(ctx, id, recipientID)
	if err != nil {
		return err
	}
	metrics.RecordingsDeletedTotal.Inc()

	if err := m.blobs.Delete(ctx, key); err != nil {
		metrics.BlobDeleteFailuresTotal.Inc()
		logging.FromContext(ctx).Error("delete audio blob", "audioKey", key, "error", err)
		return nil
	}
	if err := m.store.ClearTombstone(ctx, key); err != nil {
		logging.FromContext(ctx).Warn("clear blob tombstone", "audioKey", key, "error", err)
	}
	return nil
}

// Audio opens the stored payload for a recording the caller sent or received.
// The caller owns closing the returned reader.
func (m *Manager) Audio(ctx context.Context, id, userID int64) (io.ReadCloser, models.Recording, error) {
	rec, err := m.store.FindForParticipant(ctx, id, userID)
	if err != nil {
		return nil, models.Recording{}, err
	}

	rc, err := m.blobs.Open(ctx, rec.AudioKey)
	if err != nil {
		return nil, models.Recording{}, fmt.Errorf("open audio blob %s: %w", rec.AudioKey, err)
	}
	return rc, rec, nil
}

// Stats returns the caller's received, sent, favorite, and unread counts.
func (m *Manager) Stats(ctx context.Context, userID int64) (models.Stats, error) {
	return m.store.Stats(ctx, userID)
}

func (m *Manager) audioKey(recipientID int64) string {
	return fmt.Sprintf("recording_%d_%d.wav", recipientID, m.now().UnixMilli())
}
