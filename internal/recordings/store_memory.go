package recordings

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/voicedrop/backend/internal/models"
)

// NewInMemoryStore returns a Store backed by in-memory state.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{tombstones: make(map[string]time.Time)}
}

// InMemoryStore implements Store for tests and local development. It does not
// know about accounts, so sender and recipient annotations stay empty and
// recipient existence is the caller's problem.
type InMemoryStore struct {
	mu         sync.RWMutex
	nextID     int64
	recordings []models.Recording
	tombstones map[string]time.Time
}

// Insert persists the recording, assigning it the next identifier.
func (s *InMemoryStore) Insert(_ context.Context, rec models.Recording) (models.Recording, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	rec.ID = s.nextID
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	s.recordings = append(s.recordings, rec)
	return rec, nil
}

// List returns the user's recordings for the view, newest first with ids
// breaking timestamp ties.
func (s *InMemoryStore) List(_ context.Context, userID int64, view models.View) ([]models.Recording, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Recording
	for _, rec := range s.recordings {
		switch view {
		case models.ViewInbox:
			if rec.RecipientID == userID {
				out = append(out, rec)
			}
		case models.ViewFavorites:
			if rec.RecipientID == userID && rec.Favorite {
				out = append(out, rec)
			}
		case models.ViewSent:
			if rec.SenderID != nil && *rec.SenderID == userID {
				out = append(out, rec)
			}
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// MarkRead flags the recording as read when it belongs to the recipient.
func (s *InMemoryStore) MarkRead(_ context.Context, id, recipientID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.recordings {
		if s.recordings[i].ID == id && s.recordings[i].RecipientID == recipientID {
			s.recordings[i].Read = true
		}
	}
	return nil
}

// ToggleFavorite flips the favorite flag when the recording belongs to the
// recipient.
func (s *InMemoryStore) ToggleFavorite(_ context.Context, id, recipientID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.recordings {
		if s.recordings[i].ID == id && s.recordings[i].RecipientID == recipientID {
			s.recordings[i].Favorite = !s.recordings[i].Favorite
		}
	}
	return nil
}

// DeleteReturningKey removes the recipient's recording and records a
// tombstone for its blob key.
func (s *InMemoryStore) DeleteReturningKey(_ context.Context, id, recipientID int64) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.recordings {
		if s.recordings[i].ID == id && s.recordings[i].RecipientID == recipientID {
			key := s.recordings[i].AudioKey
			s.recordings = append(s.recordings[:i], s.recordings[i+1:]...)
			s.tombstones[key] = time.Now().UTC()
			return key, nil
		}
	}
	return "", ErrNotFound
}

// FindForParticipant returns the recording when the user sent or received it.
func (s *InMemoryStore) FindForParticipant(_ context.Context, id, userID int64) (models.Recording, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, rec := range s.recordings {
		if rec.ID != id {
			continue
		}
		if rec.RecipientID == userID || (rec.SenderID != nil && *rec.SenderID == userID) {
			return rec, nil
		}
	}
	return models.Recording{}, ErrNotFound
}

// Stats counts the user's recordings.
func (s *InMemoryStore) Stats(_ context.Context, userID int64) (models.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var stats models.Stats
	for _, rec := range s.recordings {
		if rec.RecipientID == userID {
			stats.Received++
			if rec.Favorite {
				stats.Favorites++
			}
			if !rec.Read {
				stats.Unread++
			}
		}
		if rec.SenderID != nil && *rec.SenderID == userID {
			stats.Sent++
		}
	}
	return stats, nil
}

// ClearTombstone removes the tombstone for the blob key.
func (s *InMemoryStore) ClearTombstone(_ context.Context, audioKey string) error {
	s.mu.Lock()
	delete(s.tombstones, audioKey)
	s.mu.Unlock()
	return nil
}

// ListTombstones returns tombstones older than the cutoff, oldest first.
func (s *InMemoryStore) ListTombstones(_ context.Context, olderThan time.Time, limit int) ([]models.BlobTombstone, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.BlobTombstone
	for key, createdAt := range s.tombstones {
		if createdAt.Before(olderThan) {
			out = append(out, models.BlobTombstone{AudioKey: key, CreatedAt: createdAt})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// HasTombstone reports whether a tombstone exists for the key. Useful for
// tests.
func (s *InMemoryStore) HasTombstone(audioKey string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.tombstones[audioKey]
	return ok
}

var _ Store = (*InMemoryStore)(nil)
