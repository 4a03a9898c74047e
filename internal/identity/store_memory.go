package identity

import (
	"context"
	"sync"
	"time"

	"github.com/voicedrop/backend/internal/models"
)

// NewInMemoryUserStore returns a UserStore backed by in-memory maps.
func NewInMemoryUserStore() *InMemoryUserStore {
	return &InMemoryUserStore{
		byEmail:  make(map[string]int64),
		byHandle: make(map[string]int64),
		users:    make(map[int64]models.User),
	}
}

// InMemoryUserStore implements UserStore for tests and local development.
type InMemoryUserStore struct {
	mu       sync.RWMutex
	nextID   int64
	byEmail  map[string]int64
	byHandle map[string]int64
	users    map[int64]models.User
}

// Create persists the account, assigning it the next identifier. Email and
// handle comparisons are exact, matching the database's unique constraints.
func (s *InMemoryUserStore) Create(_ context.Context, user models.User) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byEmail[user.Email]; ok {
		return models.User{}, ErrEmailTaken
	}
	if _, ok := s.byHandle[user.Handle]; ok {
		return models.User{}, ErrHandleTaken
	}

	s.nextID++
	user.ID = s.nextID
	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	if user.UpdatedAt.IsZero() {
		user.UpdatedAt = now
	}

	s.byEmail[user.Email] = user.ID
	s.byHandle[user.Handle] = user.ID
	s.users[user.ID] = user
	return user, nil
}

// FindByEmail retrieves an account by exact email match.
func (s *InMemoryUserStore) FindByEmail(_ context.Context, email string) (models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byEmail[email]
	if !ok {
		return models.User{}, ErrNotFound
	}
	return s.users[id], nil
}

// FindByHandle retrieves an account by profile handle.
func (s *InMemoryUserStore) FindByHandle(_ context.Context, handle string) (models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byHandle[handle]
	if !ok {
		return models.User{}, ErrNotFound
	}
	return s.users[id], nil
}

// FindByID retrieves an account by identifier.
func (s *InMemoryUserStore) FindByID(_ context.Context, id int64) (models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.users[id]
	if !ok {
		return models.User{}, ErrNotFound
	}
	return user, nil
}

var _ UserStore = (*InMemoryUserStore)(nil)
