// Package repositories provides the PostgreSQL persistence layer. Each store
// satisfies the consumer-defined interface of the package it backs and maps
// database errors onto that package's sentinels.
package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/voicedrop/backend/internal/db"
	"github.com/voicedrop/backend/internal/identity"
	"github.com/voicedrop/backend/internal/models"
	"github.com/voicedrop/backend/internal/recordings"
)

// PostgresUserStore provides PostgreSQL-backed persistence for accounts.
type PostgresUserStore struct {
	pool db.Pool
}

// NewPostgresUserStore constructs a user store backed by PostgreSQL.
func NewPostgresUserStore(pool db.Pool) *PostgresUserStore {
	return &PostgresUserStore{pool: pool}
}

// Create persists a new account and returns it with the generated id. The
// named unique constraints tell an email collision apart from a handle
// collision so the caller knows which one to retry.
func (r *PostgresUserStore) Create(ctx context.Context, user models.User) (models.User, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.User{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	row := conn.QueryRow(ctx, `
        INSERT INTO users (email, password_hash, display_name, profile_handle, bio)
        VALUES ($1, $2, $3, $4, $5)
        RETURNING id, created_at, updated_at
    `, user.Email, user.PasswordHash, user.DisplayName, user.Handle, user.Bio)

	if err := row.Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt); err != nil {
		switch {
		case isUniqueViolation(err, "users_email_key"):
			return models.User{}, identity.ErrEmailTaken
		case isUniqueViolation(err, "users_profile_handle_key"):
			return models.User{}, identity.ErrHandleTaken
		case isUniqueViolation(err, ""):
			return models.User{}, ErrConflict
		}
		return models.User{}, fmt.Errorf("insert user: %w", err)
	}

	return user, nil
}

// FindByEmail fetches an account by exact email match.
func (r *PostgresUserStore) FindByEmail(ctx context.Context, email string) (models.User, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.User{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	row := conn.QueryRow(ctx, `
        SELECT id, email, password_hash, display_name, profile_handle, bio, created_at, updated_at
        FROM users
        WHERE email = $1
    `, email)

	var user models.User
	if err := row.Scan(&user.ID, &user.Email, &user.PasswordHash, &user.DisplayName, &user.Handle, &user.Bio, &user.CreatedAt, &user.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, identity.ErrNotFound
		}
		return models.User{}, fmt.Errorf("select user by email: %w", err)
	}

	return user, nil
}

// FindByHandle fetches an account by profile handle.
func (r *PostgresUserStore) FindByHandle(ctx context.Context, handle string) (models.User, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.User{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	row := conn.QueryRow(ctx, `
        SELECT id, email, password_hash, display_name, profile_handle, bio, created_at, updated_at
        FROM users
        WHERE profile_handle = $1
    `, handle)

	var user models.User
	if err := row.Scan(&user.ID, &user.Email, &user.PasswordHash, &user.DisplayName, &user.Handle, &user.Bio, &user.CreatedAt, &user.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, identity.ErrNotFound
		}
		return models.User{}, fmt.Errorf("select user by handle: %w", err)
	}

	return user, nil
}

// FindByID fetches an account by identifier.
func (r *PostgresUserStore) FindByID(ctx context.Context, id int64) (models.User, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.User{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	row := conn.QueryRow(ctx, `
        SELECT id, email, password_hash, display_name, profile_handle, bio, created_at, updated_at
        FROM users
        WHERE id = $1
    `, id)

	var user models.User
	if err := row.Scan(&user.ID, &user.Email, &user.PasswordHash, &user.DisplayName, &user.Handle, &user.Bio, &user.CreatedAt, &user.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, identity.ErrNotFound
		}
		return models.User{}, fmt.Errorf("select user by id: %w", err)
	}

	return user, nil
}

// PostgresRecordingStore provides PostgreSQL-backed persistence for
// recordings and blob tombstones.
type PostgresRecordingStore struct {
	pool db.Pool
}

// NewPostgresRecordingStore constructs a recording store backed by PostgreSQL.
func NewPostgresRecordingStore(pool db.Pool) *PostgresRecordingStore {
	return &PostgresRecordingStore{pool: pool}
}

// Insert persists a new recording row.
func (r *PostgresRecordingStore) Insert(ctx context.Context, rec models.Recording) (models.Recording, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.Recording{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	row := conn.QueryRow(ctx, `
        INSERT INTO recordings (sender_id, recipient_id, audio_key, audio_size, duration_seconds, transformation_type, pitch_shift, speed_rate)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
        RETURNING id, is_read, is_favorite, created_at
    `, rec.SenderID, rec.RecipientID, rec.AudioKey, rec.AudioSize, rec.Duration, rec.Transform.Kind, rec.Transform.PitchShift, rec.Transform.SpeedRate)

	if err := row.Scan(&rec.ID, &rec.Read, &rec.Favorite, &rec.CreatedAt); err != nil {
		if isForeignKeyViolation(err, "recordings_recipient_id_fkey") {
			return models.Recording{}, recordings.ErrRecipientNotFound
		}
		return models.Recording{}, fmt.Errorf("insert recording: %w", err)
	}

	return rec, nil
}

// List returns the user's recordings for the view, newest first with ids
// breaking timestamp ties. Inbox and favorites annotate the sender when one
// exists; sent annotates the recipient.
func (r *PostgresRecordingStore) List(ctx context.Context, userID int64, view models.View) ([]models.Recording, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var query string
	switch view {
	case models.ViewInbox:
		query = `
        SELECT r.id, r.sender_id, r.recipient_id, r.audio_key, r.audio_size, r.duration_seconds,
               r.transformation_type, r.pitch_shift, r.speed_rate, r.is_read, r.is_favorite, r.created_at,
               COALESCE(s.display_name, ''), COALESCE(s.email, '')
        FROM recordings r
        LEFT JOIN users s ON s.id = r.sender_id
        WHERE r.recipient_id = $1
        ORDER BY r.created_at DESC, r.id ASC
    `
	case models.ViewFavorites:
		query = `
        SELECT r.id, r.sender_id, r.recipient_id, r.audio_key, r.audio_size, r.duration_seconds,
               r.transformation_type, r.pitch_shift, r.speed_rate, r.is_read, r.is_favorite, r.created_at,
               COALESCE(s.display_name, ''), COALESCE(s.email, '')
        FROM recordings r
        LEFT JOIN users s ON s.id = r.sender_id
        WHERE r.recipient_id = $1 AND r.is_favorite
        ORDER BY r.created_at DESC, r.id ASC
    `
	case models.ViewSent:
		query = `
        SELECT r.id, r.sender_id, r.recipient_id, r.audio_key, r.audio_size, r.duration_seconds,
               r.transformation_type, r.pitch_shift, r.speed_rate, r.is_read, r.is_favorite, r.created_at,
               u.display_name, u.email
        FROM recordings r
        JOIN users u ON u.id = r.recipient_id
        WHERE r.sender_id = $1
        ORDER BY r.created_at DESC, r.id ASC
    `
	default:
		return nil, fmt.Errorf("%w %q", recordings.ErrUnknownView, view)
	}

	rows, err := conn.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("query recordings: %w", err)
	}
	defer rows.Close()

	sent := view == models.ViewSent

	var recs []models.Recording
	for rows.Next() {
		var rec models.Recording
		name, email := &rec.SenderName, &rec.SenderEmail
		if sent {
			name, email = &rec.RecipientName, &rec.RecipientEmail
		}
		if err := rows.Scan(
			&rec.ID, &rec.SenderID, &rec.RecipientID, &rec.AudioKey, &rec.AudioSize, &rec.Duration,
			&rec.Transform.Kind, &rec.Transform.PitchShift, &rec.Transform.SpeedRate, &rec.Read, &rec.Favorite, &rec.CreatedAt,
			name, email,
		); err != nil {
			return nil, fmt.Errorf("scan recording: %w", err)
		}
		recs = append(recs, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate recordings: %w", err)
	}

	return recs, nil
}

// MarkRead flags a received recording as read. Zero rows affected means the
// id was missing or scoped to another recipient; both stay quiet.
func (r *PostgresRecordingStore) MarkRead(ctx context.Context, id, recipientID int64) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, `
        UPDATE recordings
        SET is_read = TRUE
        WHERE id = $1 AND recipient_id = $2
    `, id, recipientID)
	if err != nil {
		return fmt.Errorf("update recording read flag: %w", err)
	}

	return nil
}

// ToggleFavorite flips the favorite flag with the same quiet scoping as
// MarkRead.
func (r *PostgresRecordingStore) ToggleFavorite(ctx context.Context, id, recipientID int64) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, `
        UPDATE recordings
        SET is_favorite = NOT is_favorite
        WHERE id = $1 AND recipient_id = $2
    `, id, recipientID)
	if err != nil {
		return fmt.Errorf("update recording favorite flag: %w", err)
	}

	return nil
}

// DeleteReturningKey removes the recipient's recording and records a blob
// tombstone in the same transaction, so a crash between row and blob cleanup
// can never lose track of the blob.
func (r *PostgresRecordingStore) DeleteReturningKey(ctx context.Context, id, recipientID int64) (string, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return "", fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return "", fmt.Errorf("begin delete transaction: %w", err)
	}

	var key string
	err = tx.QueryRow(ctx, `
        DELETE FROM recordings
        WHERE id = $1 AND recipient_id = $2
        RETURNING audio_key
    `, id, recipientID).Scan(&key)
	if err != nil {
		_ = tx.Rollback(ctx)
		if errors.Is(err, pgx.ErrNoRows) {
			return "", recordings.ErrNotFound
		}
		return "", fmt.Errorf("delete recording: %w", err)
	}

	if _, err := tx.Exec(ctx, `
        INSERT INTO blob_tombstones (audio_key)
        VALUES ($1)
        ON CONFLICT (audio_key) DO NOTHING
    `, key); err != nil {
		_ = tx.Rollback(ctx)
		return "", fmt.Errorf("insert blob tombstone: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return "", fmt.Errorf("commit delete transaction: %w", err)
	}

	return key, nil
}

// FindForParticipant returns the recording when the user sent or received it.
func (r *PostgresRecordingStore) FindForParticipant(ctx context.Context, id, userID int64) (models.Recording, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.Recording{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	row := conn.QueryRow(ctx, `
        SELECT id, sender_id, recipient_id, audio_key, audio_size, duration_seconds,
               transformation_type, pitch_shift, speed_rate, is_read, is_favorite, created_at
        FROM recordings
        WHERE id = $1 AND (recipient_id = $2 OR sender_id = $2)
    `, id, userID)

	var rec models.Recording
	if err := row.Scan(
		&rec.ID, &rec.SenderID, &rec.RecipientID, &rec.AudioKey, &rec.AudioSize, &rec.Duration,
		&rec.Transform.Kind, &rec.Transform.PitchShift, &rec.Transform.SpeedRate, &rec.Read, &rec.Favorite, &rec.CreatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Recording{}, recordings.ErrNotFound
		}
		return models.Recording{}, fmt.Errorf("select recording: %w", err)
	}

	return rec, nil
}

// Stats counts the user's recordings in a single pass.
func (r *PostgresRecordingStore) Stats(ctx context.Context, userID int64) (models.Stats, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.Stats{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	row := conn.QueryRow(ctx, `
        SELECT
            COUNT(*) FILTER (WHERE recipient_id = $1) AS received,
            COUNT(*) FILTER (WHERE sender_id = $1) AS sent,
            COUNT(*) FILTER (WHERE recipient_id = $1 AND is_favorite) AS favorites,
            COUNT(*) FILTER (WHERE recipient_id = $1 AND NOT is_read) AS unread
        FROM recordings
        WHERE recipient_id = $1 OR sender_id = $1
    `, userID)

	var stats models.Stats
	if err := row.Scan(&stats.Received, &stats.Sent, &stats.Favorites, &stats.Unread); err != nil {
		return models.Stats{}, fmt.Errorf("select recording stats: %w", err)
	}

	return stats, nil
}

// ClearTombstone removes the tombstone for the blob key.
func (r *PostgresRecordingStore) ClearTombstone(ctx context.Context, audioKey string) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, `
        DELETE FROM blob_tombstones
        WHERE audio_key = $1
    `, audioKey); err != nil {
		return fmt.Errorf("delete blob tombstone: %w", err)
	}

	return nil
}

// ListTombstones returns tombstones older than the cutoff, oldest first.
func (r *PostgresRecordingStore) ListTombstones(ctx context.Context, olderThan time.Time, limit int) ([]models.BlobTombstone, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `
        SELECT audio_key, created_at
        FROM blob_tombstones
        WHERE created_at < $1
        ORDER BY created_at ASC
        LIMIT $2
    `, olderThan, limit)
	if err != nil {
		return nil, fmt.Errorf("query blob tombstones: %w", err)
	}
	defer rows.Close()

	var tombstones []models.BlobTombstone
	for rows.Next() {
		var tombstone models.BlobTombstone
		if err := rows.Scan(&tombstone.AudioKey, &tombstone.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan blob tombstone: %w", err)
		}
		tombstones = append(tombstones, tombstone)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate blob tombstones: %w", err)
	}

	return tombstones, nil
}

var _ identity.UserStore = (*PostgresUserStore)(nil)
var _ recordings.Store = (*PostgresRecordingStore)(nil)
