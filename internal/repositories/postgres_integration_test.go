package repositories

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/cockroachdb/cockroach-go/v2/testserver"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/voicedrop/backend/internal/auth"
	"github.com/voicedrop/backend/internal/identity"
	"github.com/voicedrop/backend/internal/models"
	"github.com/voicedrop/backend/internal/recordings"
)

var testPool *pgxpool.Pool

func TestMain(m *testing.M) {
	server, err := testserver.NewTestServer()
	if err != nil {
		fmt.Fprintf(os.Stderr, "start cockroach test server: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, server.PGURL().String())
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect to cockroach test server: %v\n", err)
		server.Stop()
		os.Exit(1)
	}

	if err := applyMigrations(ctx, pool); err != nil {
		fmt.Fprintf(os.Stderr, "apply migrations: %v\n", err)
		pool.Close()
		server.Stop()
		os.Exit(1)
	}

	testPool = pool

	code := m.Run()

	pool.Close()
	server.Stop()

	os.Exit(code)
}

func TestPostgresUserStore_CreateAndFind(t *testing.T) {
	ctx := context.Background()
	resetDatabase(t)

	store := NewPostgresUserStore(testPool)

	created, err := store.Create(ctx, models.User{
		Email:        "Alice@Example.com",
		PasswordHash: "secret-hash",
		DisplayName:  "Alice",
		Handle:       "alice-aabbccdd",
	})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	if created.ID == 0 {
		t.Fatal("expected generated user id")
	}
	if created.CreatedAt.IsZero() || created.UpdatedAt.IsZero() {
		t.Fatalf("expected database timestamps, got %+v", created)
	}

	if _, err := store.Create(ctx, models.User{
		Email:        "Alice@Example.com",
		PasswordHash: "other-hash",
		Handle:       "alice-ffffffff",
	}); !errors.Is(err, identity.ErrEmailTaken) {
		t.Fatalf("expected email taken for duplicate email, got %v", err)
	}

	if _, err := store.Create(ctx, models.User{
		Email:        "alice2@example.com",
		PasswordHash: "other-hash",
		Handle:       "alice-aabbccdd",
	}); !errors.Is(err, identity.ErrHandleTaken) {
		t.Fatalf("expected handle taken for duplicate handle, got %v", err)
	}

	fetched, err := store.FindByEmail(ctx, "Alice@Example.com")
	if err != nil {
		t.Fatalf("find by email: %v", err)
	}
	if fetched.ID != created.ID || fetched.PasswordHash != "secret-hash" {
		t.Fatalf("unexpected user fetched: %+v", fetched)
	}

	// Email lookups are byte-exact.
	if _, err := store.FindByEmail(ctx, "alice@example.com"); !errors.Is(err, identity.ErrNotFound) {
		t.Fatalf("expected not found for differently cased email, got %v", err)
	}

	byHandle, err := store.FindByHandle(ctx, "alice-aabbccdd")
	if err != nil {
		t.Fatalf("find by handle: %v", err)
	}
	if byHandle.ID != created.ID {
		t.Fatalf("expected user %d got %d", created.ID, byHandle.ID)
	}
	if _, err := store.FindByHandle(ctx, "nobody-00000000"); !errors.Is(err, identity.ErrNotFound) {
		t.Fatalf("expected not found for unknown handle, got %v", err)
	}

	byID, err := store.FindByID(ctx, created.ID)
	if err != nil {
		t.Fatalf("find by id: %v", err)
	}
	if byID.Email != created.Email {
		t.Fatalf("expected email %q got %q", created.Email, byID.Email)
	}
	if _, err := store.FindByID(ctx, created.ID+99999); !errors.Is(err, identity.ErrNotFound) {
		t.Fatalf("expected not found for unknown id, got %v", err)
	}
}

func TestPostgresSessionStore_SaveFindAndDelete(t *testing.T) {
	ctx := context.Background()
	resetDatabase(t)

	userStore := NewPostgresUserStore(testPool)
	user := createTestUser(t, userStore, "owner@example.com")

	store := NewPostgresSessionStore(testPool)
	expires := time.Now().UTC().Add(24 * time.Hour)
	session := models.Session{
		Token:     uuid.NewString(),
		UserID:    user.ID,
		ExpiresAt: expires,
		CreatedAt: time.Now().UTC(),
	}

	if err := store.Save(ctx, session); err != nil {
		t.Fatalf("save session: %v", err)
	}

	loaded, err := store.Find(ctx, session.Token)
	if err != nil {
		t.Fatalf("find session: %v", err)
	}
	if loaded.UserID != session.UserID || !timesClose(loaded.ExpiresAt, expires, time.Millisecond) {
		t.Fatalf("unexpected session loaded: %+v", loaded)
	}

	updated := session
	updated.ExpiresAt = expires.Add(48 * time.Hour)
	if err := store.Save(ctx, updated); err != nil {
		t.Fatalf("update session: %v", err)
	}

	loaded, err = store.Find(ctx, session.Token)
	if err != nil {
		t.Fatalf("find session after update: %v", err)
	}
	if !timesClose(loaded.ExpiresAt, updated.ExpiresAt, time.Millisecond) {
		t.Fatalf("expected updated expiry, got %v", loaded.ExpiresAt)
	}

	if err := store.Delete(ctx, session.Token); err != nil {
		t.Fatalf("delete session: %v", err)
	}
	if _, err := store.Find(ctx, session.Token); !errors.Is(err, auth.ErrSessionInvalid) {
		t.Fatalf("expected session invalid after delete, got %v", err)
	}
	if err := store.Delete(ctx, session.Token); !errors.Is(err, auth.ErrSessionInvalid) {
		t.Fatalf("expected session invalid deleting twice, got %v", err)
	}
}

func TestPostgresRecordingStore_InsertAndList(t *testing.T) {
	ctx := context.Background()
	resetDatabase(t)

	userStore := NewPostgresUserStore(testPool)
	alice := createTestUser(t, userStore, "alice@example.com")
	bob := createTestUser(t, userStore, "bob@example.com")

	store := NewPostgresRecordingStore(testPool)

	authored, err := store.Insert(ctx, models.Recording{
		SenderID:    &alice.ID,
		RecipientID: bob.ID,
		AudioKey:    "recording_b_1.wav",
		AudioSize:   100,
		Duration:    2.5,
		Transform:   models.Transform{Kind: "robot", PitchShift: -2, SpeedRate: 1},
	})
	if err != nil {
		t.Fatalf("insert authored recording: %v", err)
	}
	if authored.ID == 0 {
		t.Fatal("expected generated recording id")
	}
	if authored.Read || authored.Favorite {
		t.Fatalf("expected fresh flags, got %+v", authored)
	}

	anonymous, err := store.Insert(ctx, models.Recording{
		RecipientID: bob.ID,
		AudioKey:    "recording_b_2.wav",
		AudioSize:   50,
		Transform:   models.Transform{Kind: models.TransformOriginal, SpeedRate: 1},
	})
	if err != nil {
		t.Fatalf("insert anonymous recording: %v", err)
	}

	if _, err := store.Insert(ctx, models.Recording{
		RecipientID: bob.ID + 99999,
		AudioKey:    "recording_x_1.wav",
		Transform:   models.Transform{Kind: models.TransformOriginal},
	}); !errors.Is(err, recordings.ErrRecipientNotFound) {
		t.Fatalf("expected recipient not found for dangling fk, got %v", err)
	}

	// Pin timestamps so ordering is deterministic: the authored recording is
	// older, the anonymous one newer.
	base := time.Now().UTC().Truncate(time.Second)
	pinCreatedAt(t, authored.ID, base.Add(-time.Minute))
	pinCreatedAt(t, anonymous.ID, base)

	inbox, err := store.List(ctx, bob.ID, models.ViewInbox)
	if err != nil {
		t.Fatalf("list inbox: %v", err)
	}
	if len(inbox) != 2 {
		t.Fatalf("expected 2 inbox recordings got %d", len(inbox))
	}
	if inbox[0].ID != anonymous.ID || inbox[1].ID != authored.ID {
		t.Fatalf("unexpected inbox order: %+v", inbox)
	}
	if inbox[0].SenderID != nil || inbox[0].SenderName != "" || inbox[0].SenderEmail != "" {
		t.Fatalf("expected anonymous entry unannotated, got %+v", inbox[0])
	}
	if inbox[1].SenderID == nil || *inbox[1].SenderID != alice.ID {
		t.Fatalf("expected sender id %d, got %+v", alice.ID, inbox[1])
	}
	if inbox[1].SenderName != alice.DisplayName || inbox[1].SenderEmail != alice.Email {
		t.Fatalf("expected sender annotations, got %+v", inbox[1])
	}
	if inbox[1].Transform.Kind != "robot" || inbox[1].Transform.PitchShift != -2 {
		t.Fatalf("expected transform round-trip, got %+v", inbox[1].Transform)
	}

	sent, err := store.List(ctx, alice.ID, models.ViewSent)
	if err != nil {
		t.Fatalf("list sent: %v", err)
	}
	if len(sent) != 1 || sent[0].ID != authored.ID {
		t.Fatalf("expected only the authored recording in sent, got %+v", sent)
	}
	if sent[0].RecipientName != bob.DisplayName || sent[0].RecipientEmail != bob.Email {
		t.Fatalf("expected recipient annotations, got %+v", sent[0])
	}

	// Equal timestamps fall back to id order.
	third, err := store.Insert(ctx, models.Recording{
		RecipientID: bob.ID,
		AudioKey:    "recording_b_3.wav",
		Transform:   models.Transform{Kind: models.TransformOriginal},
	})
	if err != nil {
		t.Fatalf("insert third recording: %v", err)
	}
	pinCreatedAt(t, third.ID, base)

	inbox, err = store.List(ctx, bob.ID, models.ViewInbox)
	if err != nil {
		t.Fatalf("list inbox after tie: %v", err)
	}
	if len(inbox) != 3 {
		t.Fatalf("expected 3 inbox recordings got %d", len(inbox))
	}
	if inbox[0].ID != anonymous.ID || inbox[1].ID != third.ID || inbox[2].ID != authored.ID {
		t.Fatalf("unexpected tie-break order: %d, %d, %d", inbox[0].ID, inbox[1].ID, inbox[2].ID)
	}
}

func TestPostgresRecordingStore_Flags(t *testing.T) {
	ctx := context.Background()
	resetDatabase(t)

	userStore := NewPostgresUserStore(testPool)
	bob := createTestUser(t, userStore, "bob@example.com")

	store := NewPostgresRecordingStore(testPool)
	rec, err := store.Insert(ctx, models.Recording{
		RecipientID: bob.ID,
		AudioKey:    "recording_b_1.wav",
		Transform:   models.Transform{Kind: models.TransformOriginal},
	})
	if err != nil {
		t.Fatalf("insert recording: %v", err)
	}

	// Mis-scoped updates succeed without touching the row.
	if err := store.MarkRead(ctx, rec.ID, bob.ID+1); err != nil {
		t.Fatalf("mark read wrong recipient: %v", err)
	}
	got, err := store.FindForParticipant(ctx, rec.ID, bob.ID)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if got.Read {
		t.Fatal("mis-scoped mark read must not flip the flag")
	}

	if err := store.MarkRead(ctx, rec.ID, bob.ID); err != nil {
		t.Fatalf("mark read: %v", err)
	}
	got, err = store.FindForParticipant(ctx, rec.ID, bob.ID)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if !got.Read {
		t.Fatal("expected recording marked read")
	}

	if err := store.ToggleFavorite(ctx, rec.ID, bob.ID); err != nil {
		t.Fatalf("toggle favorite: %v", err)
	}
	got, err = store.FindForParticipant(ctx, rec.ID, bob.ID)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if !got.Favorite {
		t.Fatal("expected favorite set")
	}

	if err := store.ToggleFavorite(ctx, rec.ID, bob.ID); err != nil {
		t.Fatalf("toggle favorite again: %v", err)
	}
	got, err = store.FindForParticipant(ctx, rec.ID, bob.ID)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if got.Favorite {
		t.Fatal("expected favorite cleared after second toggle")
	}
}

func TestPostgresRecordingStore_DeleteAndTombstones(t *testing.T) {
	ctx := context.Background()
	resetDatabase(t)

	userStore := NewPostgresUserStore(testPool)
	bob := createTestUser(t, userStore, "bob@example.com")

	store := NewPostgresRecordingStore(testPool)
	rec, err := store.Insert(ctx, models.Recording{
		RecipientID: bob.ID,
		AudioKey:    "recording_b_1.wav",
		Transform:   models.Transform{Kind: models.TransformOriginal},
	})
	if err != nil {
		t.Fatalf("insert recording: %v", err)
	}

	if _, err := store.DeleteReturningKey(ctx, rec.ID, bob.ID+1); !errors.Is(err, recordings.ErrNotFound) {
		t.Fatalf("expected not found deleting as wrong recipient, got %v", err)
	}

	key, err := store.DeleteReturningKey(ctx, rec.ID, bob.ID)
	if err != nil {
		t.Fatalf("delete recording: %v", err)
	}
	if key != "recording_b_1.wav" {
		t.Fatalf("unexpected audio key %q", key)
	}
	if _, err := store.FindForParticipant(ctx, rec.ID, bob.ID); !errors.Is(err, recordings.ErrNotFound) {
		t.Fatalf("expected row gone after delete, got %v", err)
	}
	if _, err := store.DeleteReturningKey(ctx, rec.ID, bob.ID); !errors.Is(err, recordings.ErrNotFound) {
		t.Fatalf("expected not found deleting twice, got %v", err)
	}

	tombstones, err := store.ListTombstones(ctx, time.Now().UTC().Add(time.Hour), 10)
	if err != nil {
		t.Fatalf("list tombstones: %v", err)
	}
	if len(tombstones) != 1 || tombstones[0].AudioKey != key {
		t.Fatalf("expected one tombstone for %q, got %+v", key, tombstones)
	}

	// The grace cutoff hides fresh tombstones.
	old, err := store.ListTombstones(ctx, time.Now().UTC().Add(-time.Hour), 10)
	if err != nil {
		t.Fatalf("list old tombstones: %v", err)
	}
	if len(old) != 0 {
		t.Fatalf("expected no tombstones past the old cutoff, got %+v", old)
	}

	if err := store.ClearTombstone(ctx, key); err != nil {
		t.Fatalf("clear tombstone: %v", err)
	}
	tombstones, err = store.ListTombstones(ctx, time.Now().UTC().Add(time.Hour), 10)
	if err != nil {
		t.Fatalf("list tombstones after clear: %v", err)
	}
	if len(tombstones) != 0 {
		t.Fatalf("expected tombstone cleared, got %+v", tombstones)
	}
	// Clearing an absent tombstone is a no-op.
	if err := store.ClearTombstone(ctx, key); err != nil {
		t.Fatalf("repeat clear tombstone: %v", err)
	}
}

func TestPostgresRecordingStore_FindForParticipant(t *testing.T) {
	ctx := context.Background()
	resetDatabase(t)

	userStore := NewPostgresUserStore(testPool)
	alice := createTestUser(t, userStore, "alice@example.com")
	bob := createTestUser(t, userStore, "bob@example.com")
	carol := createTestUser(t, userStore, "carol@example.com")

	store := NewPostgresRecordingStore(testPool)
	rec, err := store.Insert(ctx, models.Recording{
		SenderID:    &alice.ID,
		RecipientID: bob.ID,
		AudioKey:    "recording_b_1.wav",
		Transform:   models.Transform{Kind: models.TransformOriginal},
	})
	if err != nil {
		t.Fatalf("insert recording: %v", err)
	}

	for _, userID := range []int64{alice.ID, bob.ID} {
		got, err := store.FindForParticipant(ctx, rec.ID, userID)
		if err != nil {
			t.Fatalf("find as user %d: %v", userID, err)
		}
		if got.AudioKey != "recording_b_1.wav" {
			t.Fatalf("unexpected recording %+v", got)
		}
	}

	if _, err := store.FindForParticipant(ctx, rec.ID, carol.ID); !errors.Is(err, recordings.ErrNotFound) {
		t.Fatalf("expected not found for stranger, got %v", err)
	}
}

func TestPostgresRecordingStore_Stats(t *testing.T) {
	ctx := context.Background()
	resetDatabase(t)

	userStore := NewPostgresUserStore(testPool)
	alice := createTestUser(t, userStore, "alice@example.com")
	bob := createTestUser(t, userStore, "bob@example.com")

	store := NewPostgresRecordingStore(testPool)

	first, err := store.Insert(ctx, models.Recording{
		SenderID:    &alice.ID,
		RecipientID: bob.ID,
		AudioKey:    "recording_b_1.wav",
		Transform:   models.Transform{Kind: models.TransformOriginal},
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if _, err := store.Insert(ctx, models.Recording{
		RecipientID: bob.ID,
		AudioKey:    "recording_b_2.wav",
		Transform:   models.Transform{Kind: models.TransformOriginal},
	}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	if err := store.MarkRead(ctx, first.ID, bob.ID); err != nil {
		t.Fatalf("mark read: %v", err)
	}
	if err := store.ToggleFavorite(ctx, first.ID, bob.ID); err != nil {
		t.Fatalf("toggle favorite: %v", err)
	}

	stats, err := store.Stats(ctx, bob.ID)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	want := models.Stats{Received: 2, Sent: 0, Favorites: 1, Unread: 1}
	if stats != want {
		t.Fatalf("expected %+v got %+v", want, stats)
	}

	stats, err = store.Stats(ctx, alice.ID)
	if err != nil {
		t.Fatalf("stats for sender: %v", err)
	}
	if stats.Sent != 1 || stats.Received != 0 {
		t.Fatalf("expected sender stats, got %+v", stats)
	}
}

func applyMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	migrationsDir := filepath.Join("..", "..", "migrations")
	entries, err := os.ReadDir(migrationsDir)
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		contents, err := os.ReadFile(filepath.Join(migrationsDir, entry.Name()))
		if err != nil {
			return fmt.Errorf("read migration %s: %w", entry.Name(), err)
		}

		if _, err := pool.Exec(ctx, string(contents)); err != nil {
			return fmt.Errorf("apply migration %s: %w", entry.Name(), err)
		}
	}

	return nil
}

func resetDatabase(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	conn, err := testPool.Acquire(ctx)
	if err != nil {
		t.Fatalf("acquire connection: %v", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "TRUNCATE TABLE blob_tombstones, recordings, sessions, users CASCADE"); err != nil {
		t.Fatalf("truncate tables: %v", err)
	}
}

func createTestUser(t *testing.T, store *PostgresUserStore, email string) models.User {
	t.Helper()
	local := email
	if at := strings.IndexByte(email, '@'); at >= 0 {
		local = email[:at]
	}
	user, err := store.Create(context.Background(), models.User{
		Email:        email,
		PasswordHash: "password-hash",
		DisplayName:  local,
		Handle:       local + "-12345678",
	})
	if err != nil {
		t.Fatalf("create test user: %v", err)
	}
	return user
}

func pinCreatedAt(t *testing.T, recordingID int64, createdAt time.Time) {
	t.Helper()
	if _, err := testPool.Exec(context.Background(), "UPDATE recordings SET created_at = $1 WHERE id = $2", createdAt, recordingID); err != nil {
		t.Fatalf("pin created_at: %v", err)
	}
}

func timesClose(a, b time.Time, delta time.Duration) bool {
	diff := a.Sub(b)
	if diff < 0 {
		diff = -diff
	}
	return diff <= delta
}
