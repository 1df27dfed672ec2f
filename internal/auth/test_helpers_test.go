package auth

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/nerrad567/docgate/internal/infrastructure/database"
	"github.com/nerrad567/docgate/migrations"
)

const testSecret = "test-secret-key-at-least-32-chars!"

// testDB creates a temporary SQLite database with all migrations applied.
func testDB(t *testing.T) *sql.DB {
	t.Helper()

	ctx := context.Background()
	db, err := database.Open(ctx, database.Config{
		Path:        filepath.Join(t.TempDir(), "auth-test.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup

	if err := db.Migrate(ctx, migrations.FS); err != nil {
		t.Fatalf("migrating test db: %v", err)
	}
	return db.DB
}

// fakeClock is a settable time source for TokenService.
type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestTokenService(t *testing.T, opts ...TokenOption) *TokenService {
	t.Helper()
	s, err := NewTokenService(TokenConfig{Secret: testSecret, Algorithm: "HS256", Expiry: time.Hour}, opts...)
	if err != nil {
		t.Fatalf("NewTokenService() error = %v", err)
	}
	return s
}

func newTestHasher(t *testing.T) *PasswordHasher {
	t.Helper()
	h, err := NewPasswordHasher(HashConfig{Algorithm: "sha512", SaltLength: 16})
	if err != nil {
		t.Fatalf("NewPasswordHasher() error = %v", err)
	}
	return h
}
