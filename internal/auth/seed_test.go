package auth

import (
	"context"
	"testing"

	"github.com/nerrad567/docgate/internal/infrastructure/logging"
)

func TestSeedUsers_CreatesMissing(t *testing.T) {
	repo := NewUserRepository(testDB(t))
	ctx := context.Background()
	logger := logging.Discard()

	users := []User{
		{Username: "alice", PasswordHash: "ab12$deadbeef"},
		{Username: "kiosk"},
	}

	created, err := SeedUsers(ctx, repo, users, logger.Logger)
	if err != nil {
		t.Fatalf("SeedUsers() error = %v", err)
	}
	if created != 2 {
		t.Errorf("SeedUsers() created = %d, want 2", created)
	}

	alice, err := repo.Lookup(ctx, "alice")
	if err != nil {
		t.Fatalf("Lookup(alice) error = %v", err)
	}
	if alice.PasswordHash != "ab12$deadbeef" {
		t.Errorf("seeded hash = %q, want stored as-is", alice.PasswordHash)
	}
}

func TestSeedUsers_SkipsExisting(t *testing.T) {
	repo := NewUserRepository(testDB(t))
	ctx := context.Background()
	logger := logging.Discard()

	if err := repo.Create(ctx, &User{Username: "alice", PasswordHash: "keep$me"}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	created, err := SeedUsers(ctx, repo, []User{{Username: "alice", PasswordHash: "new$hash"}}, logger.Logger)
	if err != nil {
		t.Fatalf("SeedUsers() error = %v", err)
	}
	if created != 0 {
		t.Errorf("SeedUsers() created = %d, want 0", created)
	}

	alice, _ := repo.Lookup(ctx, "alice")
	if alice.PasswordHash != "keep$me" {
		t.Errorf("existing user's hash changed to %q", alice.PasswordHash)
	}
}

func TestSeedUsers_InvalidUsername(t *testing.T) {
	repo := NewUserRepository(testDB(t))

	if _, err := SeedUsers(context.Background(), repo, []User{{Username: "no spaces allowed"}}, logging.Discard().Logger); err == nil {
		t.Error("SeedUsers() should fail on invalid username")
	}
}
