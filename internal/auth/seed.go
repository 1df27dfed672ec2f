package auth

import (
	"context"
	"fmt"
	"log/slog"
)

// SeedUsers copies the configured users into repo on startup. Existing
// usernames keep their stored hash, so a password changed in the database
// is not reset by a restart. It returns the number of users created.
func SeedUsers(ctx context.Context, repo UserRepository, users []User, logger *slog.Logger) (int, error) {
	if len(users) == 0 {
		return 0, nil
	}

	created, err := repo.Import(ctx, users)
	if err != nil {
		return 0, fmt.Errorf("seeding users: %w", err)
	}

	if skipped := len(users) - created; skipped > 0 {
		logger.Debug("configured users already present", "count", skipped)
	}
	if created > 0 {
		logger.Info("seeded users from configuration", "count", created)
	}
	return created, nil
}
