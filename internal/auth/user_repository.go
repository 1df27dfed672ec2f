package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/docgate/internal/infrastructure/database"
)

// UserRepository is a UserDirectory that can also be written to.
type UserRepository interface {
	UserDirectory
	Create(ctx context.Context, user *User) error
	Import(ctx context.Context, users []User) (int, error)
	List(ctx context.Context) ([]User, error)
	Count(ctx context.Context) (int, error)
}

// SQLiteUserRepository keeps the user directory in the users table.
type SQLiteUserRepository struct {
	db *sql.DB
}

// NewUserRepository returns a repository over db, which must already
// carry the users migration.
func NewUserRepository(db *sql.DB) *SQLiteUserRepository {
	return &SQLiteUserRepository{db: db}
}

const selectUser = "SELECT id, username, password_hash, created_at FROM users"

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// insertUser fills in ID and CreatedAt and writes u. With skipExisting a
// taken username is left alone and reported as not inserted.
func insertUser(ctx context.Context, db execer, u *User, skipExisting bool) (bool, error) {
	if !IsValidUsername(u.Username) {
		return false, fmt.Errorf("invalid username %q", u.Username)
	}
	if u.ID == "" {
		u.ID = "usr-" + uuid.NewString()[:8]
	}
	u.CreatedAt = time.Now().UTC().Truncate(time.Second)

	query := "INSERT INTO users (id, username, password_hash, created_at) VALUES (?, ?, ?, ?)"
	if skipExisting {
		query += " ON CONFLICT (username) DO NOTHING"
	}
	res, err := db.ExecContext(ctx, query, u.ID, u.Username, u.PasswordHash, u.CreatedAt.Format(time.RFC3339))
	if err != nil {
		if database.IsUniqueViolation(err) {
			return false, ErrUsernameExists
		}
		return false, fmt.Errorf("inserting user %q: %w", u.Username, err)
	}
	n, _ := res.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	return n == 1, nil
}

// Create adds one user, assigning an ID when empty. A taken username
// yields ErrUsernameExists.
func (r *SQLiteUserRepository) Create(ctx context.Context, user *User) error {
	_, err := insertUser(ctx, r.db, user, false)
	return err
}

// Import adds every user whose username is not taken yet, all or nothing.
// Password hashes are stored as given. It returns how many were added.
func (r *SQLiteUserRepository) Import(ctx context.Context, users []User) (int, error) {
	added := 0
	err := database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		added = 0
		for i := range users {
			u := users[i]
			ok, err := insertUser(ctx, tx, &u, true)
			if err != nil {
				return err
			}
			if ok {
				added++
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return added, nil
}

// Lookup implements UserDirectory.
func (r *SQLiteUserRepository) Lookup(ctx context.Context, username string) (*User, error) {
	return scanUser(r.db.QueryRowContext(ctx, selectUser+" WHERE username = ?", username))
}

// List returns users oldest first.
func (r *SQLiteUserRepository) List(ctx context.Context) ([]User, error) {
	rows, err := r.db.QueryContext(ctx, selectUser+" ORDER BY created_at ASC, username ASC")
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	defer rows.Close()

	users := []User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating users: %w", err)
	}
	return users, nil
}

func (r *SQLiteUserRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM users").Scan(&n); err != nil {
		return 0, fmt.Errorf("counting users: %w", err)
	}
	return n, nil
}

func scanUser(row interface{ Scan(dest ...any) error }) (*User, error) {
	var (
		u         User
		createdAt string
	)
	if err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("scanning user: %w", err)
	}
	u.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // written by insertUser
	return &u, nil
}
