package auth

import (
	"context"
)

// UserDirectory resolves usernames to stored user records.
type UserDirectory interface {
	// Lookup returns ErrUserNotFound for unknown usernames.
	Lookup(ctx context.Context, username string) (*User, error)
}

// StaticDirectory is an in-memory, read-only directory built from the
// users listed in configuration.
type StaticDirectory struct {
	users map[string]User
}

// NewStaticDirectory indexes users by username. Later entries replace
// earlier ones with the same username.
func NewStaticDirectory(users []User) *StaticDirectory {
	d := &StaticDirectory{users: make(map[string]User, len(users))}
	for _, u := range users {
		d.users[u.Username] = u
	}
	return d
}

// Lookup implements UserDirectory.
func (d *StaticDirectory) Lookup(_ context.Context, username string) (*User, error) {
	u, ok := d.users[username]
	if !ok {
		return nil, ErrUserNotFound
	}
	return &u, nil
}

// Len returns the number of users in the directory.
func (d *StaticDirectory) Len() int {
	return len(d.users)
}
