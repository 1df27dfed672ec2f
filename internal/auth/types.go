package auth

import (
	"context"
	"errors"
	"regexp"
	"time"
)

// usernamePattern defines the valid format for usernames:
// alphanumeric, dots, hyphens, underscores, @, 1-64 characters.
var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9.@_-]{1,64}$`)

// IsValidUsername checks if a username meets format requirements.
func IsValidUsername(username string) bool {
	return usernamePattern.MatchString(username)
}

// Credentials is a login submission. Exactly one of Password or Token
// drives authentication: a non-empty Token selects the renewal path.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password,omitempty"`
	Token    string `json:"token,omitempty"`
}

// User is a user directory record. PasswordHash is "<salt>$<hexdigest>"
// or empty for a no-password account.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"` // never serialised
	CreatedAt    time.Time `json:"created_at"`
}

// Classification is the gate's verdict for a request path.
type Classification int

const (
	// Protected paths require a valid token. It is the zero value so an
	// unclassified path is never accidentally public.
	Protected Classification = iota

	// Allowed paths pass through unauthenticated.
	Allowed

	// Disallowed paths are rejected outright.
	Disallowed
)

// String returns the lower-case name of the classification.
func (c Classification) String() string {
	switch c {
	case Allowed:
		return "allowed"
	case Disallowed:
		return "disallowed"
	default:
		return "protected"
	}
}

// Sentinel errors for auth operations.
var (
	ErrNoToken                   = errors.New("no token")
	ErrInvalidToken              = errors.New("invalid token")
	ErrExpiredToken              = errors.New("token has expired")
	ErrInvalidCredentials        = errors.New("invalid credentials")
	ErrInvalidPassword           = errors.New("invalid password")
	ErrDisallowedRoute           = errors.New("disallowed route")
	ErrUnsupportedRepresentation = errors.New("no supported accept type")
	ErrUserNotFound              = errors.New("user not found")
	ErrUsernameExists            = errors.New("username already exists")
)

// PublicMessage returns the client-facing message for an auth error.
// Unknown errors collapse to a generic message so internal detail never
// reaches the response.
func PublicMessage(err error) string {
	switch {
	case errors.Is(err, ErrNoToken):
		return "No token provided"
	case errors.Is(err, ErrExpiredToken):
		return "Token expired"
	case errors.Is(err, ErrInvalidToken):
		return "Invalid token"
	case errors.Is(err, ErrInvalidCredentials), errors.Is(err, ErrUserNotFound):
		return "Invalid credentials"
	case errors.Is(err, ErrInvalidPassword):
		return "Invalid password"
	case errors.Is(err, ErrDisallowedRoute):
		return "Disallowed"
	case errors.Is(err, ErrUnsupportedRepresentation):
		return "No supported accept type (HTML or JSON)"
	default:
		return "Authentication failed"
	}
}

type contextKey struct{}

// WithUsername returns a copy of ctx carrying the authenticated username.
func WithUsername(ctx context.Context, username string) context.Context {
	return context.WithValue(ctx, contextKey{}, username)
}

// UsernameFromContext returns the username stored by WithUsername.
func UsernameFromContext(ctx context.Context) (string, bool) {
	username, ok := ctx.Value(contextKey{}).(string)
	return username, ok
}
