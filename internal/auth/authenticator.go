package auth

import (
	"context"
	"errors"
	"fmt"
)

// Authenticator decides login and renewal submissions. It combines the
// user directory, password hasher, and token service; it never writes
// HTTP responses.
type Authenticator struct {
	directory UserDirectory
	hasher    *PasswordHasher
	tokens    *TokenService

	// decoy is checked against for unknown users so they cost the same
	// HMAC as a wrong password.
	decoy string
}

// NewAuthenticator returns an Authenticator over the given collaborators.
func NewAuthenticator(directory UserDirectory, hasher *PasswordHasher, tokens *TokenService) *Authenticator {
	decoy, err := hasher.Hash("", "")
	if err != nil {
		// Only a failing CSPRNG gets here; a fixed salt still costs one HMAC.
		decoy = "0$0"
	}
	return &Authenticator{directory: directory, hasher: hasher, tokens: tokens, decoy: decoy}
}

// Authenticate returns the username to issue a token for.
//
// A non-empty creds.Token selects the renewal path: the token is verified
// and its username claim wins over creds.Username. Otherwise the user is
// looked up and the password checked. Unknown users and wrong passwords
// both return ErrInvalidCredentials.
func (a *Authenticator) Authenticate(ctx context.Context, creds Credentials) (string, error) {
	if creds.Token != "" {
		payload, err := a.tokens.Verify(creds.Token)
		if err != nil {
			return "", err
		}
		if username, ok := payload["username"].(string); ok && username != "" {
			return username, nil
		}
		return creds.Username, nil
	}

	user, err := a.directory.Lookup(ctx, creds.Username)
	if errors.Is(err, ErrUserNotFound) {
		a.hasher.Verify(creds.Password, a.decoy)
		return "", ErrInvalidCredentials
	}
	if err != nil {
		return "", fmt.Errorf("looking up user: %w", err)
	}

	if !a.hasher.Verify(creds.Password, user.PasswordHash) {
		return "", ErrInvalidCredentials
	}
	return user.Username, nil
}

// Issue signs a token for username.
func (a *Authenticator) Issue(username string) (string, error) {
	return a.tokens.Sign(map[string]any{"username": username})
}
