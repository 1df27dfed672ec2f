package auth

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestPublicMessage(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{ErrInvalidCredentials, "Invalid credentials"},
		{ErrUserNotFound, "Invalid credentials"},
		{fmt.Errorf("%w: signature is invalid", ErrInvalidToken), "Invalid token"},
		{fmt.Errorf("%w: token is expired", ErrExpiredToken), "Token expired"},
		{ErrNoToken, "No token provided"},
		{ErrInvalidPassword, "Invalid password"},
		{ErrDisallowedRoute, "Disallowed"},
		{errors.New("sql: database is locked"), "Authentication failed"},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			if got := PublicMessage(tt.err); got != tt.want {
				t.Errorf("PublicMessage(%v) = %q, want %q", tt.err, got, tt.want)
			}
		})
	}
}

func TestUsernameContext(t *testing.T) {
	ctx := context.Background()
	if _, ok := UsernameFromContext(ctx); ok {
		t.Error("empty context should carry no username")
	}

	ctx = WithUsername(ctx, "alice")
	if got, ok := UsernameFromContext(ctx); !ok || got != "alice" {
		t.Errorf("UsernameFromContext() = (%q, %v), want (alice, true)", got, ok)
	}
}

func TestIsValidUsername(t *testing.T) {
	tests := map[string]bool{
		"alice":            true,
		"alice.smith@corp": true,
		"a_b-c":            true,
		"":                 false,
		"has space":        false,
		"semi;colon":       false,
	}
	for in, want := range tests {
		if got := IsValidUsername(in); got != want {
			t.Errorf("IsValidUsername(%q) = %v, want %v", in, got, want)
		}
	}
}
