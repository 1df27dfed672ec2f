package auth

import (
	"errors"
	"fmt"
	"maps"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// minSecretLength is the minimum HMAC secret length accepted at startup.
const minSecretLength = 32

// TokenConfig configures a TokenService.
type TokenConfig struct {
	// Secret is the shared HMAC key. The HTTP gate and the WebSocket
	// guard verify with the same service instance.
	Secret string

	// Algorithm is one of HS256, HS384, HS512. Tokens signed with any
	// other algorithm are rejected.
	Algorithm string

	// Expiry is the lifetime of issued tokens.
	Expiry time.Duration
}

// TokenService signs and verifies JWTs with a fixed symmetric algorithm.
// It holds no mutable state and is safe for concurrent use.
type TokenService struct {
	secret []byte
	method jwt.SigningMethod
	expiry time.Duration
	now    func() time.Time
}

// TokenOption customises a TokenService.
type TokenOption func(*TokenService)

// WithClock overrides the time source used for signing and expiry checks.
func WithClock(now func() time.Time) TokenOption {
	return func(s *TokenService) { s.now = now }
}

// NewTokenService validates cfg and returns a TokenService.
func NewTokenService(cfg TokenConfig, opts ...TokenOption) (*TokenService, error) {
	if len(cfg.Secret) < minSecretLength {
		return nil, fmt.Errorf("token secret must be at least %d characters", minSecretLength)
	}
	if cfg.Expiry <= 0 {
		return nil, fmt.Errorf("token expiry must be positive, got %v", cfg.Expiry)
	}

	method, ok := jwt.GetSigningMethod(cfg.Algorithm).(*jwt.SigningMethodHMAC)
	if !ok {
		return nil, fmt.Errorf("unsupported token algorithm %q (want HS256, HS384 or HS512)", cfg.Algorithm)
	}

	s := &TokenService{
		secret: []byte(cfg.Secret),
		method: method,
		expiry: cfg.Expiry,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Expiry returns the configured token lifetime.
func (s *TokenService) Expiry() time.Duration {
	return s.expiry
}

// Sign returns a token carrying payload plus absolute "iat" and "exp"
// claims. Caller-supplied exp and iat keys are overwritten.
func (s *TokenService) Sign(payload map[string]any) (string, error) {
	now := s.now()

	claims := jwt.MapClaims{}
	maps.Copy(claims, payload)
	claims["iat"] = jwt.NewNumericDate(now)
	claims["exp"] = jwt.NewNumericDate(now.Add(s.expiry))

	signed, err := jwt.NewWithClaims(s.method, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}

// Verify checks the token's signature, algorithm and expiry and returns
// its payload without the iat and exp claims.
//
// Errors: ErrNoToken for an empty token, ErrExpiredToken when exp is at or
// before now, ErrInvalidToken for everything else.
func (s *TokenService) Verify(token string) (map[string]any, error) {
	if token == "" {
		return nil, ErrNoToken
	}

	claims := jwt.MapClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(_ *jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{s.method.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		// Expiry is only reported once the signature has checked out.
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: %w", ErrExpiredToken, err)
		}
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if !parsed.Valid {
		return nil, ErrInvalidToken
	}

	payload := make(map[string]any, len(claims))
	for k, v := range claims {
		if k == "exp" || k == "iat" {
			continue
		}
		payload[k] = v
	}
	return payload, nil
}

// ExpiresAt decodes the exp claim without verifying the signature. It is
// used to align the companion cookie with a token this service just issued.
func (s *TokenService) ExpiresAt(token string) (time.Time, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, fmt.Errorf("%w: missing exp claim", ErrInvalidToken)
	}
	return exp.Time, nil
}
