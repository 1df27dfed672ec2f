package auth

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1" //nolint:gosec // sha1 kept for compatibility with existing stored hashes
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"hash"
	"sort"
	"strings"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/sha3"
)

// Password hashing defaults.
const (
	DefaultHashAlgorithm = "sha512"
	DefaultSaltLength    = 16
	maxSaltLength        = 128
)

// hashAlgorithms maps configured algorithm names to HMAC digest constructors.
var hashAlgorithms = map[string]func() hash.Hash{
	"sha1":     sha1.New,
	"sha256":   sha256.New,
	"sha512":   sha512.New,
	"sha3-256": sha3.New256,
	"sha3-512": sha3.New512,
	"blake2b-512": func() hash.Hash {
		h, _ := blake2b.New512(nil) //nolint:errcheck // only fails for keys over 64 bytes
		return h
	},
}

// HashAlgorithms returns the supported algorithm names, sorted.
func HashAlgorithms() []string {
	names := make([]string, 0, len(hashAlgorithms))
	for name := range hashAlgorithms {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// HashConfig configures a PasswordHasher.
type HashConfig struct {
	Algorithm  string
	SaltLength int
}

// PasswordHasher produces "<salt>$<hexdigest>" strings where the digest is
// an HMAC of the password keyed with the salt. Plaintext passwords are
// never logged or stored.
type PasswordHasher struct {
	algorithm  string
	newHash    func() hash.Hash
	saltLength int
}

// NewPasswordHasher validates cfg, applying defaults for empty fields.
func NewPasswordHasher(cfg HashConfig) (*PasswordHasher, error) {
	if cfg.Algorithm == "" {
		cfg.Algorithm = DefaultHashAlgorithm
	}
	if cfg.SaltLength == 0 {
		cfg.SaltLength = DefaultSaltLength
	}

	newHash, ok := hashAlgorithms[cfg.Algorithm]
	if !ok {
		return nil, fmt.Errorf("unsupported hash algorithm %q (want one of %s)",
			cfg.Algorithm, strings.Join(HashAlgorithms(), ", "))
	}
	if cfg.SaltLength < 1 || cfg.SaltLength > maxSaltLength {
		return nil, fmt.Errorf("salt length must be between 1 and %d, got %d", maxSaltLength, cfg.SaltLength)
	}

	return &PasswordHasher{
		algorithm:  cfg.Algorithm,
		newHash:    newHash,
		saltLength: cfg.SaltLength,
	}, nil
}

// Algorithm returns the configured algorithm name.
func (h *PasswordHasher) Algorithm() string {
	return h.algorithm
}

// Hash returns "<salt>$<hexdigest>" for password.
//
// An empty salt is replaced by a fresh random hex salt of the configured
// length. A salt that is itself a stored "<salt>$<digest>" value has its
// salt portion extracted first, so Hash(candidate, stored) == stored is
// the verification rule.
func (h *PasswordHasher) Hash(password, salt string) (string, error) {
	if salt == "" {
		var err error
		if salt, err = randomHex(h.saltLength); err != nil {
			return "", err
		}
	}
	salt = saltOf(salt)

	mac := hmac.New(h.newHash, []byte(salt))
	mac.Write([]byte(password))
	return salt + "$" + hex.EncodeToString(mac.Sum(nil)), nil
}

// Verify reports whether password matches stored. An empty stored hash
// only matches an empty password.
func (h *PasswordHasher) Verify(password, stored string) bool {
	if stored == "" {
		return password == ""
	}
	candidate, err := h.Hash(password, stored)
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(candidate), []byte(stored)) == 1
}

// saltOf returns the salt portion of a "<salt>$<digest>" value, splitting
// at the last '$'. Values without both halves are returned unchanged.
func saltOf(value string) string {
	i := strings.LastIndexByte(value, '$')
	if i <= 0 || i == len(value)-1 {
		return value
	}
	return value[:i]
}

// randomHex returns exactly n hex characters from a CSPRNG.
func randomHex(n int) (string, error) {
	b := make([]byte, (n+1)/2) //nolint:mnd // two hex chars per byte
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating salt: %w", err)
	}
	return hex.EncodeToString(b)[:n], nil
}
