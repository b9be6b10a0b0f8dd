// Package auth implements the credential store: API key generation, bcrypt
// hashing, and request-time resolution of raw keys to key records.
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

const (
	// randomBytes is the entropy of a generated key.
	randomBytes = 32

	// LookupRandomLen is how many characters after the format prefix are
	// stored in clear for candidate lookup.
	LookupRandomLen = 8

	// BcryptCost is the cost factor for bcrypt hashing.
	BcryptCost = 12
)

// GenerateAPIKey creates a new random key: prefix + base64url(32 random bytes).
// Returns the raw key (show once), its bcrypt hash, and the lookup prefix.
func GenerateAPIKey(prefix string) (raw, hash, lookup string, err error) {
	buf := make([]byte, randomBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", "", "", fmt.Errorf("generate random bytes: %w", err)
	}

	raw = prefix + base64.RawURLEncoding.EncodeToString(buf)

	hashBytes, err := bcrypt.GenerateFromPassword([]byte(raw), BcryptCost)
	if err != nil {
		return "", "", "", fmt.Errorf("hash api key: %w", err)
	}

	return raw, string(hashBytes), LookupPrefix(prefix, raw), nil
}

// LookupPrefix returns the stored lookup prefix for raw, or "" when raw is
// too short to carry one.
func LookupPrefix(formatPrefix, raw string) string {
	n := len(formatPrefix) + LookupRandomLen
	if !strings.HasPrefix(raw, formatPrefix) || len(raw) < n {
		return ""
	}
	return raw[:n]
}

// CompareKey reports whether raw matches the stored bcrypt hash.
func CompareKey(hash, raw string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(raw)) == nil
}

// Digest is the hex SHA-256 of raw, used to key cached lookups.
func Digest(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
