// Package auth derives and verifies password hashes and issues API keys.
package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/scrypt"
)

// scrypt parameters. Changing these invalidates every stored hash, since the
// parameters are not encoded alongside the digest.
const (
	scryptN      = 32768
	scryptR      = 8
	scryptP      = 1
	scryptKeyLen = 64

	saltLen = 16
)

// APIKeyTTL is the validity window of an issued API key.
const APIKeyTTL = 30 * 24 * time.Hour

// ErrMalformedHash is returned when a stored hash is not in "hash.salt" form.
var ErrMalformedHash = errors.New("auth: malformed password hash")

// HashPassword derives a salted one-way hash of raw, encoded as
// "hexdigest.hexsalt". Every call draws a fresh salt, so hashing the same
// password twice yields different strings.
func HashPassword(raw string) (string, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("auth: generate salt: %w", err)
	}

	digest, err := derive(raw, hex.EncodeToString(salt))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s.%s", hex.EncodeToString(digest), hex.EncodeToString(salt)), nil
}

// VerifyPassword reports whether supplied matches the password behind stored.
// The comparison is constant-time so a mismatch in an early byte takes as
// long as a mismatch in a late one.
func VerifyPassword(stored, supplied string) (bool, error) {
	encodedDigest, encodedSalt, ok := strings.Cut(stored, ".")
	if !ok {
		return false, ErrMalformedHash
	}

	digest, err := hex.DecodeString(encodedDigest)
	if err != nil {
		return false, ErrMalformedHash
	}

	suppliedDigest, err := derive(supplied, encodedSalt)
	if err != nil {
		return false, err
	}

	return subtle.ConstantTimeCompare(digest, suppliedDigest) == 1, nil
}

// derive runs the KDF over the raw password and hex-encoded salt. The salt is
// fed to scrypt in its hex form, matching the stored encoding.
func derive(raw, encodedSalt string) ([]byte, error) {
	digest, err := scrypt.Key([]byte(raw), []byte(encodedSalt), scryptN, scryptR, scryptP, scryptKeyLen)
	if err != nil {
		return nil, fmt.Errorf("auth: derive hash: %w", err)
	}
	return digest, nil
}

// NewAPIKey generates an opaque 128-bit token (hex, no separators) and its
// expiry, APIKeyTTL from now.
func NewAPIKey() (key string, expiresAt time.Time) {
	key = strings.ReplaceAll(uuid.NewString(), "-", "")
	return key, time.Now().Add(APIKeyTTL)
}

// Expired reports whether a key with the given expiry is no longer valid at
// now. A key expiring exactly at now is expired: validity requires the
// expiry to be strictly in the future.
func Expired(expiresAt, now time.Time) bool {
	return !expiresAt.After(now)
}
