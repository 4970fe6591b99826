package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
)

// saltBytes sizes the random salt attached to each stored password.
const saltBytes = 16

// NewSalt returns a hex-encoded random salt.
func NewSalt() (string, error) {
	buf := make([]byte, saltBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// HashPassword derives the stored hash for a password and salt.
func HashPassword(password, salt string) string {
	sum := sha256.Sum256([]byte(salt + ":" + password))
	return hex.EncodeToString(sum[:])
}

// VerifyPassword checks a password attempt against the stored salt and hash
// in constant time.
func VerifyPassword(password, salt, storedHash string) bool {
	if storedHash == "" {
		return false
	}
	attempt := HashPassword(password, salt)
	return subtle.ConstantTimeCompare([]byte(attempt), []byte(storedHash)) == 1
}
