// ABOUTME: Issues session identity pairs (id + access key) and compares keys.
// ABOUTME: Tokens are 16 uppercase hex characters cut from independent UUIDv4s.

package credential

import (
	"crypto/subtle"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// TokenLength is the length of both the session id and the access key.
const TokenLength = 16

// Identity is the (id, key) pair issued when a session is created.
// ID is the public handle; Key is a bearer secret required for deletion.
type Identity struct {
	ID  string
	Key string
}

// Generate returns a fresh Identity. The id and key are drawn independently,
// so the key cannot be derived from the id.
// An error means the system entropy source failed.
func Generate() (Identity, error) {
	id, err := newToken()
	if err != nil {
		return Identity{}, fmt.Errorf("generating session id: %w", err)
	}
	key, err := newToken()
	if err != nil {
		return Identity{}, fmt.Errorf("generating session key: %w", err)
	}
	return Identity{ID: id, Key: key}, nil
}

func newToken() (string, error) {
	u, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	raw := strings.ReplaceAll(u.String(), "-", "")
	return strings.ToUpper(raw[:TokenLength]), nil
}

// Valid reports whether s has the shape of a generated token.
func Valid(s string) bool {
	if len(s) != TokenLength {
		return false
	}
	for _, r := range s {
		if (r < '0' || r > '9') && (r < 'A' || r > 'Z') {
			return false
		}
	}
	return true
}

// Equal compares a supplied key against a stored plaintext key in constant time.
func Equal(supplied, stored string) bool {
	return subtle.ConstantTimeCompare([]byte(supplied), []byte(stored)) == 1
}

// dummyHash keeps MatchHash timing flat when there is no stored hash to check.
const dummyHash = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"

// HashKey returns the bcrypt hash of an access key for persistence.
func HashKey(key string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hashing session key: %w", err)
	}
	return string(hash), nil
}

// MatchHash reports whether supplied matches a hash produced by HashKey.
// An empty hash never matches but still costs one bcrypt comparison.
func MatchHash(supplied, hash string) bool {
	if hash == "" {
		_ = bcrypt.CompareHashAndPassword([]byte(dummyHash), []byte(supplied))
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(supplied)) == nil
}
