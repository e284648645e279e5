package records

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	saltLen     = 16
	keyLen      = 32
	argonTime   = 1
	argonMemory = 64 * 1024
	argonLanes  = 4
)

// HashPassword derives a salted hash for password, encoded as
// "hex(salt):hex(hash)".
func HashPassword(password string) (string, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	key := argon2.IDKey([]byte(password), salt, argonTime, argonMemory, argonLanes, keyLen)
	return hex.EncodeToString(salt) + ":" + hex.EncodeToString(key), nil
}

// VerifyPassword reports whether password matches an encoded hash.
// Malformed hashes never match.
func VerifyPassword(encoded, password string) bool {
	saltHex, keyHex, ok := strings.Cut(encoded, ":")
	if !ok {
		return false
	}
	salt, err := hex.DecodeString(saltHex)
	if err != nil || len(salt) == 0 {
		return false
	}
	want, err := hex.DecodeString(keyHex)
	if err != nil || len(want) == 0 {
		return false
	}
	got := argon2.IDKey([]byte(password), salt, argonTime, argonMemory, argonLanes, uint32(len(want)))
	return subtle.ConstantTimeCompare(got, want) == 1
}
