package user

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// PasswordHasher is the pluggable KDF boundary spec.md §9 asks for: the
// decider only ever sees the opaque result of HashPassword, never a
// plaintext password, so the KDF can be swapped without touching the
// decider or the event payload shape.
type PasswordHasher interface {
	HashPassword(password string) (string, error)
	VerifyPassword(password, encodedHash string) (bool, error)
}

// Argon2Hasher is the default PasswordHasher: salted Argon2id (time=1,
// memory=64MiB, threads=4, keyLen=32), with the salt carried alongside the
// hash in one encoded string instead of a separate column.
type Argon2Hasher struct{}

const (
	argon2Time    = 1
	argon2Memory  = 64 * 1024
	argon2Threads = 4
	argon2KeyLen  = 32
	saltLen       = 16
)

func (Argon2Hasher) HashPassword(password string) (string, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("user: generate salt: %w", err)
	}

	hash := argon2.IDKey([]byte(password), salt, argon2Time, argon2Memory, argon2Threads, argon2KeyLen)

	return fmt.Sprintf("%s$%s",
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash),
	), nil
}

func (Argon2Hasher) VerifyPassword(password, encodedHash string) (bool, error) {
	salt, hash, err := splitEncoded(encodedHash)
	if err != nil {
		return false, err
	}

	comparison := argon2.IDKey([]byte(password), salt, argon2Time, argon2Memory, argon2Threads, argon2KeyLen)
	return string(comparison) == string(hash), nil
}

func splitEncoded(encoded string) (salt, hash []byte, err error) {
	idx := strings.IndexByte(encoded, '$')
	if idx < 0 {
		return nil, nil, fmt.Errorf("user: malformed password hash")
	}
	saltB64, hashB64 := encoded[:idx], encoded[idx+1:]

	salt, err = base64.RawStdEncoding.DecodeString(saltB64)
	if err != nil {
		return nil, nil, fmt.Errorf("user: decode salt: %w", err)
	}
	hash, err = base64.RawStdEncoding.DecodeString(hashB64)
	if err != nil {
		return nil, nil, fmt.Errorf("user: decode hash: %w", err)
	}
	return salt, hash, nil
}
