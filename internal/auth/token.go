// Package auth guards the administrative surfaces with a single static
// token, stored as an Argon2id hash so the secret itself never appears in
// configuration.
package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	argonTime    = 1
	argonMemory  = 64 * 1024 // 64 MB
	argonThreads = 4
	argonKeyLen  = 32
	saltLen      = 16
)

// HashToken hashes an admin token using Argon2id. The result embeds the salt
// and is suitable for storing in configuration.
func HashToken(token string) (string, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("auth: generate salt: %w", err)
	}

	hash := argon2.IDKey([]byte(token), salt, argonTime, argonMemory, argonThreads, argonKeyLen)

	encoded := fmt.Sprintf("%s$%s",
		base64.StdEncoding.EncodeToString(salt),
		base64.StdEncoding.EncodeToString(hash),
	)
	return encoded, nil
}

// VerifyToken checks a presented token against an encoded Argon2id hash.
func VerifyToken(token, encoded string) (bool, error) {
	parts := strings.SplitN(encoded, "$", 2)
	if len(parts) != 2 {
		return false, fmt.Errorf("auth: invalid hash format")
	}

	salt, err := base64.StdEncoding.DecodeString(parts[0])
	if err != nil {
		return false, fmt.Errorf("auth: decode salt: %w", err)
	}

	expectedHash, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return false, fmt.Errorf("auth: decode hash: %w", err)
	}

	computedHash := argon2.IDKey([]byte(token), salt, argonTime, argonMemory, argonThreads, argonKeyLen)

	return subtle.ConstantTimeCompare(expectedHash, computedHash) == 1, nil
}

// Verifier authorizes bearer tokens against the configured hash. An empty
// hash means the deployment runs open, which is the default for a local
// single-user setup.
type Verifier struct {
	encodedHash string
}

// NewVerifier builds a Verifier from the configured token hash.
func NewVerifier(encodedHash string) *Verifier {
	return &Verifier{encodedHash: encodedHash}
}

// Open reports whether no token is required.
func (v *Verifier) Open() bool {
	return v.encodedHash == ""
}

// Authorize checks a presented token. When no hash is configured every token
// (including an absent one) is accepted.
func (v *Verifier) Authorize(token string) bool {
	if v.Open() {
		return true
	}
	ok, err := VerifyToken(token, v.encodedHash)
	return err == nil && ok
}
