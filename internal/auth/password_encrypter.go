// Package auth implements credential verification, token issuance and MFA for
// the HTTP surface. Tenant identity always travels inside the access token.
package auth

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

const minPasswordLength = 8

var (
	ErrPasswordTooShort = errors.New("password should have at least 8 characters")
	ErrUnknownHashKind  = errors.New("unknown password hash format")
)

// argon2id parameters. Changing them only affects newly written hashes; the
// stored hash carries its own parameters.
const (
	argonMemoryKiB  = 64 * 1024
	argonIterations = 3
	argonThreads    = 4
	argonSaltLength = 16
	argonKeyLength  = 32
)

// VerifyResult is the outcome of a password check. UpgradedHash is set when
// the stored hash used a legacy scheme and the caller should persist the
// modern one.
type VerifyResult struct {
	Valid        bool
	UpgradedHash string
}

type PasswordEncrypter interface {
	// Encrypt hashes the plain password for storage.
	Encrypt(ctx context.Context, password string) (string, error)

	// Verify compares the plain password against the stored hash, accepting
	// legacy bcrypt hashes alongside argon2id.
	Verify(ctx context.Context, storedHash, password string) (VerifyResult, error)
}

// Argon2idEncrypter hashes with argon2id and transparently verifies (and
// upgrades) legacy bcrypt hashes.
type Argon2idEncrypter struct{}

func NewArgon2idEncrypter() *Argon2idEncrypter {
	return &Argon2idEncrypter{}
}

var _ PasswordEncrypter = (*Argon2idEncrypter)(nil)

func (e *Argon2idEncrypter) Encrypt(ctx context.Context, password string) (string, error) {
	if len(password) < minPasswordLength {
		return "", ErrPasswordTooShort
	}

	salt := make([]byte, argonSaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generating password salt: %w", err)
	}

	key := argon2.IDKey([]byte(password), salt, argonIterations, argonMemoryKiB, argonThreads, argonKeyLength)
	encoded := fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, argonMemoryKiB, argonIterations, argonThreads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key))
	return encoded, nil
}

func (e *Argon2idEncrypter) Verify(ctx context.Context, storedHash, password string) (VerifyResult, error) {
	switch {
	case strings.HasPrefix(storedHash, "$argon2id$"):
		valid, err := verifyArgon2id(storedHash, password)
		if err != nil {
			return VerifyResult{}, err
		}
		return VerifyResult{Valid: valid}, nil

	case strings.HasPrefix(storedHash, "$2a$"), strings.HasPrefix(storedHash, "$2b$"), strings.HasPrefix(storedHash, "$2y$"):
		err := bcrypt.CompareHashAndPassword([]byte(storedHash), []byte(password))
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return VerifyResult{}, nil
		}
		if err != nil {
			return VerifyResult{}, fmt.Errorf("comparing bcrypt password hash: %w", err)
		}

		upgraded, err := e.Encrypt(ctx, password)
		if errors.Is(err, ErrPasswordTooShort) {
			// Legacy accounts may predate the length policy; a correct
			// password still logs in, it just cannot be upgraded in place.
			return VerifyResult{Valid: true}, nil
		}
		if err != nil {
			return VerifyResult{}, fmt.Errorf("upgrading legacy password hash: %w", err)
		}
		return VerifyResult{Valid: true, UpgradedHash: upgraded}, nil

	default:
		return VerifyResult{}, ErrUnknownHashKind
	}
}

func verifyArgon2id(storedHash, password string) (bool, error) {
	parts := strings.Split(storedHash, "$")
	if len(parts) != 6 {
		return false, fmt.Errorf("malformed argon2id hash: expected 6 segments, got %d", len(parts))
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return false, fmt.Errorf("parsing argon2id version: %w", err)
	}
	if version != argon2.Version {
		return false, fmt.Errorf("unsupported argon2id version %d", version)
	}

	var memory, iterations uint32
	var threads uint8
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &iterations, &threads); err != nil {
		return false, fmt.Errorf("parsing argon2id parameters: %w", err)
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false, fmt.Errorf("decoding argon2id salt: %w", err)
	}
	expected, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return false, fmt.Errorf("decoding argon2id key: %w", err)
	}

	key := argon2.IDKey([]byte(password), salt, iterations, memory, threads, uint32(len(expected)))
	return subtle.ConstantTimeCompare(key, expected) == 1, nil
}
