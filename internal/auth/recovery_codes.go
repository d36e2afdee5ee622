package auth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

const (
	recoveryCodeCount = 10
	recoveryCodeBytes = 5 // 10 hex characters
)

// GenerateRecoveryCodes returns the plaintext codes (shown to the user once)
// and their bcrypt hashes (stored).
func GenerateRecoveryCodes() (plaintexts, hashes []string, err error) {
	plaintexts = make([]string, 0, recoveryCodeCount)
	hashes = make([]string, 0, recoveryCodeCount)

	for i := 0; i < recoveryCodeCount; i++ {
		raw := make([]byte, recoveryCodeBytes)
		if _, err = rand.Read(raw); err != nil {
			return nil, nil, fmt.Errorf("generating recovery code: %w", err)
		}
		code := hex.EncodeToString(raw)

		var hash []byte
		hash, err = bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
		if err != nil {
			return nil, nil, fmt.Errorf("hashing recovery code: %w", err)
		}
		plaintexts = append(plaintexts, code)
		hashes = append(hashes, string(hash))
	}
	return plaintexts, hashes, nil
}

// ConsumeRecoveryCode matches the code against the stored hashes and, on a
// match, returns the remaining hashes with the used one removed. A recovery
// code only works once.
func ConsumeRecoveryCode(storedHashes []string, code string) (remaining []string, matched bool) {
	code = strings.ToLower(strings.TrimSpace(code))
	for i, hash := range storedHashes {
		if bcrypt.CompareHashAndPassword([]byte(hash), []byte(code)) == nil {
			remaining = append(remaining, storedHashes[:i]...)
			remaining = append(remaining, storedHashes[i+1:]...)
			return remaining, true
		}
	}
	return storedHashes, false
}
