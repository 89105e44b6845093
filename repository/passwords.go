package repository

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// PasswordChecker verifies a candidate plaintext against a stored credential.
type PasswordChecker interface {
	Check(stored, plain string) bool
}

// PasswordHasher turns a plaintext password into the credential to store.
type PasswordHasher interface {
	Hash(plain string) (string, error)
}

// BcryptPasswords checks and produces bcrypt hashes. A zero Cost uses
// bcrypt.DefaultCost.
type BcryptPasswords struct {
	Cost int
}

// Hash hashes a password using bcrypt.
func (b BcryptPasswords) Hash(plain string) (string, error) {
	cost := b.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// Check verifies a password against a hash. Stored values that are not
// bcrypt hashes never match.
func (b BcryptPasswords) Check(stored, plain string) bool {
	if stored == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(stored), []byte(plain)) == nil
}
