// Package authpw guards the edit view with a single admin password.
package authpw

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

const minPasswordLength = 8

var (
	// ErrWrongPassword is returned by Verify for a mismatched password.
	ErrWrongPassword = errors.New("wrong password")
	// ErrNotConfigured means neither a password nor a hash was provided.
	ErrNotConfigured = errors.New("admin password not configured")
)

// Gate checks the admin password against a bcrypt hash.
type Gate struct {
	hash []byte
}

// NewGate builds a gate from a bcrypt hash, or hashes password when no hash
// is given. Both empty yields a gate that rejects everything.
func NewGate(password, hash string) (*Gate, error) {
	if hash != "" {
		if _, err := bcrypt.Cost([]byte(hash)); err != nil {
			return nil, fmt.Errorf("parse password hash: %w", err)
		}
		return &Gate{hash: []byte(hash)}, nil
	}
	if password == "" {
		return &Gate{}, nil
	}
	if len(password) < minPasswordLength {
		return nil, fmt.Errorf("admin password must be at least %d characters", minPasswordLength)
	}
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	return &Gate{hash: h}, nil
}

// Configured reports whether the gate can ever open.
func (g *Gate) Configured() bool {
	return len(g.hash) > 0
}

// Verify returns nil when password matches.
func (g *Gate) Verify(password string) error {
	if !g.Configured() {
		return ErrNotConfigured
	}
	if err := bcrypt.CompareHashAndPassword(g.hash, []byte(password)); err != nil {
		return ErrWrongPassword
	}
	return nil
}

// HashPassword returns a bcrypt hash suitable for PORTFOLIO_ADMIN_PASSWORD_HASH.
func HashPassword(password string) (string, error) {
	if len(password) < minPasswordLength {
		return "", fmt.Errorf("password must be at least %d characters", minPasswordLength)
	}
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(h), nil
}
