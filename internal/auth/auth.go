// Package auth checks credentials against the users worksheet and carries
// the logged-in user between requests in a signed cookie.
package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/preupac/simulador/internal/model"
)

var (
	// ErrUserNotFound means no row has the given usuario.
	ErrUserNotFound = errors.New("user not found")
	// ErrWrongPassword means the usuario exists but the password differs.
	ErrWrongPassword = errors.New("wrong password")
)

// UserLookup finds a user by exact username; nil means no such user.
type UserLookup interface {
	GetUserByUsername(ctx context.Context, username string) (*model.User, error)
}

// Authenticate returns the user whose username exists and whose password
// matches. The returned user carries no password.
func Authenticate(ctx context.Context, users UserLookup, username, password string) (*model.User, error) {
	u, err := users.GetUserByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("look up user: %w", err)
	}
	if u == nil {
		return nil, ErrUserNotFound
	}
	if !CheckPassword(u.Password, password) {
		return nil, ErrWrongPassword
	}
	out := *u
	out.Password = ""
	return &out, nil
}

// CheckPassword compares a stored credential with what the user typed.
// A stored value that parses as a bcrypt hash is verified with bcrypt;
// anything else must match exactly.
func CheckPassword(stored, given string) bool {
	if IsHash(stored) {
		return bcrypt.CompareHashAndPassword([]byte(stored), []byte(given)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(stored), []byte(given)) == 1
}

// IsHash reports whether a stored password is a well-formed bcrypt hash.
// A plain password that merely starts with "$2a$" is not.
func IsHash(stored string) bool {
	_, err := bcrypt.Cost([]byte(stored))
	return err == nil
}

// HashPassword returns a bcrypt hash suitable for the password column.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}
