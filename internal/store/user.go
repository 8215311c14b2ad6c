package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/preupac/simulador/internal/model"
	"github.com/preupac/simulador/internal/sheet"
)

// ErrUserExists is returned when creating a username that is already taken.
var ErrUserExists = errors.New("user already exists")

// CreateUser appends a user row. Password is stored as given.
func (s *Store) CreateUser(ctx context.Context, u model.User) error {
	u.Username = strings.TrimSpace(u.Username)
	if u.Username == "" || u.Password == "" {
		return fmt.Errorf("%w: username and password required", ErrInvalid)
	}
	if u.Name == "" {
		u.Name = u.Username
	}
	existing, err := s.GetUserByUsername(ctx, u.Username)
	if err != nil {
		return err
	}
	if existing != nil {
		return fmt.Errorf("%s: %w", u.Username, ErrUserExists)
	}
	if err := s.sheet.AppendRow(ctx, sheet.Users, []string{u.Username, u.Password, u.Name, string(u.Role)}); err != nil {
		slog.Error("failed to create user", "usuario", u.Username, "error", err)
		return fmt.Errorf("append user: %w", err)
	}
	slog.Info("created user", "usuario", u.Username, "rol", u.Role)
	return nil
}

// GetUserByUsername returns the first user whose usuario matches exactly,
// or nil if there is none.
func (s *Store) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	records, err := s.read(ctx, sheet.Users)
	if err != nil {
		return nil, err
	}
	for _, r := range records {
		if r["usuario"] == username {
			u := userFromRecord(r)
			return &u, nil
		}
	}
	return nil, nil
}

// ListUsers returns all users in worksheet order.
func (s *Store) ListUsers(ctx context.Context) ([]model.User, error) {
	records, err := s.read(ctx, sheet.Users)
	if err != nil {
		return nil, err
	}
	users := make([]model.User, 0, len(records))
	for _, r := range records {
		users = append(users, userFromRecord(r))
	}
	return users, nil
}

// UserCount returns the total number of users.
func (s *Store) UserCount(ctx context.Context) (int, error) {
	users, err := s.ListUsers(ctx)
	return len(users), err
}

// userFromRecord keeps an unknown rol verbatim; such a user can log in but
// gets neither the tutor nor the student views.
func userFromRecord(r sheet.Record) model.User {
	role, err := model.ParseRole(r["rol"])
	if err != nil {
		role = model.Role(strings.TrimSpace(r["rol"]))
	}
	return model.User{
		Username: r["usuario"],
		Password: r["password"],
		Name:     r["nombre"],
		Role:     role,
	}
}
