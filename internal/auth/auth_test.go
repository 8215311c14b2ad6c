package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/preupac/simulador/internal/model"
)

type fakeUsers map[string]model.User

func (f fakeUsers) GetUserByUsername(_ context.Context, username string) (*model.User, error) {
	u, ok := f[username]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

type brokenUsers struct{}

func (brokenUsers) GetUserByUsername(context.Context, string) (*model.User, error) {
	return nil, errors.New("connection refused")
}

func TestAuthenticate(t *testing.T) {
	hash, err := HashPassword("s3creto")
	require.NoError(t, err)

	users := fakeUsers{
		"ana":   {Username: "ana", Password: "1234", Name: "Ana", Role: model.RoleStudent},
		"profe": {Username: "profe", Password: hash, Name: "Profe", Role: model.RoleTutor},
		"luis":  {Username: "luis", Password: "$2a$clave", Name: "Luis", Role: model.RoleStudent},
	}
	ctx := context.Background()

	tests := []struct {
		name     string
		username string
		password string
		wantErr  error
	}{
		{"exact plain password", "ana", "1234", nil},
		{"plain password differs", "ana", "1234 ", ErrWrongPassword},
		{"empty password", "ana", "", ErrWrongPassword},
		{"unknown user", "pedro", "1234", ErrUserNotFound},
		{"username is case sensitive", "Ana", "1234", ErrUserNotFound},
		{"bcrypt hash", "profe", "s3creto", nil},
		{"bcrypt hash wrong", "profe", "S3creto", ErrWrongPassword},
		{"plain password with bcrypt prefix", "luis", "$2a$clave", nil},
		{"plain password with bcrypt prefix differs", "luis", "$2a$Clave", ErrWrongPassword},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, err := Authenticate(ctx, users, tt.username, tt.password)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, u)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.username, u.Username)
			assert.Empty(t, u.Password, "password must not leave Authenticate")
		})
	}

	_, err = Authenticate(ctx, brokenUsers{}, "ana", "1234")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrUserNotFound)
}

func TestIsHash(t *testing.T) {
	hash, err := HashPassword("s3creto")
	require.NoError(t, err)
	assert.True(t, IsHash(hash))
	assert.False(t, IsHash("1234"))
	assert.False(t, IsHash("$1$md5"))
	assert.False(t, IsHash("$2a$clave"))
	assert.False(t, IsHash("$2b$12$x"))
}

func TestSessionsRoundTrip(t *testing.T) {
	s, err := NewSessions("test-secret", time.Hour)
	require.NoError(t, err)

	tok, err := s.Issue(model.User{Username: "ana", Name: "Ana Pérez", Role: model.RoleStudent})
	require.NoError(t, err)

	u, err := s.Parse(tok)
	require.NoError(t, err)
	assert.Equal(t, "ana", u.Username)
	assert.Equal(t, "Ana Pérez", u.Name)
	assert.Equal(t, model.RoleStudent, u.Role)
}

func TestSessionsRejectTampering(t *testing.T) {
	s, _ := NewSessions("one", time.Hour)
	other, _ := NewSessions("two", time.Hour)

	tok, err := other.Issue(model.User{Username: "ana", Role: model.RoleTutor})
	require.NoError(t, err)
	_, err = s.Parse(tok)
	assert.Error(t, err, "token signed with another secret")

	_, err = s.Parse("not-a-token")
	assert.Error(t, err)
}

func TestSessionsExpire(t *testing.T) {
	s, _ := NewSessions("k", time.Minute)
	base := time.Now()
	s.now = func() time.Time { return base }

	tok, err := s.Issue(model.User{Username: "ana"})
	require.NoError(t, err)

	s.now = func() time.Time { return base.Add(2 * time.Minute) }
	_, err = s.Parse(tok)
	assert.Error(t, err)
}

func TestNewSessionsDefaults(t *testing.T) {
	s, err := NewSessions("", 0)
	require.NoError(t, err)
	assert.Len(t, s.secret, 32)
	assert.Equal(t, 12*time.Hour, s.TTL())
}
