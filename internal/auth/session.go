package auth

import (
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/preupac/simulador/internal/model"
)

const issuer = "simulador"

// Claims is the user record kept in the browser session cookie.
type Claims struct {
	Username string `json:"usr"`
	Name     string `json:"name"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// Sessions signs and verifies session tokens. Nothing is stored server-side.
type Sessions struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewSessions creates a session codec. An empty secret gets a random one,
// which logs everybody out on restart.
func NewSessions(secret string, ttl time.Duration) (*Sessions, error) {
	key := []byte(secret)
	if len(key) == 0 {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("generate session secret: %w", err)
		}
	}
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &Sessions{secret: key, ttl: ttl, now: time.Now}, nil
}

// TTL is how long an issued token stays valid.
func (s *Sessions) TTL() time.Duration { return s.ttl }

// Issue signs a token for the user.
func (s *Sessions) Issue(u model.User) (string, error) {
	now := s.now()
	claims := &Claims{
		Username: u.Username,
		Name:     u.Name,
		Role:     string(u.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   u.Username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// Parse verifies a token and returns the user it carries.
func (s *Sessions) Parse(token string) (*model.User, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, err
	}
	if !parsed.Valid || claims.Username == "" {
		return nil, errors.New("invalid session token")
	}
	return &model.User{
		Username: claims.Username,
		Name:     claims.Name,
		Role:     model.Role(claims.Role),
	}, nil
}
