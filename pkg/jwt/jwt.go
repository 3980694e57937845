package jwt

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
	ErrMissingKey   = errors.New("jwt secret is not configured")
)

// Claims represents JWT claims issued by the account service. Older tokens
// only carry the email; UserID is empty for those.
type Claims struct {
	jwt.RegisteredClaims
	UserID   string `json:"user_id,omitempty"`
	Email    string `json:"email,omitempty"`
	Username string `json:"username,omitempty"`
}

// Manager signs and validates HS256 tokens with a shared secret.
type Manager struct {
	secret   []byte
	issuer   string
	duration time.Duration
	now      func() time.Time
}

// NewManager creates a new JWT manager.
func NewManager(secret, issuer string, duration time.Duration) (*Manager, error) {
	if secret == "" {
		return nil, ErrMissingKey
	}
	return &Manager{
		secret:   []byte(secret),
		issuer:   issuer,
		duration: duration,
		now:      time.Now,
	}, nil
}

// Generate issues an access token. The chat service only validates tokens;
// Generate exists for tooling and tests.
func (m *Manager) Generate(userID, email, username string) (string, error) {
	now := m.now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.duration)),
		},
		UserID:   userID,
		Email:    email,
		Username: username,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
}

// Validate parses tokenString and returns its claims.
func (m *Manager) Validate(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return m.secret, nil
	}, jwt.WithTimeFunc(m.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.UserID == "" && claims.Subject != "" {
		claims.UserID = claims.Subject
	}
	if claims.UserID == "" && claims.Email == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
