// backend/src/security/auth.go
package security

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

var ErrInvalidToken = errors.New("invalid or expired token")

const (
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
)

type tokenClaims struct {
	TokenType string `json:"token_type"`
	jwt.RegisteredClaims
}

// AuthService issues and validates the JWT tokens that carry the
// authenticated owner identity into every request. Access tokens are
// short-lived; refresh tokens only serve the /auth/refresh exchange.
type AuthService struct {
	jwtSecret     []byte
	accessExpiry  time.Duration
	refreshExpiry time.Duration
}

func NewAuthService(jwtSecret string, accessExpiry, refreshExpiry time.Duration) *AuthService {
	return &AuthService{
		jwtSecret:     []byte(jwtSecret),
		accessExpiry:  accessExpiry,
		refreshExpiry: refreshExpiry,
	}
}

func (s *AuthService) generate(userID, tokenType string, expiry time.Duration) (string, error) {
	now := time.Now()
	claims := tokenClaims{
		TokenType: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(expiry)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

// GenerateToken signs an access token whose subject is the user id.
func (s *AuthService) GenerateToken(userID string) (string, error) {
	return s.generate(userID, tokenTypeAccess, s.accessExpiry)
}

// GenerateRefreshToken signs a long-lived token accepted only by ValidateRefreshToken.
func (s *AuthService) GenerateRefreshToken(userID string) (string, error) {
	return s.generate(userID, tokenTypeRefresh, s.refreshExpiry)
}

func (s *AuthService) validate(tokenString, wantType string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &tokenClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil || !token.Valid {
		return "", ErrInvalidToken
	}
	claims, ok := token.Claims.(*tokenClaims)
	if !ok || claims.Subject == "" || claims.TokenType != wantType {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}

// ValidateToken verifies an access token and returns the subject. Refresh
// tokens are rejected here so a stolen refresh token cannot hit the API directly.
func (s *AuthService) ValidateToken(tokenString string) (string, error) {
	return s.validate(tokenString, tokenTypeAccess)
}

// ValidateRefreshToken verifies a refresh token and returns the subject.
func (s *AuthService) ValidateRefreshToken(tokenString string) (string, error) {
	return s.validate(tokenString, tokenTypeRefresh)
}

// HashPassword hashes a plaintext password with bcrypt.
func HashPassword(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// CheckPassword compares a bcrypt hash against a plaintext candidate.
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
