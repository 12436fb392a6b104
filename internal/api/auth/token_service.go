package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const tokenIssuer = "consensus"

var (
	ErrMissingSecret = errors.New("jwt secret is not configured")
	ErrInvalidToken  = errors.New("invalid or expired token")
)

// TokenService issues and validates HS256 access tokens.
type TokenService struct {
	secretKey []byte

	AccessTokenDuration time.Duration // Default: 24 hours
}

// JWTClaims represents the claims in our JWT tokens
type JWTClaims struct {
	UserID string `json:"user_id"`
	Email  string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// NewTokenService creates a new token service
func NewTokenService(secretKey string) *TokenService {
	return &TokenService{
		secretKey:           []byte(secretKey),
		AccessTokenDuration: 24 * time.Hour,
	}
}

// Enabled reports whether a secret is configured.
func (ts *TokenService) Enabled() bool {
	return ts != nil && len(ts.secretKey) > 0
}

// Issue signs an access token for userID.
func (ts *TokenService) Issue(userID, email string) (string, time.Time, error) {
	if !ts.Enabled() {
		return "", time.Time{}, ErrMissingSecret
	}
	if strings.TrimSpace(userID) == "" {
		return "", time.Time{}, errors.New("user id is required")
	}

	now := time.Now()
	expiresAt := now.Add(ts.AccessTokenDuration)
	claims := &JWTClaims{
		UserID: userID,
		Email:  email,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    tokenIssuer,
			Subject:   userID,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(ts.secretKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign JWT: %w", err)
	}
	return signed, expiresAt, nil
}

// Validate parses a token and returns the identity it names.
func (ts *TokenService) Validate(tokenString string) (Identity, error) {
	if !ts.Enabled() {
		return Identity{}, ErrMissingSecret
	}

	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return ts.secretKey, nil
	}, jwt.WithIssuer(tokenIssuer), jwt.WithExpirationRequired())
	if err != nil || !token.Valid {
		return Identity{}, ErrInvalidToken
	}

	claims, ok := token.Claims.(*JWTClaims)
	if !ok || claims.UserID == "" {
		return Identity{}, ErrInvalidToken
	}
	return Identity{ID: claims.UserID, Email: claims.Email}, nil
}
