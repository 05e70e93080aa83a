package utils

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Roles carried in identity-provider tokens.
const (
	RoleResident = "resident"
	RoleAdmin    = "admin"
)

// Claims are the identity claims the registry relies on. The subject is the
// identity provider's account id.
type Claims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// AccountID returns the authenticated account id.
func (c *Claims) AccountID() string {
	return c.Subject
}

// IsAdmin reports whether the token grants admin access.
func (c *Claims) IsAdmin() bool {
	return c.Role == RoleAdmin
}

// JWTManager verifies HS256 tokens issued by the identity provider.
type JWTManager struct {
	secret []byte
	issuer string
}

// NewJWTManager creates a manager for the shared secret. An empty issuer
// disables the issuer check.
func NewJWTManager(secret, issuer string) *JWTManager {
	return &JWTManager{secret: []byte(secret), issuer: issuer}
}

// GenerateJWT signs a token for the given account. Used by tooling and tests;
// production tokens come from the identity provider.
func (m *JWTManager) GenerateJWT(accountID, email, role string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Email: email,
		Role:  role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   accountID,
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// ValidateJWT parses and verifies a token string.
func (m *JWTManager) ValidateJWT(tokenString string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if m.issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.issuer))
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return m.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	if claims.Role == "" {
		claims.Role = RoleResident
	}
	if claims.Role != RoleResident && claims.Role != RoleAdmin {
		return nil, errors.Join(ErrInvalidToken, fmt.Errorf("unknown role %q", claims.Role))
	}
	return claims, nil
}
