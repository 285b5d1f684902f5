package jwt

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/archivus/docflow/internal/domain/services"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Claims carried by tokens this service accepts.
type Claims struct {
	TenantID string `json:"tenant_id,omitempty"`
	Email    string `json:"email"`
	jwt.RegisteredClaims
}

// TokenManager signs and verifies HS256 tokens.
type TokenManager struct {
	secret []byte
	issuer string
}

func NewTokenManager(secret, issuer string) (*TokenManager, error) {
	if secret == "" {
		return nil, errors.New("jwt secret is required")
	}
	if issuer == "" {
		issuer = "docflow"
	}
	return &TokenManager{secret: []byte(secret), issuer: issuer}, nil
}

// GenerateToken issues a token for email. tenantID may be uuid.Nil.
func (tm *TokenManager) GenerateToken(email string, tenantID uuid.UUID, expiresIn time.Duration) (string, error) {
	if strings.TrimSpace(email) == "" {
		return "", fmt.Errorf("email required")
	}
	now := time.Now()
	claims := Claims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   email,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(expiresIn)),
			Issuer:    tm.issuer,
		},
	}
	if tenantID != uuid.Nil {
		claims.TenantID = tenantID.String()
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(tm.secret)
}

// ValidateToken implements services.TokenValidator.
func (tm *TokenManager) ValidateToken(ctx context.Context, tokenString string) (*services.TokenClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return tm.secret, nil
	}, jwt.WithIssuer(tm.issuer), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("parse token failed: %w", err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}
	if claims.Email == "" {
		return nil, fmt.Errorf("token has no email claim")
	}

	out := &services.TokenClaims{Email: strings.ToLower(claims.Email)}
	if claims.TenantID != "" {
		id, err := uuid.Parse(claims.TenantID)
		if err != nil {
			return nil, fmt.Errorf("invalid tenant_id claim: %w", err)
		}
		out.TenantID = id
	}
	return out, nil
}
