package supabase

import (
	"context"
	"fmt"
	"strings"

	"github.com/archivus/docflow/internal/domain/services"
	"github.com/google/uuid"
	supabase "github.com/nedpals/supabase-go"
)

// AuthService validates Supabase access tokens against the project's auth API.
type AuthService struct {
	client *supabase.Client
}

type Config struct {
	URL    string
	APIKey string
}

func NewAuthService(config Config) (*AuthService, error) {
	if config.URL == "" || config.APIKey == "" {
		return nil, fmt.Errorf("supabase url and api key are required")
	}
	client := supabase.CreateClient(config.URL, config.APIKey)
	if client == nil {
		return nil, fmt.Errorf("failed to create Supabase client")
	}

	return &AuthService{
		client: client,
	}, nil
}

// ValidateToken implements services.TokenValidator. The tenant comes from the
// user's tenant_id metadata when present.
func (s *AuthService) ValidateToken(ctx context.Context, accessToken string) (*services.TokenClaims, error) {
	user, err := s.client.Auth.User(ctx, accessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to validate token: %w", err)
	}
	return claimsFromUser(user)
}

func claimsFromUser(user *supabase.User) (*services.TokenClaims, error) {
	if user == nil || user.Email == "" {
		return nil, fmt.Errorf("supabase user has no email")
	}
	claims := &services.TokenClaims{Email: strings.ToLower(user.Email)}
	if raw, ok := user.UserMetadata["tenant_id"].(string); ok && raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid tenant_id metadata: %w", err)
		}
		claims.TenantID = id
	}
	return claims, nil
}
