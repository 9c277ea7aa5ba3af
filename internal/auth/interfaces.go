package auth

import (
	"context"

	"github.com/google/uuid"
	"github.com/hugh/taskeasy/internal/database/models"
)

// Authenticator defines the account operations exposed to the HTTP layer.
type Authenticator interface {
	Register(ctx context.Context, input RegisterInput) (*AuthResponse, error)
	Login(ctx context.Context, input LoginInput) (*AuthResponse, error)
	Import(ctx context.Context, records []ImportRecord) (*ImportResult, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	UpdateProfile(ctx context.Context, id uuid.UUID, patch ProfilePatch) (*models.User, error)
	FindByLogin(ctx context.Context, login string) (*models.User, error)
}

// TokenVerifier is the only part of the token service other components see.
type TokenVerifier interface {
	Verify(tokenString string) (uuid.UUID, error)
}

// Compile-time interface satisfaction checks
var (
	_ Authenticator = (*Service)(nil)
	_ TokenVerifier = (*JWTService)(nil)
)
