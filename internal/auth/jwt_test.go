package auth_test

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/hugh/taskeasy/internal/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signClaims(t *testing.T, secret string, claims jwt.Claims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func TestJWTService_GenerateToken(t *testing.T) {
	jwtService := auth.NewJWTService("test-secret", 24*time.Hour)
	userID := uuid.New()

	t.Run("generates valid token", func(t *testing.T) {
		token, err := jwtService.GenerateToken(userID)
		require.NoError(t, err)
		assert.NotEmpty(t, token)

		claims, err := jwtService.ValidateToken(token)
		require.NoError(t, err)
		assert.Equal(t, userID.String(), claims.UserID)
		assert.Equal(t, "taskeasy", claims.Issuer)
		assert.Equal(t, userID.String(), claims.Subject)
	})

	t.Run("expires after configured duration", func(t *testing.T) {
		token, err := jwtService.GenerateToken(userID)
		require.NoError(t, err)

		claims, err := jwtService.ValidateToken(token)
		require.NoError(t, err)
		lifetime := claims.ExpiresAt.Sub(claims.IssuedAt.Time)
		assert.Equal(t, 24*time.Hour, lifetime)
	})

	t.Run("defaults to 24 hours", func(t *testing.T) {
		svc := auth.NewJWTService("test-secret", 0)
		token, err := svc.GenerateToken(userID)
		require.NoError(t, err)

		claims, err := svc.ValidateToken(token)
		require.NoError(t, err)
		assert.Equal(t, 24*time.Hour, claims.ExpiresAt.Sub(claims.IssuedAt.Time))
	})
}

func TestJWTService_ValidateToken(t *testing.T) {
	userID := uuid.New()

	t.Run("rejects expired token", func(t *testing.T) {
		jwtService := auth.NewJWTService("test-secret", 1*time.Millisecond)

		token, err := jwtService.GenerateToken(userID)
		require.NoError(t, err)

		time.Sleep(10 * time.Millisecond)

		_, err = jwtService.ValidateToken(token)
		assert.Equal(t, auth.ErrExpiredToken, err)
	})

	t.Run("rejects tampered token", func(t *testing.T) {
		jwtService := auth.NewJWTService("test-secret", 24*time.Hour)

		token, err := jwtService.GenerateToken(userID)
		require.NoError(t, err)

		_, err = jwtService.ValidateToken(token + "tampered")
		assert.Equal(t, auth.ErrInvalidToken, err)
	})

	t.Run("rejects token signed with different secret", func(t *testing.T) {
		token, err := auth.NewJWTService("secret-1", time.Hour).GenerateToken(userID)
		require.NoError(t, err)

		_, err = auth.NewJWTService("secret-2", time.Hour).ValidateToken(token)
		assert.Equal(t, auth.ErrInvalidToken, err)
	})

	t.Run("rejects non-HMAC signing method", func(t *testing.T) {
		token, err := jwt.NewWithClaims(jwt.SigningMethodNone, auth.Claims{UserID: userID.String()}).
			SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)

		_, err = auth.NewJWTService("test-secret", time.Hour).ValidateToken(token)
		assert.Equal(t, auth.ErrInvalidToken, err)
	})

	t.Run("rejects malformed and empty token", func(t *testing.T) {
		jwtService := auth.NewJWTService("test-secret", 24*time.Hour)

		_, err := jwtService.ValidateToken("not-a-valid-jwt")
		assert.Equal(t, auth.ErrInvalidToken, err)

		_, err = jwtService.ValidateToken("")
		assert.Equal(t, auth.ErrInvalidToken, err)
	})
}

func TestJWTService_Verify(t *testing.T) {
	const secret = "test-secret"
	jwtService := auth.NewJWTService(secret, time.Hour)
	userID := uuid.New()
	exp := jwt.NewNumericDate(time.Now().Add(time.Hour))

	t.Run("reads userId", func(t *testing.T) {
		token, err := jwtService.GenerateToken(userID)
		require.NoError(t, err)

		got, err := jwtService.Verify(token)
		require.NoError(t, err)
		assert.Equal(t, userID, got)
	})

	t.Run("falls back to legacy id", func(t *testing.T) {
		token := signClaims(t, secret, auth.Claims{
			LegacyID:         userID.String(),
			RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: exp},
		})

		got, err := jwtService.Verify(token)
		require.NoError(t, err)
		assert.Equal(t, userID, got)
	})

	t.Run("prefers userId over legacy id", func(t *testing.T) {
		token := signClaims(t, secret, auth.Claims{
			UserID:           userID.String(),
			LegacyID:         uuid.NewString(),
			RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: exp},
		})

		got, err := jwtService.Verify(token)
		require.NoError(t, err)
		assert.Equal(t, userID, got)
	})

	t.Run("rejects token without identity", func(t *testing.T) {
		token := signClaims(t, secret, auth.Claims{
			RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: exp},
		})

		_, err := jwtService.Verify(token)
		assert.Equal(t, auth.ErrInvalidToken, err)
	})

	t.Run("rejects malformed identity", func(t *testing.T) {
		token := signClaims(t, secret, auth.Claims{
			UserID:           "not-a-uuid",
			RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: exp},
		})

		_, err := jwtService.Verify(token)
		assert.Equal(t, auth.ErrInvalidToken, err)
	})
}

func TestPasswordHashing(t *testing.T) {
	hash, err := auth.HashPassword("pw1-secret")
	require.NoError(t, err)

	assert.True(t, auth.IsPasswordHash(hash))
	assert.True(t, auth.CheckPassword("pw1-secret", hash))
	assert.False(t, auth.CheckPassword("wrong", hash))

	assert.False(t, auth.IsPasswordHash("plaintext"))
	assert.False(t, auth.IsPasswordHash("$2b$short"))
	assert.True(t, auth.IsPasswordHash("$2y$10$"+string(make([]byte, 53))))
}
