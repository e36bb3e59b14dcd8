package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erazemk/zaloga/internal/db"
	"github.com/erazemk/zaloga/internal/model"
	"github.com/erazemk/zaloga/internal/store"
)

func TestGenerateAndValidateToken(t *testing.T) {
	secret := "test-secret-key"

	token, err := GenerateToken(secret, time.Hour, 1, "admin@example.com", model.RoleAdmin)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := ValidateToken(secret, token)
	require.NoError(t, err)
	assert.Equal(t, int64(1), claims.UserID)
	assert.Equal(t, "admin@example.com", claims.Email)
	assert.Equal(t, model.RoleAdmin, claims.Role)
	assert.Len(t, claims.ID, 32)
}

func TestValidateTokenWrongSecret(t *testing.T) {
	token, err := GenerateToken("secret1", time.Hour, 1, "a@example.com", model.RoleAdmin)
	require.NoError(t, err)

	_, err = ValidateToken("secret2", token)
	assert.Error(t, err)
}

func TestValidateTokenInvalid(t *testing.T) {
	_, err := ValidateToken("secret", "not-a-token")
	assert.Error(t, err)
}

func TestTokenExpiry(t *testing.T) {
	token, err := GenerateToken("test", 0, 1, "a@example.com", model.RoleCustomer)
	require.NoError(t, err)
	claims, err := ValidateToken("test", token)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(DefaultTokenTTL), claims.ExpiresAt.Time, 5*time.Second)

	token, err = GenerateToken("test", time.Minute, 1, "a@example.com", model.RoleCustomer)
	require.NoError(t, err)
	claims, err = ValidateToken("test", token)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Minute), claims.ExpiresAt.Time, 5*time.Second)
}

func TestPasswords(t *testing.T) {
	_, err := HashPassword("short")
	assert.Error(t, err)

	hash, err := HashPassword("correct horse")
	require.NoError(t, err)
	assert.True(t, CheckPassword(hash, "correct horse"))
	assert.False(t, CheckPassword(hash, "wrong horse"))

	pw, err := GeneratePassword(16)
	require.NoError(t, err)
	assert.Len(t, pw, 16)
	assert.NoError(t, model.ValidatePassword(pw))
}

func TestGenerateVerificationCode(t *testing.T) {
	for range 20 {
		code, err := GenerateVerificationCode()
		require.NoError(t, err)
		assert.Regexp(t, `^\d{5}$`, code)
	}
}

func TestPolicyAfterImport(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	p := &Policy{DB: database}

	customer, err := store.CreateUser(ctx, database, "c@example.com", "hash", model.RoleCustomer, "")
	require.NoError(t, err)
	admin, err := store.CreateUser(ctx, database, "a@example.com", "hash", model.RoleAdmin, "")
	require.NoError(t, err)

	changed, err := p.AfterImport(ctx, customer.ID)
	require.NoError(t, err)
	assert.True(t, changed)
	got, err := store.GetUser(ctx, database, customer.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RoleManager, got.Role)

	changed, err = p.AfterImport(ctx, customer.ID)
	require.NoError(t, err)
	assert.False(t, changed)

	changed, err = p.AfterImport(ctx, admin.ID)
	require.NoError(t, err)
	assert.False(t, changed)
	got, err = store.GetUser(ctx, database, admin.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RoleAdmin, got.Role)

	changed, err = p.AfterImport(ctx, 999)
	require.NoError(t, err)
	assert.False(t, changed)
}
