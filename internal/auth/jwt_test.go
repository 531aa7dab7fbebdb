package auth_test

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatking/chatking/internal/auth"
)

func newProvider(t *testing.T, secret string, now func() time.Time) *auth.JWTTokenProvider {
	t.Helper()
	p, err := auth.NewJWTTokenProvider(auth.JWTConfig{
		Secret:     secret,
		Issuer:     "api_keys/test-key",
		InstanceID: "inst-1",
		Now:        now,
	})
	require.NoError(t, err)
	return p
}

func TestJWTTokenProvider_FetchAndValidate(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	p := newProvider(t, "test-secret", func() time.Time { return now })

	token, err := p.FetchToken(context.Background(), "alice")
	require.NoError(t, err)
	assert.NotEmpty(t, token)

	claims, err := p.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Subject)
	assert.Equal(t, "api_keys/test-key", claims.Issuer)
	assert.Equal(t, "inst-1", claims.Instance)
	assert.True(t, claims.SuperUser)
	assert.Equal(t, now.Unix(), claims.IssuedAt.Unix())
	assert.Equal(t, now.Add(auth.TokenExpiry).Unix(), claims.ExpiresAt.Unix())
}

func TestJWTTokenProvider_UsesHS256(t *testing.T) {
	p := newProvider(t, "test-secret", nil)

	token, err := p.FetchToken(context.Background(), "alice")
	require.NoError(t, err)

	parsed, _, err := jwt.NewParser().ParseUnverified(token, &auth.Claims{})
	require.NoError(t, err)
	assert.Equal(t, "HS256", parsed.Header["alg"])
}

func TestJWTTokenProvider_EmptyUserID(t *testing.T) {
	p := newProvider(t, "test-secret", nil)

	_, err := p.FetchToken(context.Background(), "")
	assert.ErrorIs(t, err, auth.ErrInvalidUserID)
}

func TestJWTTokenProvider_MissingSecret(t *testing.T) {
	_, err := auth.NewJWTTokenProvider(auth.JWTConfig{})
	assert.ErrorIs(t, err, auth.ErrMissingSecret)
}

func TestJWTTokenProvider_InvalidToken(t *testing.T) {
	p := newProvider(t, "test-secret", nil)

	tests := []struct {
		name  string
		token string
	}{
		{"empty token", ""},
		{"malformed token", "not.a.valid.jwt"},
		{"invalid base64", "xxx.yyy.zzz"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.ValidateToken(tt.token)
			assert.ErrorIs(t, err, auth.ErrInvalidToken)
		})
	}
}

func TestJWTTokenProvider_WrongSecret(t *testing.T) {
	signer := newProvider(t, "secret-one", nil)
	verifier := newProvider(t, "secret-two", nil)

	token, err := signer.FetchToken(context.Background(), "alice")
	require.NoError(t, err)

	_, err = verifier.ValidateToken(token)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestJWTTokenProvider_Expired(t *testing.T) {
	issued := time.Now().Add(-48 * time.Hour)
	signer := newProvider(t, "test-secret", func() time.Time { return issued })
	verifier := newProvider(t, "test-secret", nil)

	token, err := signer.FetchToken(context.Background(), "alice")
	require.NoError(t, err)

	_, err = verifier.ValidateToken(token)
	assert.ErrorIs(t, err, auth.ErrTokenExpired)
}

func TestJWTTokenProvider_InstanceMismatch(t *testing.T) {
	signer, err := auth.NewJWTTokenProvider(auth.JWTConfig{Secret: "s", Issuer: "api_keys/test-key", InstanceID: "other"})
	require.NoError(t, err)
	verifier := newProvider(t, "s", nil)

	token, err := signer.FetchToken(context.Background(), "alice")
	require.NoError(t, err)

	_, err = verifier.ValidateToken(token)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}
