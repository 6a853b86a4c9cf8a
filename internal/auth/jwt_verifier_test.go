package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"io"
	"log/slog"
	"testing"
	"time"

	"biocloud/internal/domain"
	"biocloud/internal/domain/models"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestVerifier(t *testing.T) (*SupabaseJWTVerifier, *rsa.PrivateKey) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	kf := func(*jwt.Token) (interface{}, error) { return &key.PublicKey, nil }
	return NewKeyfuncVerifier(kf, slog.New(slog.NewTextHandler(io.Discard, nil))), key
}

func sign(t *testing.T, key *rsa.PrivateKey, claims *models.SupabaseClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
	require.NoError(t, err)
	return token
}

func validClaims() *models.SupabaseClaims {
	return &models.SupabaseClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "8d0c5a1e-2f0b-4c55-9a55-0f4f1bb3c7a1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Email: "franklin@kings.ac.uk",
		Role:  "authenticated",
	}
}

func TestVerifyTokenAcceptsValidToken(t *testing.T) {
	v, key := newTestVerifier(t)

	claims, err := v.VerifyToken(sign(t, key, validClaims()))
	require.NoError(t, err)
	assert.Equal(t, "8d0c5a1e-2f0b-4c55-9a55-0f4f1bb3c7a1", claims.GetUserID())
	assert.Equal(t, "franklin@kings.ac.uk", claims.Email)
}

func TestVerifyTokenRejects(t *testing.T) {
	v, key := newTestVerifier(t)
	other, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	tests := []struct {
		name  string
		token func() string
	}{
		{"garbage", func() string { return "not.a.jwt" }},
		{"expired", func() string {
			c := validClaims()
			c.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))
			return sign(t, key, c)
		}},
		{"no expiry", func() string {
			c := validClaims()
			c.ExpiresAt = nil
			return sign(t, key, c)
		}},
		{"anon role", func() string {
			c := validClaims()
			c.Role = "anon"
			return sign(t, key, c)
		}},
		{"missing subject", func() string {
			c := validClaims()
			c.Subject = ""
			return sign(t, key, c)
		}},
		{"wrong key", func() string { return sign(t, other, validClaims()) }},
		{"hmac algorithm", func() string {
			token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, validClaims()).SignedString([]byte("secret"))
			require.NoError(t, err)
			return token
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.VerifyToken(tt.token())
			assert.ErrorIs(t, err, domain.ErrUnauthorized)
		})
	}
}
