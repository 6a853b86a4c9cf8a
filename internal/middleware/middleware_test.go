package middleware

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"biocloud/internal/domain"
	"biocloud/internal/domain/models"
	"biocloud/internal/httputil"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubVerifier accepts exactly one token.
type stubVerifier struct {
	valid string
}

func (v stubVerifier) VerifyToken(token string) (*models.SupabaseClaims, error) {
	if token != v.valid {
		return nil, fmt.Errorf("%w: bad token", domain.ErrUnauthorized)
	}
	return &models.SupabaseClaims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "user-1"},
		Email:            "ada@example.org",
		Role:             "authenticated",
	}, nil
}

func (stubVerifier) Close() error { return nil }

func echoIdentity(w http.ResponseWriter, r *http.Request) {
	httputil.RespondJSON(w, http.StatusOK, httputil.GetIdentity(r))
}

func TestAuthMiddleware(t *testing.T) {
	h := AuthMiddleware(stubVerifier{valid: "good"})(http.HandlerFunc(echoIdentity))

	tests := []struct {
		name       string
		header     string
		query      string
		wantStatus int
		wantUser   string
	}{
		{"no token is anonymous", "", "", http.StatusOK, ""},
		{"bearer token", "Bearer good", "", http.StatusOK, "user-1"},
		{"lower-case scheme", "bearer good", "", http.StatusOK, "user-1"},
		{"query token", "", "good", http.StatusOK, "user-1"},
		{"invalid token", "Bearer nope", "", http.StatusUnauthorized, ""},
		{"wrong scheme", "Basic good", "", http.StatusUnauthorized, ""},
		{"empty bearer", "Bearer ", "", http.StatusUnauthorized, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target := "/api/projects"
			if tt.query != "" {
				target += "?access_token=" + tt.query
			}
			req := httptest.NewRequest(http.MethodGet, target, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			require.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantStatus == http.StatusOK {
				assert.Contains(t, rec.Body.String(), fmt.Sprintf(`"user_id":%q`, tt.wantUser))
			} else {
				assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
			}
		})
	}
}

func TestRecoveryReturnsProblem(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logs, nil))
	h := Recovery(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic(errors.New("boom"))
	}))

	rec := httptest.NewRecorder()
	req := httputil.WithIdentity(httptest.NewRequest(http.MethodGet, "/api/projects", nil), models.Identity{UserID: "user-9"})
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "internal server error")
	assert.Contains(t, logs.String(), `"user_id":"user-9"`)
	assert.Contains(t, logs.String(), `"path":"/api/projects"`)
}

func TestRecoveryReraisesAbort(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := Recovery(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic(http.ErrAbortHandler)
	}))

	assert.PanicsWithValue(t, http.ErrAbortHandler, func() {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	})
}

func TestKeyedLimiter(t *testing.T) {
	l := NewKeyedLimiter(1, 2)

	assert.True(t, l.Allow("a"))
	assert.True(t, l.Allow("a"))
	assert.False(t, l.Allow("a"))
	assert.True(t, l.Allow("b"), "keys are independent")

	unlimited := NewKeyedLimiter(0, 0)
	for range 100 {
		require.True(t, unlimited.Allow("a"))
	}
}

func TestRateLimitKeysByIdentity(t *testing.T) {
	limiter := NewKeyedLimiter(1, 1)
	h := RateLimit(limiter)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	do := func(id models.Identity) int {
		req := httptest.NewRequest(http.MethodPost, "/api/projects", nil)
		req = httputil.WithIdentity(req, id)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	alice := models.Identity{UserID: "alice"}
	bob := models.Identity{UserID: "bob"}
	assert.Equal(t, http.StatusNoContent, do(alice))
	assert.Equal(t, http.StatusTooManyRequests, do(alice))
	assert.Equal(t, http.StatusNoContent, do(bob))
}
