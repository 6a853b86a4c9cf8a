package middleware

import (
	"net/http"
	"strings"

	"biocloud/internal/auth"
	"biocloud/internal/domain/models"
	"biocloud/internal/httputil"
)

// AuthMiddleware verifies the Supabase access token and stores the caller's
// identity in the request context.
//
// A request without a token continues as anonymous: public projects are
// readable without signing in, and services reject anonymous writes. A token
// that is present but invalid is rejected with 401. WebSocket upgrades cannot
// set headers from the browser, so the token may also come from the
// access_token query parameter.
func AuthMiddleware(verifier auth.JWTVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := tokenFromRequest(r)
			if !ok {
				next.ServeHTTP(w, httputil.WithIdentity(r, models.Anonymous()))
				return
			}

			claims, err := verifier.VerifyToken(token)
			if err != nil {
				httputil.RespondError(w, http.StatusUnauthorized, "invalid or expired token")
				return
			}

			next.ServeHTTP(w, httputil.WithIdentity(r, models.IdentityFromClaims(claims)))
		})
	}
}

// tokenFromRequest returns the bearer token, if any.
func tokenFromRequest(r *http.Request) (string, bool) {
	if header := r.Header.Get("Authorization"); header != "" {
		scheme, token, found := strings.Cut(header, " ")
		if !found || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
			return "", true
		}
		return strings.TrimSpace(token), true
	}

	if token := r.URL.Query().Get("access_token"); token != "" {
		return token, true
	}
	return "", false
}
