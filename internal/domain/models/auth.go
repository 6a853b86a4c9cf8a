package models

import "github.com/golang-jwt/jwt/v5"

// SupabaseClaims represents the JWT claims structure from Supabase Auth.
// See: https://supabase.com/docs/guides/auth/jwts
type SupabaseClaims struct {
	jwt.RegisteredClaims                        // Standard JWT claims (sub, iss, aud, exp, iat, etc.)
	Email                string                 `json:"email"`
	Phone                string                 `json:"phone"`
	AppMetadata          map[string]interface{} `json:"app_metadata"`
	UserMetadata         map[string]interface{} `json:"user_metadata"`
	Role                 string                 `json:"role"` // "authenticated" or "anon"
	SessionID            string                 `json:"session_id"`
	IsAnonymous          bool                   `json:"is_anonymous"`
}

// GetUserID returns the user ID from the JWT subject claim.
func (c *SupabaseClaims) GetUserID() string {
	return c.Subject
}

// metadataString reads a string field from user_metadata. OAuth providers
// populate full_name/name and avatar_url/picture inconsistently.
func (c *SupabaseClaims) metadataString(keys ...string) string {
	for _, key := range keys {
		if v, ok := c.UserMetadata[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

// Identity is the explicit session value threaded into every operation.
// The zero value is the anonymous visitor.
type Identity struct {
	UserID    string `json:"user_id"`
	Email     string `json:"email,omitempty"`
	FullName  string `json:"full_name,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// Anonymous returns the identity of a visitor without a session.
func Anonymous() Identity {
	return Identity{}
}

// IdentityFromClaims builds an identity from verified token claims.
func IdentityFromClaims(c *SupabaseClaims) Identity {
	return Identity{
		UserID:    c.GetUserID(),
		Email:     c.Email,
		FullName:  c.metadataString("full_name", "name"),
		AvatarURL: c.metadataString("avatar_url", "picture"),
	}
}

func (i Identity) IsAnonymous() bool {
	return i.UserID == ""
}
