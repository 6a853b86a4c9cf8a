package auth

import "biocloud/internal/domain/models"

// JWTVerifier defines the interface for JWT token verification.
// Middleware and the realtime handler depend on this, not on Supabase.
type JWTVerifier interface {
	// VerifyToken validates a JWT token string and returns the parsed claims.
	// Returns an error wrapping ErrUnauthorized if the token is invalid,
	// expired, or has an invalid signature.
	VerifyToken(tokenString string) (*models.SupabaseClaims, error)

	// Close releases any resources held by the verifier.
	Close() error
}
