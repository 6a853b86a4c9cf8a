package models

import "time"

// Profile is the public face of a user, keyed by the auth user id.
type Profile struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	FullName  string    `json:"full_name"`
	AvatarURL string    `json:"avatar_url"`
	CreatedAt time.Time `json:"created_at"`
}

// ProfileFromIdentity seeds a profile row from token claims.
func ProfileFromIdentity(id Identity) *Profile {
	return &Profile{
		ID:        id.UserID,
		Email:     id.Email,
		FullName:  id.FullName,
		AvatarURL: id.AvatarURL,
	}
}
