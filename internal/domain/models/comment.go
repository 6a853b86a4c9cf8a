package models

import (
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
)

// Comment is an append-only remark on a project. Never edited.
type Comment struct {
	ID        string        `json:"id"`
	ProjectID string        `json:"project_id"`
	UserID    string        `json:"user_id"`
	Content   string        `json:"content"`
	CreatedAt time.Time     `json:"created_at"`
	Author    CommentAuthor `json:"author"`
}

// CommentAuthor is the display data merged from the author's profile.
type CommentAuthor struct {
	DisplayName string `json:"display_name"`
	Initial     string `json:"initial"`
	AvatarURL   string `json:"avatar_url,omitempty"`
	AvatarColor string `json:"avatar_color"`
}

// avatarPalette are the background classes assigned to authors without an avatar.
var avatarPalette = []string{
	"bg-red-500", "bg-orange-500", "bg-amber-500", "bg-yellow-500",
	"bg-lime-500", "bg-green-500", "bg-emerald-500", "bg-teal-500",
	"bg-cyan-500", "bg-sky-500", "bg-blue-500", "bg-indigo-500",
	"bg-violet-500", "bg-purple-500", "bg-fuchsia-500", "bg-pink-500", "bg-rose-500",
}

// AvatarColor returns a stable palette entry for a user id.
func AvatarColor(userID string) string {
	return avatarPalette[xxhash.Sum64String(userID)%uint64(len(avatarPalette))]
}

// NewCommentAuthor merges the optional profile row into display data.
// Name falls back from full name to the email local part to "Unknown".
func NewCommentAuthor(userID string, profile *Profile) CommentAuthor {
	name := "Unknown"
	var avatarURL string
	if profile != nil {
		avatarURL = profile.AvatarURL
		switch {
		case strings.TrimSpace(profile.FullName) != "":
			name = strings.TrimSpace(profile.FullName)
		case profile.Email != "":
			if local, _, _ := strings.Cut(profile.Email, "@"); local != "" {
				name = local
			}
		}
	}

	return CommentAuthor{
		DisplayName: name,
		Initial:     strings.ToUpper(string([]rune(name)[:1])),
		AvatarURL:   avatarURL,
		AvatarColor: AvatarColor(userID),
	}
}
