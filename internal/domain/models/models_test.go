package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCommentAuthor(t *testing.T) {
	tests := []struct {
		name    string
		profile *Profile
		want    string
		initial string
	}{
		{"full name wins", &Profile{FullName: "Rosalind Franklin", Email: "rf@kings.ac.uk"}, "Rosalind Franklin", "R"},
		{"email local part", &Profile{Email: "linus.pauling@caltech.edu"}, "linus.pauling", "L"},
		{"blank full name falls through", &Profile{FullName: "  ", Email: "dh@ox.ac.uk"}, "dh", "D"},
		{"no profile", nil, "Unknown", "U"},
		{"empty profile", &Profile{}, "Unknown", "U"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			author := NewCommentAuthor("user-1", tt.profile)
			assert.Equal(t, tt.want, author.DisplayName)
			assert.Equal(t, tt.initial, author.Initial)
			assert.Equal(t, AvatarColor("user-1"), author.AvatarColor)
		})
	}
}

func TestAvatarColorIsStable(t *testing.T) {
	a := AvatarColor("6f1c2c1e-6a0b-4d5e-9d43-5a8a1d1c2b3a")
	b := AvatarColor("6f1c2c1e-6a0b-4d5e-9d43-5a8a1d1c2b3a")
	assert.Equal(t, a, b)
	assert.Contains(t, avatarPalette, a)
	assert.Len(t, avatarPalette, 17)
}

func TestProjectOwnership(t *testing.T) {
	p := &Project{OwnerID: "owner", IsPublic: false}

	assert.True(t, p.IsOwnedBy(Identity{UserID: "owner"}))
	assert.False(t, p.IsOwnedBy(Identity{UserID: "someone"}))
	assert.False(t, p.IsOwnedBy(Anonymous()))
	assert.False(t, p.VisibleTo(Anonymous()))

	p.IsPublic = true
	assert.True(t, p.VisibleTo(Anonymous()))
}

func TestIdentityFromClaims(t *testing.T) {
	claims := &SupabaseClaims{
		Email: "ada@example.org",
		UserMetadata: map[string]interface{}{
			"name":    "Ada",
			"picture": "https://img/ada.png",
		},
	}
	claims.Subject = "uid-1"

	id := IdentityFromClaims(claims)
	assert.Equal(t, Identity{UserID: "uid-1", Email: "ada@example.org", FullName: "Ada", AvatarURL: "https://img/ada.png"}, id)
	assert.False(t, id.IsAnonymous())
}

func TestChangeEventTopics(t *testing.T) {
	tests := []struct {
		name  string
		event ChangeEvent
		want  []string
	}{
		{
			name:  "comment insert",
			event: ChangeEvent{Table: TableComments, Type: ChangeInsert, New: json.RawMessage(`{"id":"c1","project_id":"p1"}`)},
			want:  []string{"comments:p1"},
		},
		{
			name:  "comment delete uses old row",
			event: ChangeEvent{Table: TableComments, Type: ChangeDelete, Old: json.RawMessage(`{"id":"c1","project_id":"p1"}`)},
			want:  []string{"comments:p1"},
		},
		{
			name:  "project update",
			event: ChangeEvent{Table: TableProjects, Type: ChangeUpdate, New: json.RawMessage(`{"id":"p1","owner_id":"u1","is_public":false}`)},
			want:  []string{"project:p1", "projects:owner:u1"},
		},
		{
			name:  "unknown table",
			event: ChangeEvent{Table: "profiles", Type: ChangeInsert, New: json.RawMessage(`{"id":"u1"}`)},
			want:  nil,
		},
		{
			name:  "no row",
			event: ChangeEvent{Table: TableComments, Type: ChangeInsert},
			want:  nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.event.Topics())
		})
	}
}

func TestChangeEventRowPrefersNew(t *testing.T) {
	ev := ChangeEvent{
		New: json.RawMessage(`{"id":"p1","is_public":false}`),
		Old: json.RawMessage(`{"id":"p1","is_public":true}`),
	}

	row, err := ev.Row()
	require.NoError(t, err)
	require.NotNil(t, row.IsPublic)
	assert.False(t, *row.IsPublic)

	old, err := ev.OldRow()
	require.NoError(t, err)
	assert.True(t, *old.IsPublic)
}
