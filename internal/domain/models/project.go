package models

import "time"

// Project is one uploaded structure file and its metadata.
type Project struct {
	ID            string    `json:"id"`
	OwnerID       string    `json:"owner_id"`
	Title         string    `json:"title"`
	FileURL       string    `json:"file_url"`
	FilePath      string    `json:"file_path"`
	FileExtension string    `json:"file_extension"`
	IsPublic      bool      `json:"is_public"`
	Notes         string    `json:"notes"`
	ViewCount     int       `json:"view_count"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// IsOwnedBy reports whether the identity owns the project. Anonymous
// identities own nothing.
func (p *Project) IsOwnedBy(id Identity) bool {
	return !id.IsAnonymous() && p.OwnerID == id.UserID
}

// VisibleTo mirrors the store's read predicate.
func (p *Project) VisibleTo(id Identity) bool {
	return p.IsPublic || p.IsOwnedBy(id)
}
