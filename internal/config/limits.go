package config

const (
	// MaxUploadBytes is the largest structure file accepted by the upload
	// pipeline (50 MB). Checked before any storage call.
	MaxUploadBytes = 50 << 20

	// MaxTitleLength is the maximum length for project titles.
	// Titles default to the uploaded file name.
	MaxTitleLength = 255

	// MaxCommentLength is the maximum length of a single comment.
	MaxCommentLength = 4000

	// MaxNotesLength caps the owner's notes field.
	MaxNotesLength = 100_000

	// DefaultBucket is the object store bucket for uploaded structures.
	DefaultBucket = "molecules"
)
