package viewer

import "biocloud/internal/formats"

// Engine creates render surfaces. A surface is bound to one input and is
// disposed when the input is superseded.
type Engine interface {
	NewSurface() (Surface, error)
}

// Surface is the narrow capability the viewer drives. Calls are made in the
// order Load, ApplyStyle, FitView, Render, never concurrently, and never
// after Dispose.
type Surface interface {
	// Load parses content in the given format into a model
	Load(content []byte, format string) error

	ApplyStyle(style formats.Style) error
	FitView() error

	// Render produces the frame handed to observers
	Render() (any, error)

	Dispose()
}
