// Package scene is a headless rendering engine. It reads atom coordinates
// where the format allows, fits a camera to them and emits a Scene document
// the browser replays into its 3D library.
package scene

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"biocloud/internal/formats"
	"biocloud/internal/viewer"
)

// Vec3 is a point in Ångström.
type Vec3 [3]float64

// Camera frames the model.
type Camera struct {
	Center Vec3    `json:"center"`
	Radius float64 `json:"radius"`
}

// Scene is everything the client needs to reproduce the render.
type Scene struct {
	Format    string                    `json:"format"`
	Class     formats.StyleClass        `json:"style_class"`
	Style     map[string]map[string]any `json:"style"`
	AtomCount int                       `json:"atom_count"`
	Elements  map[string]int            `json:"elements,omitempty"`
	Camera    *Camera                   `json:"camera,omitempty"`
}

// ErrDisposed is returned by calls on a disposed surface.
var ErrDisposed = errors.New("surface disposed")

// Engine implements viewer.Engine.
type Engine struct{}

// NewEngine creates a headless engine.
func NewEngine() *Engine {
	return &Engine{}
}

func (e *Engine) NewSurface() (viewer.Surface, error) {
	return &Surface{}, nil
}

// Surface holds one loaded model.
type Surface struct {
	mu       sync.Mutex
	disposed bool
	format   string
	model    *Model
	style    formats.Style
	camera   *Camera
}

func (s *Surface) Load(content []byte, format string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return ErrDisposed
	}

	model, err := Parse(content, format)
	if err != nil {
		return err
	}
	s.format = format
	s.model = model
	return nil
}

func (s *Surface) ApplyStyle(style formats.Style) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return ErrDisposed
	}
	if s.model == nil {
		return errors.New("no model loaded")
	}
	s.style = style
	return nil
}

// FitView frames the bounding box of the atoms. Models without readable
// coordinates leave the camera to the client.
func (s *Surface) FitView() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return ErrDisposed
	}
	if s.model == nil {
		return errors.New("no model loaded")
	}
	if len(s.model.Atoms) == 0 {
		s.camera = nil
		return nil
	}

	lo := Vec3{math.Inf(1), math.Inf(1), math.Inf(1)}
	hi := Vec3{math.Inf(-1), math.Inf(-1), math.Inf(-1)}
	for _, a := range s.model.Atoms {
		for i := range 3 {
			lo[i] = math.Min(lo[i], a.Pos[i])
			hi[i] = math.Max(hi[i], a.Pos[i])
		}
	}

	var center Vec3
	var diag float64
	for i := range 3 {
		center[i] = (lo[i] + hi[i]) / 2
		diag += (hi[i] - lo[i]) * (hi[i] - lo[i])
	}
	s.camera = &Camera{Center: center, Radius: math.Max(math.Sqrt(diag)/2, minRadius)}
	return nil
}

// minRadius keeps single atoms visible.
const minRadius = 1.0

func (s *Surface) Render() (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return nil, ErrDisposed
	}
	if s.model == nil {
		return nil, errors.New("no model loaded")
	}
	if len(s.style.Directives) == 0 {
		return nil, fmt.Errorf("no style applied to %s model", s.format)
	}

	scene := &Scene{
		Format:    s.format,
		Class:     s.style.Class,
		Style:     s.style.Spec(),
		AtomCount: len(s.model.Atoms),
		Camera:    s.camera,
	}
	if len(s.model.Atoms) > 0 {
		scene.Elements = s.model.Elements()
	}
	return scene, nil
}

func (s *Surface) Dispose() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disposed = true
	s.model = nil
}
