// Package viewer drives a render surface through fetch, load, style, fit and
// render for one (url, extension) input at a time.
//
// Every SetInput starts a new generation. The pipeline goroutine re-checks
// its generation under the viewer lock before each engine call and each state
// transition, so a superseded fetch can never touch the surface or the state
// that belongs to a later input.
package viewer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"biocloud/internal/domain"
	"biocloud/internal/formats"
)

// State of the current generation.
type State string

const (
	StateInit     State = "INIT"
	StateLoading  State = "LOADING"
	StateRendered State = "RENDERED"
	StateError    State = "ERROR"
)

// Terminal reports whether the state ends a generation.
func (s State) Terminal() bool {
	return s == StateRendered || s == StateError
}

// Input identifies the file to render.
type Input struct {
	URL       string
	Extension string
}

// Status is a snapshot delivered to observers on every transition.
type Status struct {
	State      State
	Generation uint64
	Input      Input
	Style      formats.Style
	Frame      any
	Err        *domain.RenderError
}

// Observer receives transitions in order. Observers run on the goroutine
// that caused the transition and must not call back into the Viewer.
type Observer func(Status)

// errStale aborts a pipeline whose generation was superseded.
var errStale = errors.New("stale generation")

// Viewer is the render state machine for one mount.
type Viewer struct {
	engine  Engine
	fetcher Fetcher
	catalog *formats.Catalog
	logger  *slog.Logger

	mu        sync.Mutex
	gen       uint64
	status    Status
	hasInput  bool
	surface   Surface
	cancel    context.CancelFunc
	terminal  chan struct{}
	observers []Observer
	closed    bool

	// notifyMu keeps observer calls in transition order without holding mu
	notifyMu sync.Mutex
}

// New creates a viewer in state INIT.
func New(engine Engine, fetcher Fetcher, catalog *formats.Catalog, logger *slog.Logger) *Viewer {
	return &Viewer{
		engine:   engine,
		fetcher:  fetcher,
		catalog:  catalog,
		logger:   logger,
		status:   Status{State: StateInit},
		terminal: make(chan struct{}),
	}
}

// Observe registers an observer for all later transitions.
func (v *Viewer) Observe(fn Observer) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.observers = append(v.observers, fn)
}

// Status returns the current snapshot.
func (v *Viewer) Status() Status {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.status
}

// SetInput starts loading in when it differs from the current input. The
// first call always loads. Returns the generation now current.
func (v *Viewer) SetInput(in Input) uint64 {
	v.mu.Lock()
	if v.closed {
		gen := v.gen
		v.mu.Unlock()
		return gen
	}
	if v.hasInput && v.status.Input == in {
		gen := v.gen
		v.mu.Unlock()
		return gen
	}

	v.supersedeLocked()
	v.hasInput = true
	v.gen++
	gen := v.gen
	v.terminal = make(chan struct{})

	surface, err := v.engine.NewSurface()
	if err != nil {
		v.status = Status{State: StateLoading, Generation: gen, Input: in}
		v.finishLocked(gen, Status{
			State:      StateError,
			Generation: gen,
			Input:      in,
			Err:        &domain.RenderError{Message: fmt.Sprintf("Failed to create viewer: %v", err)},
		})
		return gen
	}
	v.surface = surface

	ctx, cancel := context.WithCancel(context.Background())
	v.cancel = cancel

	loading := Status{State: StateLoading, Generation: gen, Input: in}
	v.status = loading
	v.notifyLocked(loading)

	go v.run(ctx, gen, in, surface)
	return gen
}

// Close cancels any load, disposes the surface and ignores later results.
func (v *Viewer) Close() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return
	}
	v.closed = true
	v.supersedeLocked()
	v.gen++
	v.closeTerminal()
}

// Wait blocks until the current generation reaches a terminal state or the
// viewer is closed. A generation superseded while waiting is followed.
func (v *Viewer) Wait(ctx context.Context) (Status, error) {
	for {
		v.mu.Lock()
		ch := v.terminal
		v.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			return v.Status(), ctx.Err()
		}

		v.mu.Lock()
		st, closed := v.status, v.closed
		v.mu.Unlock()
		if closed || st.State.Terminal() {
			return st, nil
		}
	}
}

// supersedeLocked cancels the in-flight pipeline and disposes its surface.
func (v *Viewer) supersedeLocked() {
	if v.cancel != nil {
		v.cancel()
		v.cancel = nil
	}
	if v.surface != nil {
		v.surface.Dispose()
		v.surface = nil
	}
	if !v.status.State.Terminal() {
		v.closeTerminal()
	}
}

func (v *Viewer) closeTerminal() {
	select {
	case <-v.terminal:
	default:
		close(v.terminal)
	}
}

// notifyLocked hands a status to observers. Caller holds mu; notifyLocked
// releases it.
func (v *Viewer) notifyLocked(st Status) {
	observers := v.observers
	v.notifyMu.Lock()
	v.mu.Unlock()
	defer v.notifyMu.Unlock()

	for _, fn := range observers {
		fn(st)
	}
}

// finishLocked records a terminal status. Caller holds mu; it is released.
func (v *Viewer) finishLocked(gen uint64, st Status) {
	v.status = st
	v.closeTerminal()
	if st.State == StateError {
		v.logger.Warn("render failed",
			"generation", gen,
			"url", st.Input.URL,
			"status", st.Err.Status,
			"error", st.Err.Message,
		)
	}
	v.notifyLocked(st)
}

// step runs fn under the viewer lock if gen is still current.
func (v *Viewer) step(gen uint64, fn func() error) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if gen != v.gen {
		return errStale
	}
	return fn()
}

func (v *Viewer) current(gen uint64) error {
	return v.step(gen, func() error { return nil })
}

func (v *Viewer) run(ctx context.Context, gen uint64, in Input, surface Surface) {
	frame, style, err := v.pipeline(ctx, gen, in, surface)
	if errors.Is(err, errStale) {
		v.logger.Debug("render superseded", "generation", gen, "url", in.URL)
		return
	}

	v.mu.Lock()
	if gen != v.gen {
		v.mu.Unlock()
		return
	}

	st := Status{Generation: gen, Input: in, Style: style}
	if err != nil {
		var rerr *domain.RenderError
		if !errors.As(err, &rerr) {
			rerr = &domain.RenderError{Message: err.Error()}
		}
		st.State = StateError
		st.Err = rerr
	} else {
		st.State = StateRendered
		st.Frame = frame
	}
	v.finishLocked(gen, st)
}

func (v *Viewer) pipeline(ctx context.Context, gen uint64, in Input, surface Surface) (any, formats.Style, error) {
	var style formats.Style

	data, err := v.fetcher.Fetch(ctx, in.URL)
	if err := v.current(gen); err != nil {
		return nil, style, err
	}
	if err != nil {
		return nil, style, err
	}

	if err := CheckContent(data); err != nil {
		return nil, style, err
	}

	format := formats.Normalize(in.Extension)
	style = v.catalog.Classify(format)

	err = v.step(gen, func() error {
		if err := surface.Load(data, format); err != nil {
			return &domain.RenderError{Message: fmt.Sprintf("Failed to parse %s file: %v", format, err)}
		}
		return nil
	})
	if err != nil {
		return nil, style, err
	}

	err = v.step(gen, func() error { return surface.ApplyStyle(style) })
	if err != nil {
		return nil, style, err
	}

	err = v.step(gen, surface.FitView)
	if err != nil {
		return nil, style, err
	}

	var frame any
	err = v.step(gen, func() error {
		var err error
		frame, err = surface.Render()
		return err
	})
	return frame, style, err
}

var htmlMarkers = [][]byte{[]byte("<!doctype"), []byte("<html")}

// CheckContent rejects bodies that cannot be structure data: empty bodies and
// HTML pages served in place of the file.
func CheckContent(data []byte) error {
	if len(data) == 0 {
		return &domain.RenderError{Message: "File is empty"}
	}

	head := bytes.TrimSpace(data)
	if len(head) > 16 {
		head = head[:16]
	}
	head = bytes.ToLower(head)
	for _, marker := range htmlMarkers {
		if bytes.HasPrefix(head, marker) {
			return &domain.RenderError{
				Message: "File validation failed (Received HTML instead of molecule data). Check file URL access.",
			}
		}
	}
	return nil
}
