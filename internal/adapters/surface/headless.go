// Package surface provides the display surfaces map providers draw on: a
// headless recorder for server-side scenes and a websocket bridge to a
// browser map.
package surface

import (
	"sync"

	"github.com/samirrijal/routeviz/internal/core/ports"
)

const (
	defaultWidth  = 1024
	defaultHeight = 768
	// maxRecorded caps the command log of a long-lived headless surface.
	maxRecorded = 4096
)

// Headless records every command it receives. It backs server-side
// renders and tests.
type Headless struct {
	id     string
	width  int
	height int

	mu          sync.Mutex
	commands    []ports.SurfaceCommand
	invalidated int
	listeners   map[int]func(ports.SurfaceInput)
	nextID      int
}

// NewHeadless creates a recorder with the given pixel size. Non-positive
// dimensions fall back to 1024x768.
func NewHeadless(id string, width, height int) *Headless {
	if width <= 0 {
		width = defaultWidth
	}
	if height <= 0 {
		height = defaultHeight
	}
	return &Headless{
		id:        id,
		width:     width,
		height:    height,
		listeners: make(map[int]func(ports.SurfaceInput)),
	}
}

func (h *Headless) ID() string { return h.id }

func (h *Headless) Size() (int, int) { return h.width, h.height }

func (h *Headless) Apply(cmd ports.SurfaceCommand) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.commands) >= maxRecorded {
		h.commands = append(h.commands[:0], h.commands[len(h.commands)/2:]...)
	}
	h.commands = append(h.commands, cmd)
	return nil
}

func (h *Headless) InvalidateSize() {
	h.mu.Lock()
	h.invalidated++
	h.mu.Unlock()
}

func (h *Headless) OnInput(fn func(ports.SurfaceInput)) func() {
	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.listeners[id] = fn
	h.mu.Unlock()

	return func() {
		h.mu.Lock()
		delete(h.listeners, id)
		h.mu.Unlock()
	}
}

// Emit delivers an interaction to every registered listener.
func (h *Headless) Emit(in ports.SurfaceInput) {
	h.mu.Lock()
	fns := make([]func(ports.SurfaceInput), 0, len(h.listeners))
	for _, fn := range h.listeners {
		fns = append(fns, fn)
	}
	h.mu.Unlock()

	for _, fn := range fns {
		fn(in)
	}
}

// Commands returns a copy of the recorded commands.
func (h *Headless) Commands() []ports.SurfaceCommand {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]ports.SurfaceCommand, len(h.commands))
	copy(out, h.commands)
	return out
}

// Invalidations returns how many times InvalidateSize was called.
func (h *Headless) Invalidations() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.invalidated
}

// Listeners returns the number of registered input listeners.
func (h *Headless) Listeners() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.listeners)
}
