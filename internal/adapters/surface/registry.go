package surface

import (
	"log/slog"
	"strings"
	"sync"

	"github.com/samirrijal/routeviz/internal/core/ports"
)

// Registry tracks attached surfaces. Ids carrying
// ports.HeadlessSurfacePrefix resolve to a recorder created on first use.
type Registry struct {
	mu       sync.RWMutex
	surfaces map[string]ports.Surface
	logger   *slog.Logger
}

func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		surfaces: make(map[string]ports.Surface),
		logger:   logger,
	}
}

// Attach registers s, replacing any surface with the same id.
func (r *Registry) Attach(s ports.Surface) {
	r.mu.Lock()
	_, replaced := r.surfaces[s.ID()]
	r.surfaces[s.ID()] = s
	r.mu.Unlock()
	r.logger.Debug("surface attached", "surface_id", s.ID(), "replaced", replaced)
}

// Detach removes s if it is still the registered surface for its id.
func (r *Registry) Detach(s ports.Surface) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.surfaces[s.ID()]; ok && cur == s {
		delete(r.surfaces, s.ID())
		r.logger.Debug("surface detached", "surface_id", s.ID())
	}
}

// Resolve implements ports.SurfaceResolver.
func (r *Registry) Resolve(id string) (ports.Surface, bool) {
	r.mu.RLock()
	s, ok := r.surfaces[id]
	r.mu.RUnlock()
	if ok {
		return s, true
	}
	if !strings.HasPrefix(id, ports.HeadlessSurfacePrefix) {
		return nil, false
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.surfaces[id]; ok {
		return s, true
	}
	h := NewHeadless(id, 0, 0)
	r.surfaces[id] = h
	return h, true
}

// Release drops a headless surface. Attached sockets are left alone;
// they detach when their connection ends.
func (r *Registry) Release(id string) {
	if !strings.HasPrefix(id, ports.HeadlessSurfacePrefix) {
		return
	}
	r.mu.Lock()
	delete(r.surfaces, id)
	r.mu.Unlock()
}

// Len returns the number of attached surfaces.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.surfaces)
}
