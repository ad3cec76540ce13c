package mapprovider

import (
	"context"
	"fmt"
	"time"

	"github.com/samirrijal/routeviz/internal/core/domain"
	"github.com/samirrijal/routeviz/internal/core/ports"
)

type searchPhase int

const (
	searching searchPhase = iota
	found
	failed
)

// surfaceSearch is the Searching(attempt) → Found | Failed machine used
// while a provider waits for its surface to attach.
type surfaceSearch struct {
	resolver    ports.SurfaceResolver
	id          string
	maxAttempts int

	phase   searchPhase
	attempt int
	surface ports.Surface
}

// step performs one lookup and advances the phase.
func (s *surfaceSearch) step() {
	if s.phase != searching {
		return
	}
	s.attempt++
	if sf, ok := s.resolver.Resolve(s.id); ok {
		s.surface = sf
		s.phase = found
		return
	}
	if s.attempt >= s.maxAttempts {
		s.phase = failed
	}
}

// locateSurface drives the search with a single timer. The first lookup
// happens immediately; later ones are spaced by interval.
func locateSurface(ctx context.Context, resolver ports.SurfaceResolver, id string, attempts int, interval time.Duration) (ports.Surface, error) {
	if resolver == nil {
		return nil, fmt.Errorf("%w: no surface resolver", domain.ErrInitialization)
	}
	if attempts <= 0 {
		attempts = 1
	}

	s := &surfaceSearch{resolver: resolver, id: id, maxAttempts: attempts}
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: surface %q: %v", domain.ErrInitialization, id, ctx.Err())
		case <-timer.C:
		}

		s.step()
		switch s.phase {
		case found:
			return s.surface, nil
		case failed:
			return nil, fmt.Errorf("%w: surface %q not found after %d attempts", domain.ErrInitialization, id, s.attempt)
		}
		timer.Reset(interval)
	}
}
