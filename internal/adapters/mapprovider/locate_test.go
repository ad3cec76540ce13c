package mapprovider

import (
	"testing"

	"github.com/samirrijal/routeviz/internal/adapters/surface"
)

func TestSurfaceSearch_Phases(t *testing.T) {
	reg := surface.NewRegistry(nil)
	s := &surfaceSearch{resolver: reg, id: "browser-1", maxAttempts: 3}

	s.step()
	if s.phase != searching || s.attempt != 1 {
		t.Fatalf("after 1 step: phase=%v attempt=%d", s.phase, s.attempt)
	}

	reg.Attach(surface.NewHeadless("browser-1", 0, 0))
	s.step()
	if s.phase != found || s.surface == nil {
		t.Fatalf("expected found, got phase=%v", s.phase)
	}

	// terminal phases do not advance
	s.step()
	if s.attempt != 2 {
		t.Errorf("attempt = %d, want 2", s.attempt)
	}
}

func TestSurfaceSearch_FailsAfterBudget(t *testing.T) {
	s := &surfaceSearch{resolver: surface.NewRegistry(nil), id: "browser-1", maxAttempts: 2}

	s.step()
	s.step()
	if s.phase != failed {
		t.Fatalf("phase = %v, want failed", s.phase)
	}
}
