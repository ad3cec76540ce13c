package ports

import "github.com/samirrijal/routeviz/internal/core/domain"

// SurfaceCommand is one instruction a provider sends to its display.
// Payload shape depends on the provider dialect.
type SurfaceCommand struct {
	Op      string `json:"op"`
	Target  string `json:"target,omitempty"`
	Payload any    `json:"payload,omitempty"`
}

// SurfaceInput is an interaction reported by a display.
type SurfaceInput struct {
	Kind     domain.MapEventKind `json:"kind"`
	TargetID string              `json:"target_id,omitempty"`
	Viewport *domain.Viewport    `json:"viewport,omitempty"`
}

// HeadlessSurfacePrefix marks surface ids that resolvers create on demand
// and record server-side.
const HeadlessSurfacePrefix = "headless:"

// Surface is the display a provider binds to: a browser tab or a
// headless recorder.
type Surface interface {
	ID() string
	Size() (width, height int)
	Apply(cmd SurfaceCommand) error
	// InvalidateSize asks the display to re-measure its viewport.
	InvalidateSize()
	// OnInput registers fn for interactions and returns its cancel func.
	OnInput(fn func(SurfaceInput)) (cancel func())
}

// SurfaceResolver finds attached surfaces by id.
type SurfaceResolver interface {
	Resolve(id string) (Surface, bool)
}

// SurfaceReleaser forgets a surface once its last session is gone.
type SurfaceReleaser interface {
	Release(id string)
}
