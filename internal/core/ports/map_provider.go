package ports

import (
	"context"

	"github.com/samirrijal/routeviz/internal/core/domain"
)

// MarkerOptions controls how a marker is drawn.
type MarkerOptions struct {
	Role      domain.MarkerRole `json:"role"`
	Title     string            `json:"title"`
	Color     string            `json:"color"`
	SegmentID string            `json:"segment_id,omitempty"`
	Tooltip   string            `json:"tooltip,omitempty"`
	ZIndex    int               `json:"z_index"`
}

// PolylineOptions controls how a polyline is drawn.
type PolylineOptions struct {
	Style     domain.LineStyle     `json:"style"`
	Mode      domain.TransportMode `json:"mode"`
	SegmentID string               `json:"segment_id,omitempty"`
	Tooltip   string               `json:"tooltip,omitempty"`
}

// EventSink receives map interactions. Nil callbacks are skipped.
type EventSink struct {
	OnMarkerClick    func(markerID string)
	OnPolylineClick  func(polylineID string)
	OnViewportChange func(view domain.Viewport)
}

// ProviderConfig binds a provider to a display surface.
type ProviderConfig struct {
	SurfaceID string
	View      domain.Viewport
	// OnTileStateChange is called outside provider locks whenever the
	// basemap breaker changes state.
	OnTileStateChange func(domain.TileLoadState)
}

// MapProvider is the capability contract every map backend implements.
// Draw calls are synchronous. Every method other than Initialize fails
// with domain.ErrNotInitialized before Initialize returned nil or after
// Destroy. Removing or updating an unknown id is a no-op.
type MapProvider interface {
	Initialize(ctx context.Context, cfg ProviderConfig) error

	AddMarker(at domain.Coordinate, opts MarkerOptions) (string, error)
	UpdateMarker(id string, at domain.Coordinate, opts MarkerOptions) error
	RemoveMarker(id string) error

	AddPolyline(path []domain.Coordinate, opts PolylineOptions) (string, error)
	UpdatePolyline(id string, path []domain.Coordinate, opts PolylineOptions) error
	RemovePolyline(id string) error

	Clear() error

	// SetBounds fits the view to b. Invalid or degenerate bounds fall back
	// to centering on their midpoint; they never produce an error.
	SetBounds(b domain.MapBounds, paddingPx int) error
	SetView(v domain.Viewport) error
	View() (domain.Viewport, error)

	// SetEvents installs the single active sink, replacing any previous one.
	SetEvents(sink EventSink) error
	RemoveEvents() error

	// LoadTile fetches one basemap tile through the provider's breaker.
	LoadTile(ctx context.Context, z, x, y int) ([]byte, error)
	TileState() (domain.TileLoadState, error)

	Destroy()
}

// ProviderFactory builds one provider per renderer.
type ProviderFactory interface {
	New() (MapProvider, error)
}
