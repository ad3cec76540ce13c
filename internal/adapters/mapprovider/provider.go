// Package mapprovider implements the map backends behind ports.MapProvider.
// Both backends share one registry, lifecycle and tile layer and differ
// only in the commands they send to their surface.
package mapprovider

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/facebookgo/clock"
	"github.com/google/uuid"

	"github.com/samirrijal/routeviz/internal/core/domain"
	"github.com/samirrijal/routeviz/internal/core/ports"
	"github.com/samirrijal/routeviz/internal/pkg/geospatial"
	"github.com/samirrijal/routeviz/internal/tiles"
)

const (
	opAdd    = "add"
	opUpdate = "update"
)

// dialect translates provider operations into surface commands.
type dialect interface {
	kind() string
	maxZoom() float64
	// snapZoom maps a computed zoom onto the backend's zoom model.
	snapZoom(z float64) float64
	setup(view domain.Viewport, src tiles.Source) ports.SurfaceCommand
	basemap(src tiles.Source) ports.SurfaceCommand
	marker(op, id string, at domain.Coordinate, opts ports.MarkerOptions) ports.SurfaceCommand
	polyline(op, id string, path []domain.Coordinate, opts ports.PolylineOptions) ports.SurfaceCommand
	remove(id string) ports.SurfaceCommand
	// camera moves the view; fit is nil for a plain set-view.
	camera(view domain.Viewport, fit *domain.MapBounds, paddingPx int) ports.SurfaceCommand
}

// Options are the dependencies shared by every provider a factory builds.
type Options struct {
	Surfaces ports.SurfaceResolver
	Fetcher  tiles.Fetcher
	Clock    clock.Clock
	Logger   *slog.Logger

	Primary  tiles.Source
	Fallback tiles.Source
	Breaker  tiles.BreakerConfig

	SurfaceAttempts int
	SurfaceInterval time.Duration

	// OnTileLoad observes every settled tile load, e.g. for metrics.
	OnTileLoad func(source string, err error)
	// OnFallback is called once per provider when its basemap swaps.
	OnFallback func(from, to tiles.Source)
}

type markerEntry struct {
	at   domain.Coordinate
	opts ports.MarkerOptions
}

type polylineEntry struct {
	path []domain.Coordinate
	opts ports.PolylineOptions
}

// provider is the shared implementation of ports.MapProvider.
type provider struct {
	dialect dialect
	opts    Options
	logger  *slog.Logger

	mu          sync.Mutex
	initialized bool
	destroyed   bool
	surface     ports.Surface
	cancelInput func()
	layer       *tiles.Layer
	markers     map[string]markerEntry
	polylines   map[string]polylineEntry
	view        domain.Viewport
	sink        *ports.EventSink
}

func newProvider(d dialect, opts Options) *provider {
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.SurfaceAttempts <= 0 {
		opts.SurfaceAttempts = 60
	}
	if opts.SurfaceInterval <= 0 {
		opts.SurfaceInterval = 100 * time.Millisecond
	}
	return &provider{
		dialect:   d,
		opts:      opts,
		logger:    opts.Logger.With("provider", d.kind()),
		markers:   make(map[string]markerEntry),
		polylines: make(map[string]polylineEntry),
	}
}

func (p *provider) Initialize(ctx context.Context, cfg ports.ProviderConfig) error {
	p.mu.Lock()
	switch {
	case p.destroyed:
		p.mu.Unlock()
		return fmt.Errorf("%w: provider destroyed", domain.ErrNotInitialized)
	case p.initialized:
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	surface, err := locateSurface(ctx, p.opts.Surfaces, cfg.SurfaceID, p.opts.SurfaceAttempts, p.opts.SurfaceInterval)
	if err != nil {
		p.logger.Error("surface not available", "surface_id", cfg.SurfaceID, "error", err)
		return err
	}

	layer, err := tiles.NewLayer(tiles.LayerConfig{
		Primary:  p.opts.Primary,
		Fallback: p.opts.Fallback,
		Breaker:  p.opts.Breaker,
	}, p.opts.Fetcher, p.opts.Clock, p.logger, tiles.LayerHooks{
		OnSwap:        p.swapBasemap,
		OnStateChange: cfg.OnTileStateChange,
		OnLoad:        p.opts.OnTileLoad,
	})
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInitialization, err)
	}

	view := cfg.View
	if c, err := geospatial.Normalize(view.Center); err == nil {
		view.Center = c
	} else {
		view.Center = domain.Coordinate{}
	}
	view.Zoom = p.clampZoom(view.Zoom)

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.destroyed {
		layer.Close()
		return fmt.Errorf("%w: provider destroyed during initialization", domain.ErrNotInitialized)
	}
	if p.initialized {
		layer.Close()
		return nil
	}

	p.surface = surface
	p.layer = layer
	p.view = view
	p.send(p.dialect.setup(view, p.opts.Primary))
	p.cancelInput = surface.OnInput(p.handleInput)
	p.initialized = true

	p.logger.Info("map provider initialized", "surface_id", surface.ID(), "basemap", p.opts.Primary.Name)
	return nil
}

func (p *provider) AddMarker(at domain.Coordinate, opts ports.MarkerOptions) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.readyLocked(); err != nil {
		return "", err
	}
	pos, err := geospatial.Normalize(at)
	if err != nil {
		return "", err
	}

	id := "marker-" + uuid.NewString()
	p.markers[id] = markerEntry{at: pos, opts: opts}
	p.send(p.dialect.marker(opAdd, id, pos, opts))
	return id, nil
}

func (p *provider) UpdateMarker(id string, at domain.Coordinate, opts ports.MarkerOptions) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.readyLocked(); err != nil {
		return err
	}
	pos, err := geospatial.Normalize(at)
	if err != nil {
		return err
	}
	if _, ok := p.markers[id]; !ok {
		return nil
	}
	p.markers[id] = markerEntry{at: pos, opts: opts}
	p.send(p.dialect.marker(opUpdate, id, pos, opts))
	return nil
}

func (p *provider) RemoveMarker(id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.readyLocked(); err != nil {
		return err
	}
	if _, ok := p.markers[id]; !ok {
		return nil
	}
	delete(p.markers, id)
	p.send(p.dialect.remove(id))
	return nil
}

func (p *provider) AddPolyline(path []domain.Coordinate, opts ports.PolylineOptions) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.readyLocked(); err != nil {
		return "", err
	}
	clean, err := normalizePath(path)
	if err != nil {
		return "", err
	}

	id := "polyline-" + uuid.NewString()
	p.polylines[id] = polylineEntry{path: clean, opts: opts}
	p.send(p.dialect.polyline(opAdd, id, clean, opts))
	return id, nil
}

func (p *provider) UpdatePolyline(id string, path []domain.Coordinate, opts ports.PolylineOptions) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.readyLocked(); err != nil {
		return err
	}
	clean, err := normalizePath(path)
	if err != nil {
		return err
	}
	if _, ok := p.polylines[id]; !ok {
		return nil
	}
	p.polylines[id] = polylineEntry{path: clean, opts: opts}
	p.send(p.dialect.polyline(opUpdate, id, clean, opts))
	return nil
}

func (p *provider) RemovePolyline(id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.readyLocked(); err != nil {
		return err
	}
	if _, ok := p.polylines[id]; !ok {
		return nil
	}
	delete(p.polylines, id)
	p.send(p.dialect.remove(id))
	return nil
}

func (p *provider) Clear() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.readyLocked(); err != nil {
		return err
	}
	p.markers = make(map[string]markerEntry)
	p.polylines = make(map[string]polylineEntry)
	p.send(ports.SurfaceCommand{Op: "clear"})
	return nil
}

func (p *provider) SetBounds(b domain.MapBounds, paddingPx int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.readyLocked(); err != nil {
		return err
	}

	width, height := p.surface.Size()
	view, err := fitView(b, paddingPx, width, height, p.dialect.maxZoom())
	if err != nil {
		// center on what we can and keep the current zoom
		p.logger.Debug("bounds not fittable, centering instead", "bounds", b, "error", err)
		view = p.view
		if c, cerr := geospatial.Normalize(b.Center()); cerr == nil {
			view.Center = c
		}
		p.view = view
		p.send(p.dialect.camera(view, nil, 0))
		return nil
	}

	view.Zoom = p.clampZoom(view.Zoom)
	p.view = view
	p.send(p.dialect.camera(view, &b, paddingPx))
	return nil
}

func (p *provider) SetView(v domain.Viewport) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.readyLocked(); err != nil {
		return err
	}
	center, err := geospatial.Normalize(v.Center)
	if err != nil {
		return err
	}
	p.view = domain.Viewport{Center: center, Zoom: p.clampZoom(v.Zoom)}
	p.send(p.dialect.camera(p.view, nil, 0))
	return nil
}

func (p *provider) View() (domain.Viewport, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.readyLocked(); err != nil {
		return domain.Viewport{}, err
	}
	return p.view, nil
}

func (p *provider) SetEvents(sink ports.EventSink) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.readyLocked(); err != nil {
		return err
	}
	p.sink = &sink
	return nil
}

func (p *provider) RemoveEvents() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.readyLocked(); err != nil {
		return err
	}
	p.sink = nil
	return nil
}

func (p *provider) LoadTile(ctx context.Context, z, x, y int) ([]byte, error) {
	p.mu.Lock()
	if err := p.readyLocked(); err != nil {
		p.mu.Unlock()
		return nil, err
	}
	layer := p.layer
	p.mu.Unlock()

	return layer.Load(ctx, z, x, y)
}

func (p *provider) TileState() (domain.TileLoadState, error) {
	p.mu.Lock()
	if err := p.readyLocked(); err != nil {
		p.mu.Unlock()
		return domain.TileLoadState{}, err
	}
	layer := p.layer
	p.mu.Unlock()

	return layer.State(), nil
}

func (p *provider) Destroy() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.destroyed {
		return
	}
	p.destroyed = true
	if !p.initialized {
		return
	}

	if p.cancelInput != nil {
		p.cancelInput()
	}
	p.layer.Close()
	p.send(ports.SurfaceCommand{Op: "destroy"})
	p.markers = nil
	p.polylines = nil
	p.sink = nil
	p.logger.Debug("map provider destroyed", "surface_id", p.surface.ID())
}

func (p *provider) readyLocked() error {
	if p.destroyed {
		return fmt.Errorf("%w: provider destroyed", domain.ErrNotInitialized)
	}
	if !p.initialized {
		return domain.ErrNotInitialized
	}
	return nil
}

// send applies cmd to the surface. A surface that fails to apply a
// command does not invalidate the provider's own registry.
func (p *provider) send(cmd ports.SurfaceCommand) {
	if err := p.surface.Apply(cmd); err != nil {
		p.logger.Debug("surface rejected command", "op", cmd.Op, "target", cmd.Target, "error", err)
	}
}

func (p *provider) swapBasemap(from, to tiles.Source) {
	p.mu.Lock()
	if p.destroyed || !p.initialized {
		p.mu.Unlock()
		return
	}
	surface := p.surface
	p.send(p.dialect.basemap(to))
	p.mu.Unlock()

	surface.InvalidateSize()
	if p.opts.OnFallback != nil {
		p.opts.OnFallback(from, to)
	}
}

func (p *provider) handleInput(in ports.SurfaceInput) {
	p.mu.Lock()
	if p.destroyed {
		p.mu.Unlock()
		return
	}
	if in.Kind == domain.EventViewportChange && in.Viewport != nil {
		if c, err := geospatial.Normalize(in.Viewport.Center); err == nil {
			p.view = domain.Viewport{Center: c, Zoom: p.clampZoom(in.Viewport.Zoom)}
		}
	}
	var sink ports.EventSink
	if p.sink != nil {
		sink = *p.sink
	}
	view := p.view
	p.mu.Unlock()

	switch in.Kind {
	case domain.EventMarkerClick:
		if sink.OnMarkerClick != nil {
			sink.OnMarkerClick(in.TargetID)
		}
	case domain.EventPolylineClick:
		if sink.OnPolylineClick != nil {
			sink.OnPolylineClick(in.TargetID)
		}
	case domain.EventViewportChange:
		if sink.OnViewportChange != nil {
			sink.OnViewportChange(view)
		}
	}
}

func (p *provider) clampZoom(z float64) float64 {
	if math.IsNaN(z) || z < 0 {
		z = 0
	}
	if limit := p.dialect.maxZoom(); z > limit {
		z = limit
	}
	return p.dialect.snapZoom(z)
}

// normalizePath validates and normalizes every point of a polyline.
func normalizePath(path []domain.Coordinate) ([]domain.Coordinate, error) {
	if len(path) < 2 {
		return nil, fmt.Errorf("%w: polyline needs at least 2 points, got %d", domain.ErrInvalidCoordinate, len(path))
	}
	out := make([]domain.Coordinate, len(path))
	for i, c := range path {
		n, err := geospatial.Normalize(c)
		if err != nil {
			return nil, fmt.Errorf("point %d: %w", i, err)
		}
		out[i] = n
	}
	return out, nil
}
