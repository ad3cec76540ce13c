// Package render turns route visualization requests into map provider
// calls and keeps what it drew so every scene can be torn down again.
package render

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/samirrijal/routeviz/internal/core/domain"
	"github.com/samirrijal/routeviz/internal/core/ports"
	"github.com/samirrijal/routeviz/internal/pathsynth"
	"github.com/samirrijal/routeviz/internal/pkg/geospatial"
	"github.com/samirrijal/routeviz/internal/pkg/metrics"
	"github.com/samirrijal/routeviz/internal/topology"
)

// Config controls one renderer and the provider it owns.
type Config struct {
	SurfaceID string
	View      domain.Viewport
	// BoundsPadding is the fraction of the route span added around derived
	// bounds; PaddingPx is the pixel margin passed to SetBounds.
	BoundsPadding float64
	PaddingPx     int
	Wave          pathsynth.WaveConfig
	// OnTileStateChange receives basemap breaker transitions.
	OnTileStateChange func(domain.TileLoadState)
}

// DefaultConfig returns the standard padding and wave settings.
func DefaultConfig() Config {
	return Config{
		View:          domain.Viewport{Zoom: 4},
		BoundsPadding: 0.2,
		PaddingPx:     40,
		Wave:          pathsynth.DefaultWave,
	}
}

// Renderer owns one map provider and the scenes drawn on it. Render calls
// are serialized; Destroy may be called at any time and turns every later
// draw into a no-op.
type Renderer struct {
	factory ports.ProviderFactory
	logger  *slog.Logger
	now     func() time.Time

	destroyed atomic.Bool

	// pmu guards provider so Destroy never waits behind a render.
	pmu      sync.Mutex
	provider ports.MapProvider

	mu     sync.Mutex
	cfg    Config
	synth  *pathsynth.Synthesizer
	scenes map[string]*domain.RenderedScene

	// segments keeps each route's input so hidden lines can be redrawn.
	segments map[string][]domain.RouteSegmentVisual
	hidden   map[domain.TransportMode]bool
}

// New creates a renderer that builds its provider from factory on Init.
func New(factory ports.ProviderFactory, logger *slog.Logger) *Renderer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Renderer{
		factory:  factory,
		logger:   logger,
		now:      time.Now,
		cfg:      DefaultConfig(),
		synth:    pathsynth.New(pathsynth.DefaultWave),
		scenes:   make(map[string]*domain.RenderedScene),
		segments: make(map[string][]domain.RouteSegmentVisual),
		hidden:   make(map[domain.TransportMode]bool),
	}
}

// Init builds the provider and binds it to cfg.SurfaceID. It must succeed
// before Render. Calling it again after success is a no-op.
func (r *Renderer) Init(ctx context.Context, cfg Config) error {
	if r.destroyed.Load() {
		return fmt.Errorf("%w: renderer destroyed", domain.ErrNotInitialized)
	}
	if r.currentProvider() != nil {
		return nil
	}

	def := DefaultConfig()
	if cfg.BoundsPadding <= 0 {
		cfg.BoundsPadding = def.BoundsPadding
	}
	if cfg.PaddingPx <= 0 {
		cfg.PaddingPx = def.PaddingPx
	}

	p, err := r.factory.New()
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInitialization, err)
	}
	if err := p.Initialize(ctx, ports.ProviderConfig{
		SurfaceID:         cfg.SurfaceID,
		View:              cfg.View,
		OnTileStateChange: cfg.OnTileStateChange,
	}); err != nil {
		p.Destroy()
		return err
	}

	r.mu.Lock()
	r.cfg = cfg
	r.synth = pathsynth.New(cfg.Wave)
	r.mu.Unlock()

	r.pmu.Lock()
	defer r.pmu.Unlock()
	if r.destroyed.Load() || r.provider != nil {
		p.Destroy()
		if r.destroyed.Load() {
			return fmt.Errorf("%w: renderer destroyed", domain.ErrNotInitialized)
		}
		return nil
	}
	r.provider = p
	return nil
}

// Render draws req, replacing any scene previously drawn for the same
// route id. Bad segments are skipped and reported in the result; only
// provider lifecycle errors are returned.
func (r *Renderer) Render(req domain.RouteVisualizationRequest) (*domain.RenderedScene, error) {
	start := r.now()
	empty := r.emptyScene(req.RouteID)

	if r.destroyed.Load() {
		return empty, nil
	}
	p := r.currentProvider()
	if p == nil {
		return nil, domain.ErrNotInitialized
	}

	logger := r.logger.With("route_id", req.RouteID)
	if len(req.Segments) == 0 {
		logger.Warn("render rejected: no segments")
		metrics.RendersTotal.WithLabelValues("empty").Inc()
		return empty, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.teardownLocked(p, req.RouteID); err != nil {
		return r.abort(empty, err)
	}

	out := &domain.RenderedScene{
		RouteID:    req.RouteID,
		Handle:     domain.RenderedSceneHandle{RouteID: req.RouteID},
		RenderedAt: start,
	}

	topo := topology.Build(req.Segments)
	for _, gap := range topo.Gaps {
		logger.Warn("disconnected route", "error", gap)
		out.Warnings = append(out.Warnings, gap.Error())
	}
	markersBySegment := make([][]domain.Marker, len(req.Segments))
	for i, m := range topo.Markers {
		owner := topo.Owners[i]
		markersBySegment[owner] = append(markersBySegment[owner], m)
	}

	counts := make(map[domain.TransportMode]int)
	var drawn []domain.Coordinate

	for i, seg := range req.Segments {
		if r.destroyed.Load() {
			return empty, nil
		}
		counts[seg.Mode]++
		segLog := logger.With("segment_id", seg.ID, "seq", i, "mode", seg.Mode)

		line, err := r.drawSegmentLocked(p, seg)
		switch {
		case errors.Is(err, domain.ErrNotInitialized):
			return r.abort(empty, err)
		case err != nil:
			segLog.Warn("segment skipped", "error", err)
			metrics.SegmentsSkipped.WithLabelValues(string(seg.Mode)).Inc()
			out.Skipped = append(out.Skipped, seg.ID)
			out.Warnings = append(out.Warnings, fmt.Sprintf("segment %s skipped: %v", seg.ID, err))
		default:
			line.Seq = i
			if line.ID != "" {
				out.Handle.PolylineIDs = append(out.Handle.PolylineIDs, line.ID)
			}
			out.Polylines = append(out.Polylines, line)
			drawn = append(drawn, line.Path...)
		}

		for _, m := range markersBySegment[i] {
			pos, err := geospatial.Normalize(m.Stop.Coordinate)
			if err != nil {
				segLog.Warn("marker skipped", "stop_id", m.Stop.ID, "error", err)
				continue
			}
			id, err := p.AddMarker(pos, markerOptions(m))
			if err != nil {
				if errors.Is(err, domain.ErrNotInitialized) {
					return r.abort(empty, err)
				}
				segLog.Warn("marker rejected by provider", "stop_id", m.Stop.ID, "error", err)
				continue
			}
			out.Handle.MarkerIDs = append(out.Handle.MarkerIDs, id)
			out.Markers = append(out.Markers, domain.DrawnMarker{ID: id, Marker: m, Position: pos})
			drawn = append(drawn, pos)
		}
	}

	out.Legend = buildLegend(counts, r.hidden)
	out.NoData = len(out.Polylines) == 0

	if out.NoData {
		// no segment produced geometry: leave nothing behind
		if err := r.removeIDs(p, out.Handle); err != nil {
			return r.abort(empty, err)
		}
		out.Handle = domain.RenderedSceneHandle{RouteID: req.RouteID}
		out.Markers = nil
	} else {
		out.Bounds = req.Bounds
		if out.Bounds == nil {
			out.Bounds = geospatial.BoundsFromCoordinates(drawn, r.cfg.BoundsPadding)
		}
		if out.Bounds != nil {
			if err := p.SetBounds(*out.Bounds, r.cfg.PaddingPx); err != nil {
				return r.abort(empty, err)
			}
		}
	}

	r.scenes[req.RouteID] = out
	r.segments[req.RouteID] = append([]domain.RouteSegmentVisual(nil), req.Segments...)

	result := "ok"
	if out.NoData {
		result = "empty"
	}
	metrics.RendersTotal.WithLabelValues(result).Inc()
	metrics.RenderDuration.Observe(r.now().Sub(start).Seconds())
	logger.Info("scene rendered",
		"segments", len(req.Segments),
		"polylines", len(out.Handle.PolylineIDs),
		"markers", len(out.Handle.MarkerIDs),
		"skipped", len(out.Skipped),
	)
	return cloneScene(out), nil
}

// drawSegmentLocked synthesizes the segment path and draws it unless its
// mode is hidden. Hidden segments keep their path for ToggleVisibility.
func (r *Renderer) drawSegmentLocked(p ports.MapProvider, seg domain.RouteSegmentVisual) (domain.DrawnPolyline, error) {
	path := r.synth.Segment(seg)
	if len(path) < 2 {
		return domain.DrawnPolyline{}, fmt.Errorf("%w: no drawable path", domain.ErrInvalidCoordinate)
	}
	line := domain.DrawnPolyline{
		SegmentID: seg.ID,
		Mode:      seg.Mode,
		Path:      path,
		Style:     domain.StyleFor(seg.Mode),
	}
	if r.hidden[seg.Mode] {
		return line, nil
	}
	id, err := p.AddPolyline(path, polylineOptions(seg, line.Style))
	if err != nil {
		return domain.DrawnPolyline{}, err
	}
	line.ID = id
	line.Visible = true
	return line, nil
}

// Scene returns a copy of the last scene rendered for routeID.
func (r *Renderer) Scene(routeID string) (*domain.RenderedScene, bool) {
	if r.destroyed.Load() {
		return nil, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.scenes[routeID]
	if !ok {
		return nil, false
	}
	return cloneScene(s), true
}

// Clear removes everything drawn for routeID.
func (r *Renderer) Clear(routeID string) error {
	if r.destroyed.Load() {
		return nil
	}
	p := r.currentProvider()
	if p == nil {
		return domain.ErrNotInitialized
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	err := r.teardownLocked(p, routeID)
	if err != nil && r.destroyed.Load() {
		return nil
	}
	return err
}

// SetEvents installs sink on the provider, replacing any previous sink.
func (r *Renderer) SetEvents(sink ports.EventSink) error {
	p := r.currentProvider()
	if p == nil {
		return domain.ErrNotInitialized
	}
	return p.SetEvents(sink)
}

// LoadTile fetches a basemap tile through the provider's breaker.
func (r *Renderer) LoadTile(ctx context.Context, z, x, y int) ([]byte, error) {
	p := r.currentProvider()
	if p == nil {
		return nil, domain.ErrNotInitialized
	}
	return p.LoadTile(ctx, z, x, y)
}

// TileState reports the provider's basemap breaker.
func (r *Renderer) TileState() (domain.TileLoadState, error) {
	p := r.currentProvider()
	if p == nil {
		return domain.TileLoadState{}, domain.ErrNotInitialized
	}
	return p.TileState()
}

// Destroy tears down the provider. In-flight and later renders become
// no-ops; outstanding tile timers are cancelled. It never waits for a
// render in progress.
func (r *Renderer) Destroy() {
	if r.destroyed.Swap(true) {
		return
	}

	r.pmu.Lock()
	p := r.provider
	r.pmu.Unlock()
	if p != nil {
		p.Destroy()
	}
}

func (r *Renderer) currentProvider() ports.MapProvider {
	r.pmu.Lock()
	defer r.pmu.Unlock()
	return r.provider
}

// teardownLocked removes every id the previous render of routeID created.
func (r *Renderer) teardownLocked(p ports.MapProvider, routeID string) error {
	prev, ok := r.scenes[routeID]
	if !ok {
		return nil
	}
	if err := r.removeIDs(p, prev.Handle); err != nil {
		return err
	}
	delete(r.scenes, routeID)
	delete(r.segments, routeID)
	return nil
}

func (r *Renderer) removeIDs(p ports.MapProvider, h domain.RenderedSceneHandle) error {
	for _, id := range h.PolylineIDs {
		if err := p.RemovePolyline(id); err != nil {
			return err
		}
	}
	for _, id := range h.MarkerIDs {
		if err := p.RemoveMarker(id); err != nil {
			return err
		}
	}
	return nil
}

// abort maps a provider lifecycle error to the render result. A renderer
// destroyed mid-render yields an empty scene instead of the error.
func (r *Renderer) abort(empty *domain.RenderedScene, err error) (*domain.RenderedScene, error) {
	if r.destroyed.Load() {
		return empty, nil
	}
	metrics.RendersTotal.WithLabelValues("error").Inc()
	return nil, err
}

func (r *Renderer) emptyScene(routeID string) *domain.RenderedScene {
	return &domain.RenderedScene{
		RouteID:    routeID,
		Handle:     domain.RenderedSceneHandle{RouteID: routeID},
		Legend:     []domain.LegendEntry{},
		NoData:     true,
		RenderedAt: r.now(),
	}
}

func polylineOptions(seg domain.RouteSegmentVisual, st domain.LineStyle) ports.PolylineOptions {
	return ports.PolylineOptions{
		Style:     st,
		Mode:      seg.Mode,
		SegmentID: seg.ID,
		Tooltip:   segmentTooltip(seg, st),
	}
}

func markerOptions(m domain.Marker) ports.MarkerOptions {
	title := m.Stop.Name
	if title == "" {
		title = m.Stop.ID
	}
	z := 1
	switch m.Role {
	case domain.RoleStart, domain.RoleEnd:
		z = 3
	case domain.RoleWarning:
		z = 2
	}
	return ports.MarkerOptions{
		Role:      m.Role,
		Title:     title,
		Color:     domain.MarkerColor(m.Role),
		SegmentID: m.SegmentID,
		Tooltip:   m.Annotation,
		ZIndex:    z,
	}
}

func segmentTooltip(seg domain.RouteSegmentVisual, st domain.LineStyle) string {
	tip := fmt.Sprintf("%s: %s → %s", st.Label, stopName(seg.From), stopName(seg.To))
	md := seg.Metadata
	if md.Carrier != "" {
		tip += " · " + md.Carrier
	}
	if md.Duration != "" {
		tip += " · " + md.Duration
	}
	if md.DistanceKm > 0 {
		tip += fmt.Sprintf(" · %.0f km", md.DistanceKm)
	}
	return tip
}

func stopName(s domain.Stop) string {
	if s.Name != "" {
		return s.Name
	}
	return s.ID
}

func cloneScene(s *domain.RenderedScene) *domain.RenderedScene {
	c := *s
	c.Handle.MarkerIDs = append([]string(nil), s.Handle.MarkerIDs...)
	c.Handle.PolylineIDs = append([]string(nil), s.Handle.PolylineIDs...)
	c.Legend = append([]domain.LegendEntry{}, s.Legend...)
	c.Markers = append([]domain.DrawnMarker(nil), s.Markers...)
	c.Polylines = append([]domain.DrawnPolyline(nil), s.Polylines...)
	c.Skipped = append([]string(nil), s.Skipped...)
	c.Warnings = append([]string(nil), s.Warnings...)
	if s.Bounds != nil {
		b := *s.Bounds
		c.Bounds = &b
	}
	return &c
}
