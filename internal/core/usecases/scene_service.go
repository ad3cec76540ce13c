package usecases

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/samirrijal/routeviz/internal/core/domain"
	"github.com/samirrijal/routeviz/internal/core/ports"
	"github.com/samirrijal/routeviz/internal/pkg/metrics"
	"github.com/samirrijal/routeviz/internal/pkg/telemetry"
	"github.com/samirrijal/routeviz/internal/render"
)

const sceneCacheTTL = 300

// session is one renderer bound to one surface.
type session struct {
	renderer  *render.Renderer
	surfaceID string
}

// SceneService owns one render session per route id.
type SceneService struct {
	factory   ports.ProviderFactory
	segments  ports.SegmentSource
	publisher ports.EventPublisher
	cache     ports.CacheService
	surfaces  ports.SurfaceReleaser
	cfg       render.Config
	logger    *slog.Logger
	tracer    trace.Tracer

	mu       sync.Mutex
	sessions map[string]*session
}

// NewSceneService creates a SceneService. segments, publisher and cache
// may be nil.
func NewSceneService(
	factory ports.ProviderFactory,
	segments ports.SegmentSource,
	publisher ports.EventPublisher,
	cache ports.CacheService,
	cfg render.Config,
	logger *slog.Logger,
) *SceneService {
	if logger == nil {
		logger = slog.Default()
	}
	return &SceneService{
		factory:   factory,
		segments:  segments,
		publisher: publisher,
		cache:     cache,
		cfg:       cfg,
		logger:    logger,
		tracer:    otel.Tracer("routeviz/scenes"),
		sessions:  make(map[string]*session),
	}
}

// WithSurfaces makes closed sessions release their surface.
func (s *SceneService) WithSurfaces(r ports.SurfaceReleaser) *SceneService {
	s.surfaces = r
	return s
}

// Render draws req on the route's session, opening it first if needed.
// An empty surfaceID keeps the current surface, or binds a headless one.
func (s *SceneService) Render(ctx context.Context, req domain.RouteVisualizationRequest, surfaceID string) (*domain.RenderedScene, error) {
	ctx, span := s.tracer.Start(ctx, telemetry.SpanSceneRender, trace.WithAttributes(
		attribute.String(telemetry.AttrRouteID, req.RouteID),
		attribute.Int(telemetry.AttrRouteSegments, len(req.Segments)),
	))
	defer span.End()

	if req.RouteID == "" {
		return nil, fmt.Errorf("%w: route_id is required", domain.ErrInvalidRequest)
	}

	sess, err := s.session(ctx, req.RouteID, surfaceID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "open session")
		return nil, err
	}

	scene, err := sess.renderer.Render(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "render")
		return nil, fmt.Errorf("render route %s: %w", req.RouteID, err)
	}
	span.SetAttributes(
		attribute.Int(telemetry.AttrPolylines, len(scene.Handle.PolylineIDs)),
		attribute.Int(telemetry.AttrMarkers, len(scene.Handle.MarkerIDs)),
		attribute.Bool(telemetry.AttrNoData, scene.NoData),
	)

	if s.publisher != nil {
		if err := s.publisher.PublishSceneRendered(ctx, scene); err != nil {
			s.logger.Warn("publish scene rendered failed", "route_id", req.RouteID, "error", err)
		}
	}
	s.storeSnapshot(ctx, scene)

	return scene, nil
}

// RenderStored loads the route's segments from the segment source and
// renders them.
func (s *SceneService) RenderStored(ctx context.Context, routeID, surfaceID string) (*domain.RenderedScene, error) {
	if s.segments == nil {
		return nil, fmt.Errorf("segment source not configured")
	}
	segs, err := s.segments.ListByRoute(ctx, routeID)
	if err != nil {
		return nil, fmt.Errorf("list segments: %w", err)
	}
	if len(segs) == 0 {
		return nil, fmt.Errorf("%w: no segments for route %s", domain.ErrSceneNotFound, routeID)
	}
	return s.Render(ctx, domain.RouteVisualizationRequest{RouteID: routeID, Segments: segs}, surfaceID)
}

// Scene returns the route's current scene, from cache when possible.
func (s *SceneService) Scene(ctx context.Context, routeID string) (*domain.RenderedScene, error) {
	key := sceneKey(routeID)
	if s.cache != nil {
		if data, err := s.cache.Get(ctx, key); err == nil {
			var scene domain.RenderedScene
			if err := json.Unmarshal(data, &scene); err == nil {
				metrics.CacheHits.WithLabelValues("scene").Inc()
				return &scene, nil
			}
		}
		metrics.CacheMisses.WithLabelValues("scene").Inc()
	}

	sess, ok := s.lookup(routeID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrSceneNotFound, routeID)
	}
	scene, ok := sess.renderer.Scene(routeID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrSceneNotFound, routeID)
	}
	s.storeSnapshot(ctx, scene)
	return scene, nil
}

// Legend returns the legend of the route's current scene.
func (s *SceneService) Legend(ctx context.Context, routeID string) ([]domain.LegendEntry, error) {
	scene, err := s.Scene(ctx, routeID)
	if err != nil {
		return nil, err
	}
	return scene.Legend, nil
}

// ToggleMode flips the visibility of mode on the route's scene and
// returns the new visibility with the updated legend.
func (s *SceneService) ToggleMode(ctx context.Context, routeID string, mode domain.TransportMode) (bool, []domain.LegendEntry, error) {
	ctx, span := s.tracer.Start(ctx, telemetry.SpanToggleMode, trace.WithAttributes(
		attribute.String(telemetry.AttrRouteID, routeID),
		attribute.String(telemetry.AttrMode, string(mode)),
	))
	defer span.End()

	if mode == "" {
		return false, nil, fmt.Errorf("%w: mode is required", domain.ErrInvalidRequest)
	}
	sess, ok := s.lookup(routeID)
	if !ok {
		return false, nil, fmt.Errorf("%w: %s", domain.ErrSceneNotFound, routeID)
	}

	visible, err := sess.renderer.ToggleVisibility(mode)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "toggle")
		return false, nil, err
	}
	s.dropSnapshot(ctx, routeID)

	legend, _ := sess.renderer.Legend(routeID)
	span.SetAttributes(attribute.Bool(telemetry.AttrModeVisible, visible))
	return visible, legend, nil
}

// Close destroys the route's session. Its provider is torn down and its
// pending tile timers are cancelled.
func (s *SceneService) Close(ctx context.Context, routeID string) error {
	s.mu.Lock()
	sess, ok := s.sessions[routeID]
	delete(s.sessions, routeID)
	s.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrSceneNotFound, routeID)
	}
	s.destroy(routeID, sess)
	s.dropSnapshot(ctx, routeID)
	return nil
}

// Shutdown destroys every open session.
func (s *SceneService) Shutdown() {
	s.mu.Lock()
	sessions := s.sessions
	s.sessions = make(map[string]*session)
	s.mu.Unlock()

	for routeID, sess := range sessions {
		s.destroy(routeID, sess)
	}
}

// Sessions returns the number of open sessions.
func (s *SceneService) Sessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// LoadTile fetches a basemap tile for the route's session.
func (s *SceneService) LoadTile(ctx context.Context, routeID string, z, x, y int) ([]byte, error) {
	ctx, span := s.tracer.Start(ctx, telemetry.SpanLoadTile, trace.WithAttributes(
		attribute.String(telemetry.AttrRouteID, routeID),
		attribute.Int(telemetry.AttrTileZ, z),
		attribute.Int(telemetry.AttrTileX, x),
		attribute.Int(telemetry.AttrTileY, y),
	))
	defer span.End()

	sess, ok := s.lookup(routeID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrSceneNotFound, routeID)
	}
	data, err := sess.renderer.LoadTile(ctx, z, x, y)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "load tile")
	}
	return data, err
}

// TileState reports the route's basemap breaker.
func (s *SceneService) TileState(routeID string) (domain.TileLoadState, error) {
	sess, ok := s.lookup(routeID)
	if !ok {
		return domain.TileLoadState{}, fmt.Errorf("%w: %s", domain.ErrSceneNotFound, routeID)
	}
	return sess.renderer.TileState()
}

func (s *SceneService) lookup(routeID string) (*session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[routeID]
	return sess, ok
}

// session returns the route's session, opening one when none exists or
// when a different surface is requested. Init runs without s.mu held
// because locating a surface can take seconds.
func (s *SceneService) session(ctx context.Context, routeID, surfaceID string) (*session, error) {
	s.mu.Lock()
	cur, ok := s.sessions[routeID]
	s.mu.Unlock()
	if ok && (surfaceID == "" || surfaceID == cur.surfaceID) {
		return cur, nil
	}
	if surfaceID == "" {
		surfaceID = ports.HeadlessSurfacePrefix + routeID
	}

	next, err := s.open(ctx, routeID, surfaceID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	prev, existed := s.sessions[routeID]
	if existed && prev != cur {
		// lost a race against another opener of the same surface
		if prev.surfaceID == surfaceID {
			s.mu.Unlock()
			next.renderer.Destroy()
			return prev, nil
		}
	}
	s.sessions[routeID] = next
	s.mu.Unlock()

	metrics.ActiveSessions.Inc()
	if existed {
		s.destroy(routeID, prev)
	}
	s.logger.Info("scene session opened", "route_id", routeID, "surface_id", surfaceID)
	return next, nil
}

func (s *SceneService) open(ctx context.Context, routeID, surfaceID string) (*session, error) {
	r := render.New(s.factory, s.logger)

	cfg := s.cfg
	cfg.SurfaceID = surfaceID
	cfg.OnTileStateChange = func(st domain.TileLoadState) {
		s.logger.Info("tile state changed", "route_id", routeID, "state", st.State, "tile_source", st.ActiveSource)
		s.publishTileState(routeID, st)
	}
	if err := r.Init(ctx, cfg); err != nil {
		return nil, fmt.Errorf("open session for route %s: %w", routeID, err)
	}

	if err := r.SetEvents(s.sink(routeID)); err != nil {
		r.Destroy()
		return nil, fmt.Errorf("bind events for route %s: %w", routeID, err)
	}
	return &session{renderer: r, surfaceID: surfaceID}, nil
}

func (s *SceneService) destroy(routeID string, sess *session) {
	sess.renderer.Destroy()
	metrics.ActiveSessions.Dec()
	if s.surfaces != nil {
		s.surfaces.Release(sess.surfaceID)
	}
	s.logger.Info("scene session closed", "route_id", routeID, "surface_id", sess.surfaceID)
}

// sink forwards map interactions of routeID to the publisher.
func (s *SceneService) sink(routeID string) ports.EventSink {
	emit := func(ev domain.MapEvent) {
		if s.publisher == nil {
			return
		}
		ev.Time = time.Now()
		if err := s.publisher.PublishMapEvent(context.Background(), routeID, ev); err != nil {
			s.logger.Debug("publish map event failed", "route_id", routeID, "kind", ev.Kind, "error", err)
		}
	}
	return ports.EventSink{
		OnMarkerClick: func(id string) {
			emit(domain.MapEvent{Kind: domain.EventMarkerClick, TargetID: id})
		},
		OnPolylineClick: func(id string) {
			emit(domain.MapEvent{Kind: domain.EventPolylineClick, TargetID: id})
		},
		OnViewportChange: func(v domain.Viewport) {
			emit(domain.MapEvent{Kind: domain.EventViewportChange, Viewport: &v})
		},
	}
}

func (s *SceneService) publishTileState(routeID string, st domain.TileLoadState) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishTileState(context.Background(), routeID, st); err != nil {
		s.logger.Warn("publish tile state failed", "route_id", routeID, "error", err)
	}
}

func (s *SceneService) storeSnapshot(ctx context.Context, scene *domain.RenderedScene) {
	if s.cache == nil {
		return
	}
	if data, err := json.Marshal(scene); err == nil {
		_ = s.cache.Set(ctx, sceneKey(scene.RouteID), data, sceneCacheTTL)
	}
}

func (s *SceneService) dropSnapshot(ctx context.Context, routeID string) {
	if s.cache == nil {
		return
	}
	_ = s.cache.Delete(ctx, sceneKey(routeID))
}

func sceneKey(routeID string) string {
	return "scene:" + routeID
}
