package usecases_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/facebookgo/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samirrijal/routeviz/internal/adapters/mapprovider"
	"github.com/samirrijal/routeviz/internal/adapters/surface"
	"github.com/samirrijal/routeviz/internal/core/domain"
	"github.com/samirrijal/routeviz/internal/core/ports"
	"github.com/samirrijal/routeviz/internal/core/usecases"
	"github.com/samirrijal/routeviz/internal/render"
	"github.com/samirrijal/routeviz/internal/tiles"
)

// --- Mock EventPublisher ---

type mockPublisher struct {
	mu     sync.Mutex
	scenes []*domain.RenderedScene
	events []domain.MapEvent
	states []domain.TileLoadState
}

func (m *mockPublisher) PublishSceneRendered(ctx context.Context, scene *domain.RenderedScene) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scenes = append(m.scenes, scene)
	return nil
}

func (m *mockPublisher) PublishMapEvent(ctx context.Context, routeID string, event domain.MapEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

func (m *mockPublisher) PublishTileState(ctx context.Context, routeID string, state domain.TileLoadState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states = append(m.states, state)
	return nil
}

// --- Mock CacheService ---

type mockCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMockCache() *mockCache { return &mockCache{data: make(map[string][]byte)} }

func (m *mockCache) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.data[key]; ok {
		return v, nil
	}
	return nil, errors.New("miss")
}

func (m *mockCache) Set(ctx context.Context, key string, value []byte, ttlSeconds int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *mockCache) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *mockCache) has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.data[key]
	return ok
}

// --- Mock SegmentSource ---

type mockSegments struct {
	listFn func(ctx context.Context, routeID string) ([]domain.RouteSegmentVisual, error)
}

func (m *mockSegments) ListByRoute(ctx context.Context, routeID string) ([]domain.RouteSegmentVisual, error) {
	if m.listFn != nil {
		return m.listFn(ctx, routeID)
	}
	return nil, nil
}

type fetchFunc func(ctx context.Context, url string) ([]byte, error)

func (f fetchFunc) Fetch(ctx context.Context, url string) ([]byte, error) { return f(ctx, url) }

// --- Fixtures ---

func stop(id string, lat, lng float64) domain.Stop {
	return domain.Stop{ID: id, Name: id, Coordinate: domain.Coordinate{Lat: lat, Lng: lng}}
}

func route(id string) domain.RouteVisualizationRequest {
	mow, ovb := stop("MOW", 55.7558, 37.6173), stop("OVB", 55.0084, 82.9357)
	yks, olk := stop("YKS", 62.0355, 129.6755), stop("OLK", 60.3758, 120.4060)
	return domain.RouteVisualizationRequest{
		RouteID: id,
		Segments: []domain.RouteSegmentVisual{
			{ID: "s1", Mode: domain.ModeFlight, From: mow, To: ovb},
			{ID: "s2", Mode: domain.ModeFlight, From: ovb, To: yks},
			{ID: "s3", Mode: domain.ModeFerry, From: yks, To: olk},
		},
	}
}

type fixture struct {
	svc   *usecases.SceneService
	reg   *surface.Registry
	pub   *mockPublisher
	cache *mockCache
}

func newFixture(t *testing.T, segments ports.SegmentSource, fetch tiles.Fetcher) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if fetch == nil {
		fetch = fetchFunc(func(context.Context, string) ([]byte, error) { return []byte("png"), nil })
	}

	reg := surface.NewRegistry(logger)
	factory, err := mapprovider.NewFactory(mapprovider.KindVector, mapprovider.Options{
		Surfaces:        reg,
		Fetcher:         fetch,
		Clock:           clock.NewMock(),
		Logger:          logger,
		Primary:         tiles.Source{Name: "carto", URLTemplate: "https://carto.test/{z}/{x}/{y}.png"},
		Fallback:        tiles.Source{Name: "osm", URLTemplate: "https://osm.test/{z}/{x}/{y}.png"},
		Breaker:         tiles.DefaultBreakerConfig(),
		SurfaceAttempts: 2,
		SurfaceInterval: time.Millisecond,
	})
	require.NoError(t, err)

	f := &fixture{reg: reg, pub: &mockPublisher{}, cache: newMockCache()}
	f.svc = usecases.NewSceneService(factory, segments, f.pub, f.cache, render.DefaultConfig(), logger).WithSurfaces(reg)
	t.Cleanup(f.svc.Shutdown)
	return f
}

// --- Tests ---

func TestSceneService_RenderOpensHeadlessSession(t *testing.T) {
	f := newFixture(t, nil, nil)

	scene, err := f.svc.Render(context.Background(), route("r1"), "")
	require.NoError(t, err)

	assert.Len(t, scene.Handle.PolylineIDs, 3)
	assert.Len(t, scene.Handle.MarkerIDs, 4)
	assert.Equal(t, 1, f.svc.Sessions())
	assert.True(t, f.cache.has("scene:r1"))
	require.Len(t, f.pub.scenes, 1)
	assert.Equal(t, "r1", f.pub.scenes[0].RouteID)

	// the default surface is the one the registry created for the session
	assert.Equal(t, 1, f.reg.Len())
	s, ok := f.reg.Resolve(ports.HeadlessSurfacePrefix + "r1")
	require.True(t, ok)
	assert.Equal(t, 1, f.reg.Len())
	assert.NotEmpty(t, s.(*surface.Headless).Commands())
}

func TestSceneService_RenderRequiresRouteID(t *testing.T) {
	f := newFixture(t, nil, nil)

	_, err := f.svc.Render(context.Background(), domain.RouteVisualizationRequest{}, "")
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)
	assert.Equal(t, 0, f.svc.Sessions())
}

func TestSceneService_ReRenderReusesSession(t *testing.T) {
	f := newFixture(t, nil, nil)

	first, err := f.svc.Render(context.Background(), route("r1"), "")
	require.NoError(t, err)
	second, err := f.svc.Render(context.Background(), route("r1"), "headless:r1")
	require.NoError(t, err)

	assert.Equal(t, 1, f.svc.Sessions())
	assert.NotEqual(t, first.Handle.PolylineIDs, second.Handle.PolylineIDs)
}

func TestSceneService_MissingSurface(t *testing.T) {
	f := newFixture(t, nil, nil)

	_, err := f.svc.Render(context.Background(), route("r1"), "socket:nowhere")
	assert.ErrorIs(t, err, domain.ErrInitialization)
	assert.Equal(t, 0, f.svc.Sessions())
}

func TestSceneService_SceneUsesCacheThenSession(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()

	_, err := f.svc.Scene(ctx, "r1")
	assert.ErrorIs(t, err, domain.ErrSceneNotFound)

	cached, _ := json.Marshal(domain.RenderedScene{RouteID: "r1", NoData: true})
	require.NoError(t, f.cache.Set(ctx, "scene:r1", cached, 300))
	scene, err := f.svc.Scene(ctx, "r1")
	require.NoError(t, err)
	assert.True(t, scene.NoData)

	_, err = f.svc.Render(ctx, route("r1"), "")
	require.NoError(t, err)
	require.NoError(t, f.cache.Delete(ctx, "scene:r1"))

	scene, err = f.svc.Scene(ctx, "r1")
	require.NoError(t, err)
	assert.False(t, scene.NoData)
	assert.Len(t, scene.Polylines, 3)
	assert.True(t, f.cache.has("scene:r1"))
}

func TestSceneService_RenderStored(t *testing.T) {
	segs := &mockSegments{
		listFn: func(ctx context.Context, routeID string) ([]domain.RouteSegmentVisual, error) {
			if routeID == "r1" {
				return route("r1").Segments, nil
			}
			return nil, nil
		},
	}
	f := newFixture(t, segs, nil)

	scene, err := f.svc.RenderStored(context.Background(), "r1", "")
	require.NoError(t, err)
	assert.Len(t, scene.Polylines, 3)

	_, err = f.svc.RenderStored(context.Background(), "unknown", "")
	assert.ErrorIs(t, err, domain.ErrSceneNotFound)

	noSource := newFixture(t, nil, nil)
	_, err = noSource.svc.RenderStored(context.Background(), "r1", "")
	assert.Error(t, err)
}

func TestSceneService_ToggleMode(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()

	_, _, err := f.svc.ToggleMode(ctx, "r1", domain.ModeFlight)
	assert.ErrorIs(t, err, domain.ErrSceneNotFound)

	_, err = f.svc.Render(ctx, route("r1"), "")
	require.NoError(t, err)

	visible, legend, err := f.svc.ToggleMode(ctx, "r1", domain.ModeFlight)
	require.NoError(t, err)
	assert.False(t, visible)
	require.NotEmpty(t, legend)
	assert.Equal(t, domain.ModeFlight, legend[0].Mode)
	assert.False(t, legend[0].Visible)
	assert.False(t, f.cache.has("scene:r1"))

	scene, err := f.svc.Scene(ctx, "r1")
	require.NoError(t, err)
	assert.Len(t, scene.Handle.PolylineIDs, 1)

	visible, _, err = f.svc.ToggleMode(ctx, "r1", domain.ModeFlight)
	require.NoError(t, err)
	assert.True(t, visible)

	_, _, err = f.svc.ToggleMode(ctx, "r1", "")
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)
}

func TestSceneService_Close(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()

	_, err := f.svc.Render(ctx, route("r1"), "")
	require.NoError(t, err)
	require.Equal(t, 1, f.reg.Len())

	require.NoError(t, f.svc.Close(ctx, "r1"))
	assert.Equal(t, 0, f.svc.Sessions())
	assert.Equal(t, 0, f.reg.Len())
	assert.False(t, f.cache.has("scene:r1"))

	assert.ErrorIs(t, f.svc.Close(ctx, "r1"), domain.ErrSceneNotFound)
	_, err = f.svc.LoadTile(ctx, "r1", 1, 0, 0)
	assert.ErrorIs(t, err, domain.ErrSceneNotFound)
	_, err = f.svc.TileState("r1")
	assert.ErrorIs(t, err, domain.ErrSceneNotFound)
}

func TestSceneService_PublishesMapEvents(t *testing.T) {
	f := newFixture(t, nil, nil)

	scene, err := f.svc.Render(context.Background(), route("r1"), "")
	require.NoError(t, err)

	s, ok := f.reg.Resolve("headless:r1")
	require.True(t, ok)
	s.(*surface.Headless).Emit(ports.SurfaceInput{Kind: domain.EventMarkerClick, TargetID: scene.Handle.MarkerIDs[0]})

	f.pub.mu.Lock()
	defer f.pub.mu.Unlock()
	require.Len(t, f.pub.events, 1)
	assert.Equal(t, domain.EventMarkerClick, f.pub.events[0].Kind)
	assert.Equal(t, scene.Handle.MarkerIDs[0], f.pub.events[0].TargetID)
	assert.False(t, f.pub.events[0].Time.IsZero())
}

func TestSceneService_TileFallbackIsPublished(t *testing.T) {
	var mu sync.Mutex
	var urls []string
	fetch := fetchFunc(func(_ context.Context, url string) ([]byte, error) {
		mu.Lock()
		urls = append(urls, url)
		mu.Unlock()
		return nil, errors.New("503")
	})
	f := newFixture(t, nil, fetch)
	ctx := context.Background()

	_, err := f.svc.Render(ctx, route("r1"), "")
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		_, err := f.svc.LoadTile(ctx, "r1", 3, i, 2)
		assert.ErrorIs(t, err, domain.ErrTileLoad)
	}

	st, err := f.svc.TileState("r1")
	require.NoError(t, err)
	assert.Equal(t, domain.TileFallback, st.State)
	assert.Equal(t, "osm", st.ActiveSource)

	f.pub.mu.Lock()
	states := append([]domain.TileLoadState(nil), f.pub.states...)
	f.pub.mu.Unlock()
	require.Len(t, states, 2)
	assert.Equal(t, domain.TileDegrading, states[0].State)
	assert.Equal(t, domain.TileFallback, states[1].State)

	_, _ = f.svc.LoadTile(ctx, "r1", 3, 0, 0)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "https://osm.test/3/0/0.png", urls[len(urls)-1])
}
