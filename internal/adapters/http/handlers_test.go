package http_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/facebookgo/clock"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	handler "github.com/samirrijal/routeviz/internal/adapters/http"
	"github.com/samirrijal/routeviz/internal/adapters/mapprovider"
	natsadapter "github.com/samirrijal/routeviz/internal/adapters/nats"
	"github.com/samirrijal/routeviz/internal/adapters/surface"
	"github.com/samirrijal/routeviz/internal/core/domain"
	"github.com/samirrijal/routeviz/internal/core/usecases"
	"github.com/samirrijal/routeviz/internal/render"
	"github.com/samirrijal/routeviz/internal/tiles"
)

// ---- Mocks ----

type nopPublisher struct{}

func (nopPublisher) PublishSceneRendered(context.Context, *domain.RenderedScene) error { return nil }
func (nopPublisher) PublishMapEvent(context.Context, string, domain.MapEvent) error    { return nil }
func (nopPublisher) PublishTileState(context.Context, string, domain.TileLoadState) error {
	return nil
}

type mockSegments struct {
	listFn func(ctx context.Context, routeID string) ([]domain.RouteSegmentVisual, error)
}

func (m *mockSegments) ListByRoute(ctx context.Context, routeID string) ([]domain.RouteSegmentVisual, error) {
	if m.listFn != nil {
		return m.listFn(ctx, routeID)
	}
	return nil, nil
}

type mockQueue struct {
	publishFn func(ctx context.Context, req *natsadapter.RenderRequest) error
}

func (m *mockQueue) PublishRenderRequest(ctx context.Context, req *natsadapter.RenderRequest) error {
	if m.publishFn != nil {
		return m.publishFn(ctx, req)
	}
	return nil
}

type fetchFunc func(ctx context.Context, url string) ([]byte, error)

func (f fetchFunc) Fetch(ctx context.Context, url string) ([]byte, error) { return f(ctx, url) }

// ---- Test helpers ----

func stop(id string, lat, lng float64) domain.Stop {
	return domain.Stop{ID: id, Name: id, Coordinate: domain.Coordinate{Lat: lat, Lng: lng}}
}

func segments() []domain.RouteSegmentVisual {
	mow, ovb := stop("MOW", 55.7558, 37.6173), stop("OVB", 55.0084, 82.9357)
	yks, olk := stop("YKS", 62.0355, 129.6755), stop("OLK", 60.3758, 120.4060)
	return []domain.RouteSegmentVisual{
		{ID: "s1", Mode: domain.ModeFlight, From: mow, To: ovb},
		{ID: "s2", Mode: domain.ModeFlight, From: ovb, To: yks},
		{ID: "s3", Mode: domain.ModeFerry, From: yks, To: olk},
	}
}

func makeDeps(t *testing.T, source *mockSegments) *handler.Dependencies {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := surface.NewRegistry(logger)
	factory, err := mapprovider.NewFactory(mapprovider.KindRaster, mapprovider.Options{
		Surfaces: reg,
		Fetcher: fetchFunc(func(context.Context, string) ([]byte, error) {
			return []byte("\x89PNG"), nil
		}),
		Clock:           clock.NewMock(),
		Logger:          logger,
		Primary:         tiles.Source{Name: "carto", URLTemplate: "https://carto.test/{z}/{x}/{y}.png"},
		Fallback:        tiles.Source{Name: "osm", URLTemplate: "https://osm.test/{z}/{x}/{y}.png"},
		Breaker:         tiles.DefaultBreakerConfig(),
		SurfaceAttempts: 2,
		SurfaceInterval: time.Millisecond,
	})
	require.NoError(t, err)

	if source == nil {
		source = &mockSegments{}
	}
	scenes := usecases.NewSceneService(factory, source, nopPublisher{}, nil, render.DefaultConfig(), logger).WithSurfaces(reg)
	t.Cleanup(scenes.Shutdown)
	return &handler.Dependencies{Scenes: scenes, Surfaces: reg}
}

func setupApp(deps *handler.Dependencies) *fiber.App {
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	handler.SetupRoutes(app, deps)
	return app
}

func do(t *testing.T, app *fiber.App, method, path, body string) (int, []byte, string) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, b, resp.Header.Get("Content-Type")
}

func renderBody(t *testing.T, routeID string) string {
	t.Helper()
	b, err := json.Marshal(domain.RouteVisualizationRequest{RouteID: routeID, Segments: segments()})
	require.NoError(t, err)
	return string(b)
}

func decodeError(t *testing.T, body []byte) handler.APIError {
	t.Helper()
	var e handler.APIError
	require.NoError(t, json.Unmarshal(body, &e))
	return e
}

// ---- Health ----

func TestHealth(t *testing.T) {
	app := setupApp(makeDeps(t, nil))

	status, body, _ := do(t, app, "GET", "/v1/health", "")
	require.Equal(t, 200, status)

	var result map[string]any
	require.NoError(t, json.Unmarshal(body, &result))
	assert.Equal(t, "healthy", result["status"])
	assert.EqualValues(t, 0, result["sessions"])
}

func TestReady_OptionalBackendsNotConfigured(t *testing.T) {
	app := setupApp(makeDeps(t, nil))

	status, body, _ := do(t, app, "GET", "/v1/ready", "")
	require.Equal(t, 200, status)

	var result struct {
		Checks map[string]string `json:"checks"`
	}
	require.NoError(t, json.Unmarshal(body, &result))
	assert.Equal(t, "ok", result.Checks["scenes"])
	assert.Equal(t, "not configured", result.Checks["database"])
	assert.Equal(t, "not configured", result.Checks["cache"])
}

// ---- Scenes ----

func TestRenderScene_Success(t *testing.T) {
	app := setupApp(makeDeps(t, nil))

	status, body, _ := do(t, app, "POST", "/v1/scenes", renderBody(t, "r1"))
	require.Equal(t, 200, status, string(body))

	var scene domain.RenderedScene
	require.NoError(t, json.Unmarshal(body, &scene))
	assert.Equal(t, "r1", scene.RouteID)
	assert.False(t, scene.NoData)
	assert.Len(t, scene.Polylines, 3)
	assert.Len(t, scene.Markers, 4)
	require.NotEmpty(t, scene.Legend)
	assert.Equal(t, domain.ModeFlight, scene.Legend[0].Mode)
	assert.Equal(t, 2, scene.Legend[0].Count)
}

func TestRenderScene_MissingRouteID(t *testing.T) {
	app := setupApp(makeDeps(t, nil))

	status, body, _ := do(t, app, "POST", "/v1/scenes", `{"segments":[]}`)
	require.Equal(t, 400, status)
	assert.Equal(t, "bad_request", decodeError(t, body).Code)
}

func TestRenderScene_InvalidBody(t *testing.T) {
	app := setupApp(makeDeps(t, nil))

	status, _, _ := do(t, app, "POST", "/v1/scenes", `{not json`)
	assert.Equal(t, 400, status)
}

func TestRenderScene_UnknownSurface(t *testing.T) {
	app := setupApp(makeDeps(t, nil))

	body := `{"route_id":"r1","segments":[],"surface_id":"socket:missing"}`
	status, resp, _ := do(t, app, "POST", "/v1/scenes", body)
	require.Equal(t, 503, status)
	assert.Equal(t, "surface_unavailable", decodeError(t, resp).Code)
}

func TestRenderScene_NumbersBlankSegmentIDs(t *testing.T) {
	app := setupApp(makeDeps(t, nil))

	segs := segments()
	for i := range segs {
		segs[i].ID = ""
	}
	b, err := json.Marshal(domain.RouteVisualizationRequest{RouteID: "r-blank", Segments: segs})
	require.NoError(t, err)

	status, body, _ := do(t, app, "POST", "/v1/scenes", string(b))
	require.Equal(t, 200, status)

	var scene domain.RenderedScene
	require.NoError(t, json.Unmarshal(body, &scene))
	require.Len(t, scene.Polylines, 3)
	for i, line := range scene.Polylines {
		assert.Equal(t, fmt.Sprintf("seg-%d", i+1), line.SegmentID)
	}
	assert.Len(t, scene.Markers, 4)
}

func TestRenderScene_DuplicateSegmentIDs(t *testing.T) {
	published := 0
	deps := makeDeps(t, nil)
	deps.Queue = &mockQueue{publishFn: func(context.Context, *natsadapter.RenderRequest) error {
		published++
		return nil
	}}
	app := setupApp(deps)

	segs := segments()
	segs[2].ID = "s1"
	b, err := json.Marshal(domain.RouteVisualizationRequest{RouteID: "r-dup", Segments: segs})
	require.NoError(t, err)

	for _, path := range []string{"/v1/scenes", "/v1/scenes/queue"} {
		status, body, _ := do(t, app, "POST", path, string(b))
		require.Equal(t, 400, status, path)
		e := decodeError(t, body)
		assert.Equal(t, "bad_request", e.Code)
		assert.Contains(t, e.Message, `"s1"`)
	}
	assert.Zero(t, published)
	assert.Equal(t, 0, deps.Scenes.Sessions())
}

func TestQueueScene(t *testing.T) {
	var queued *natsadapter.RenderRequest
	deps := makeDeps(t, nil)
	deps.Queue = &mockQueue{publishFn: func(_ context.Context, req *natsadapter.RenderRequest) error {
		queued = req
		return nil
	}}
	app := setupApp(deps)

	body := `{"route_id":"r9","segments":[],"surface_id":"socket:tab-1"}`
	status, _, _ := do(t, app, "POST", "/v1/scenes/queue", body)
	require.Equal(t, 202, status)
	require.NotNil(t, queued)
	assert.Equal(t, "r9", queued.RouteID)
	assert.Equal(t, "socket:tab-1", queued.SurfaceID)
	assert.Equal(t, 0, deps.Scenes.Sessions())
}

func TestQueueScene_NotConfigured(t *testing.T) {
	app := setupApp(makeDeps(t, nil))

	status, body, _ := do(t, app, "POST", "/v1/scenes/queue", `{"route_id":"r9","segments":[]}`)
	require.Equal(t, 503, status)
	assert.Equal(t, "queue_unavailable", decodeError(t, body).Code)
}

func TestGetScene_NotFound(t *testing.T) {
	app := setupApp(makeDeps(t, nil))

	status, body, _ := do(t, app, "GET", "/v1/scenes/unknown", "")
	require.Equal(t, 404, status)
	assert.Equal(t, "not_found", decodeError(t, body).Code)
}

func TestGetScene_AfterRender(t *testing.T) {
	app := setupApp(makeDeps(t, nil))

	status, _, _ := do(t, app, "POST", "/v1/scenes", renderBody(t, "r1"))
	require.Equal(t, 200, status)

	status, body, _ := do(t, app, "GET", "/v1/scenes/r1", "")
	require.Equal(t, 200, status)

	var scene domain.RenderedScene
	require.NoError(t, json.Unmarshal(body, &scene))
	assert.Len(t, scene.Handle.PolylineIDs, 3)
}

func TestSceneGeoJSON(t *testing.T) {
	app := setupApp(makeDeps(t, nil))

	status, _, _ := do(t, app, "POST", "/v1/scenes", renderBody(t, "r1"))
	require.Equal(t, 200, status)

	status, body, contentType := do(t, app, "GET", "/v1/scenes/r1/geojson", "")
	require.Equal(t, 200, status)
	assert.Equal(t, "application/geo+json", contentType)

	var fc struct {
		Type     string           `json:"type"`
		Features []map[string]any `json:"features"`
	}
	require.NoError(t, json.Unmarshal(body, &fc))
	assert.Equal(t, "FeatureCollection", fc.Type)
	assert.Len(t, fc.Features, 7)
}

func TestToggleMode(t *testing.T) {
	app := setupApp(makeDeps(t, nil))

	status, _, _ := do(t, app, "POST", "/v1/scenes", renderBody(t, "r1"))
	require.Equal(t, 200, status)

	status, body, _ := do(t, app, "POST", "/v1/scenes/r1/modes/flight/toggle", "")
	require.Equal(t, 200, status)

	var toggle handler.ModeToggle
	require.NoError(t, json.Unmarshal(body, &toggle))
	assert.Equal(t, domain.ModeFlight, toggle.Mode)
	assert.False(t, toggle.Visible)

	status, body, _ = do(t, app, "GET", "/v1/scenes/r1/legend", "")
	require.Equal(t, 200, status)
	var legend []domain.LegendEntry
	require.NoError(t, json.Unmarshal(body, &legend))
	require.NotEmpty(t, legend)
	assert.False(t, legend[0].Visible)
}

func TestToggleMode_NoSession(t *testing.T) {
	app := setupApp(makeDeps(t, nil))

	status, _, _ := do(t, app, "POST", "/v1/scenes/r1/modes/flight/toggle", "")
	assert.Equal(t, 404, status)
}

func TestTileStatusAndTile(t *testing.T) {
	app := setupApp(makeDeps(t, nil))

	status, _, _ := do(t, app, "POST", "/v1/scenes", renderBody(t, "r1"))
	require.Equal(t, 200, status)

	status, body, _ := do(t, app, "GET", "/v1/scenes/r1/tiles/status", "")
	require.Equal(t, 200, status)
	var st domain.TileLoadState
	require.NoError(t, json.Unmarshal(body, &st))
	assert.Equal(t, domain.TileStable, st.State)
	assert.Equal(t, "carto", st.ActiveSource)

	status, body, contentType := do(t, app, "GET", "/v1/scenes/r1/tiles/3/1/2", "")
	require.Equal(t, 200, status)
	assert.Equal(t, "image/png", contentType)
	assert.Equal(t, "\x89PNG", string(body))
}

func TestTile_BadCoordinates(t *testing.T) {
	app := setupApp(makeDeps(t, nil))

	status, _, _ := do(t, app, "GET", "/v1/scenes/r1/tiles/3/x/2", "")
	assert.Equal(t, 400, status)
}

func TestCloseScene(t *testing.T) {
	deps := makeDeps(t, nil)
	app := setupApp(deps)

	status, _, _ := do(t, app, "POST", "/v1/scenes", renderBody(t, "r1"))
	require.Equal(t, 200, status)
	assert.Equal(t, 1, deps.Surfaces.Len())

	status, _, _ = do(t, app, "DELETE", "/v1/scenes/r1", "")
	require.Equal(t, 204, status)
	assert.Equal(t, 0, deps.Surfaces.Len())

	status, _, _ = do(t, app, "DELETE", "/v1/scenes/r1", "")
	assert.Equal(t, 404, status)
}

func TestRenderStoredRoute(t *testing.T) {
	app := setupApp(makeDeps(t, &mockSegments{
		listFn: func(_ context.Context, routeID string) ([]domain.RouteSegmentVisual, error) {
			switch routeID {
			case "stored":
				return segments(), nil
			case "broken":
				return nil, errors.New("connection refused")
			}
			return nil, nil
		},
	}))

	status, body, _ := do(t, app, "POST", "/v1/routes/stored/scene", "")
	require.Equal(t, 200, status, string(body))
	var scene domain.RenderedScene
	require.NoError(t, json.Unmarshal(body, &scene))
	assert.Len(t, scene.Polylines, 3)

	status, _, _ = do(t, app, "POST", "/v1/routes/empty/scene", "")
	assert.Equal(t, 404, status)

	status, _, _ = do(t, app, "POST", "/v1/routes/broken/scene", "")
	assert.Equal(t, 500, status)
}

// ---- GraphQL ----

func TestGraphQL_SceneQuery(t *testing.T) {
	app := setupApp(makeDeps(t, nil))

	status, _, _ := do(t, app, "POST", "/v1/scenes", renderBody(t, "r1"))
	require.Equal(t, 200, status)

	query := `{"query":"{ scene(routeId: \"r1\") { route_id no_data legend { mode count } markers { role } } }"}`
	status, body, _ := do(t, app, "POST", "/graphql", query)
	require.Equal(t, 200, status)

	var result struct {
		Data struct {
			Scene struct {
				RouteID string `json:"route_id"`
				NoData  bool   `json:"no_data"`
				Legend  []struct {
					Mode  string `json:"mode"`
					Count int    `json:"count"`
				} `json:"legend"`
				Markers []struct {
					Role string `json:"role"`
				} `json:"markers"`
			} `json:"scene"`
		} `json:"data"`
		Errors []any `json:"errors"`
	}
	require.NoError(t, json.Unmarshal(body, &result))
	require.Empty(t, result.Errors)
	assert.Equal(t, "r1", result.Data.Scene.RouteID)
	require.Len(t, result.Data.Scene.Markers, 4)
	assert.Equal(t, "start", result.Data.Scene.Markers[0].Role)
	assert.Equal(t, "end", result.Data.Scene.Markers[3].Role)
}

func TestGraphQL_ToggleMutation(t *testing.T) {
	app := setupApp(makeDeps(t, nil))

	status, _, _ := do(t, app, "POST", "/v1/scenes", renderBody(t, "r1"))
	require.Equal(t, 200, status)

	query := `{"query":"mutation { toggleMode(routeId: \"r1\", mode: \"ferry\") { mode visible } }"}`
	status, body, _ := do(t, app, "POST", "/graphql", query)
	require.Equal(t, 200, status)
	assert.Contains(t, string(body), `"visible":false`)
}

// ---- Middleware ----

func TestSecurityHeaders(t *testing.T) {
	app := setupApp(makeDeps(t, nil))

	resp, err := app.Test(httptest.NewRequest("GET", "/v1/health", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", resp.Header.Get("X-Frame-Options"))
	assert.NotEmpty(t, resp.Header.Get("X-Request-Id"))
}

func TestETag_NotModified(t *testing.T) {
	app := setupApp(makeDeps(t, nil))

	status, _, _ := do(t, app, "POST", "/v1/scenes", renderBody(t, "r1"))
	require.Equal(t, 200, status)

	resp, err := app.Test(httptest.NewRequest("GET", "/v1/scenes/r1/legend", nil), -1)
	require.NoError(t, err)
	etag := resp.Header.Get("ETag")
	require.NotEmpty(t, etag)

	req := httptest.NewRequest("GET", "/v1/scenes/r1/legend", nil)
	req.Header.Set("If-None-Match", etag)
	resp, err = app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, 304, resp.StatusCode)
}
