package http

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/fiber/v2/middleware/timeout"
	"github.com/gofiber/websocket/v2"

	"github.com/samirrijal/routeviz/internal/pkg/metrics"
)

// SetupRoutes registers all REST, GraphQL, and WebSocket routes.
func SetupRoutes(app *fiber.App, deps *Dependencies) {
	reqTimeout := deps.RequestTimeout
	if reqTimeout <= 0 {
		reqTimeout = 15 * time.Second
	}
	withTimeout := func(h fiber.Handler) fiber.Handler {
		return timeout.NewWithContext(h, reqTimeout)
	}

	// Prometheus metrics
	app.Use(metrics.Middleware())
	app.Get("/metrics", metrics.Handler())

	// Response compression (gzip); tiles are already compressed
	app.Use(compress.New(compress.Config{
		Level: compress.LevelBestSpeed,
		Next:  isTileRequest,
	}))

	// Request ID
	app.Use(requestid.New())

	// Propagate request ID into slog context
	app.Use(RequestIDLogMiddleware())

	// Access logs (structured HTTP request logging)
	app.Use(AccessLogMiddleware())

	// Rate limiting: 120 requests per minute per IP. A map view pulls
	// dozens of tiles at once, so the tile proxy is exempt.
	app.Use(limiter.New(limiter.Config{
		Max:        120,
		Expiration: 1 * time.Minute,
		Next:       isTileRequest,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return newError(c, 429, "rate_limited", "too many requests, please try again later")
		},
	}))

	// Security headers + API version
	app.Use(func(c *fiber.Ctx) error {
		c.Set("X-Content-Type-Options", "nosniff")
		c.Set("X-Frame-Options", "DENY")
		c.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Set("X-API-Version", "1.0.0")
		return c.Next()
	})

	// ETag for conditional caching
	app.Use(ETagMiddleware())

	// Default Cache-Control headers
	app.Use(CachingMiddleware())

	// Health & readiness (no timeout: fast internal checks)
	app.Get("/v1/health", HealthHandler(deps))
	app.Get("/v1/ready", ReadyHandler(deps))

	v1 := app.Group("/v1")
	v1.Post("/scenes", withTimeout(RenderSceneHandler(deps)))
	v1.Post("/scenes/queue", withTimeout(QueueSceneHandler(deps)))
	v1.Get("/scenes/:id", withTimeout(GetSceneHandler(deps)))
	v1.Delete("/scenes/:id", withTimeout(CloseSceneHandler(deps)))
	v1.Get("/scenes/:id/geojson", withTimeout(SceneGeoJSONHandler(deps)))
	v1.Get("/scenes/:id/legend", withTimeout(SceneLegendHandler(deps)))
	v1.Post("/scenes/:id/modes/:mode/toggle", withTimeout(ToggleModeHandler(deps)))
	v1.Get("/scenes/:id/tiles/status", withTimeout(TileStatusHandler(deps)))
	v1.Get("/scenes/:id/tiles/:z/:x/:y", withTimeout(TileHandler(deps)))
	v1.Post("/routes/:id/scene", withTimeout(RenderStoredRouteHandler(deps)))

	// GraphQL
	app.Post("/graphql", GraphQLHandler(deps))

	// API documentation (Swagger UI)
	SetupDocs(app, deps.DocsPath)

	// WebSocket: event relay and browser display surfaces
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/surfaces/:id", websocket.New(SurfaceSocketHandler(deps)))
	app.Get("/ws", websocket.New(WebSocketHandler(deps)))
}

func isTileRequest(c *fiber.Ctx) bool {
	p := c.Path()
	return strings.HasPrefix(p, "/v1/scenes/") && strings.Contains(p, "/tiles/") && !strings.HasSuffix(p, "/status")
}
