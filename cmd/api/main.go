package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/facebookgo/clock"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/nats-io/nats.go"

	"github.com/samirrijal/routeviz/internal/adapters/http"
	"github.com/samirrijal/routeviz/internal/adapters/mapprovider"
	natsadapter "github.com/samirrijal/routeviz/internal/adapters/nats"
	"github.com/samirrijal/routeviz/internal/adapters/postgres"
	"github.com/samirrijal/routeviz/internal/adapters/surface"
	"github.com/samirrijal/routeviz/internal/adapters/valkey"
	"github.com/samirrijal/routeviz/internal/core/domain"
	"github.com/samirrijal/routeviz/internal/core/ports"
	"github.com/samirrijal/routeviz/internal/core/usecases"
	"github.com/samirrijal/routeviz/internal/pkg/config"
	"github.com/samirrijal/routeviz/internal/pkg/logging"
	"github.com/samirrijal/routeviz/internal/pkg/metrics"
	"github.com/samirrijal/routeviz/internal/pkg/telemetry"
	"github.com/samirrijal/routeviz/internal/render"
	"github.com/samirrijal/routeviz/internal/tiles"
)

func main() {
	cfg, err := config.Load("routeviz-api")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	// Structured logging
	logger := logging.Setup(cfg.Log.Level, cfg.Log.Format, cfg.Telemetry.ServiceName)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Telemetry
	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.InitTracer(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.TempoAddr)
		if err != nil {
			slog.Warn("telemetry init failed", "error", err)
		} else {
			defer shutdown()
		}
	}

	// Display surfaces and map backend
	surfaces := surface.NewRegistry(logger)
	factory, err := mapprovider.NewFactory(cfg.Map.Provider, mapprovider.Options{
		Surfaces:        surfaces,
		Fetcher:         tiles.NewHTTPFetcher(cfg.Map.TileUserAgent),
		Clock:           clock.New(),
		Logger:          logger,
		Primary:         cfg.Map.Primary,
		Fallback:        cfg.Map.Fallback,
		Breaker:         cfg.Map.Breaker(),
		SurfaceAttempts: cfg.Map.SurfaceAttempts,
		SurfaceInterval: cfg.Map.SurfaceInterval,
		OnTileLoad:      metrics.ObserveTileLoad,
		OnFallback: func(from, to tiles.Source) {
			metrics.TileFallbacks.Inc()
		},
	})
	if err != nil {
		log.Fatalf("map provider: %v", err)
	}

	// Optional backends. Interface values stay nil when a backend is off
	// so the scene service skips it.
	var (
		segments  ports.SegmentSource
		publisher ports.EventPublisher
		cache     ports.CacheService
	)

	// Database
	var db *postgres.DB
	if cfg.Database.Enabled {
		db, err = postgres.New(ctx, cfg.Database.DSN(), cfg.Database.MaxConns)
		if err != nil {
			log.Fatalf("database: %v", err)
		}
		defer db.Close()
		segments = postgres.NewSegmentRepo(db)
		go reportPoolStats(ctx, db)
	}

	// Cache
	var vc *valkey.Cache
	if cfg.Valkey.Enabled {
		vc, err = valkey.New(cfg.Valkey.Addr, cfg.Valkey.Prefix)
		if err != nil {
			slog.Warn("valkey unavailable", "error", err)
		} else {
			defer vc.Close()
			cache = vc
		}
	}

	// NATS
	var (
		pub      *natsadapter.Publisher
		natsConn *nats.Conn
	)
	if cfg.NATS.Enabled {
		pub, err = natsadapter.NewPublisher(cfg.NATS.URL)
		if err != nil {
			slog.Warn("nats unavailable", "error", err)
		} else {
			defer pub.Close()
			publisher = pub
			natsConn = pub.Conn()
		}
	}

	// Use cases
	renderCfg := render.DefaultConfig()
	renderCfg.BoundsPadding = cfg.Map.BoundsPadding
	renderCfg.PaddingPx = cfg.Map.PaddingPx
	renderCfg.View = domain.Viewport{Center: cfg.Map.DefaultCenter, Zoom: cfg.Map.DefaultZoom}

	scenes := usecases.NewSceneService(factory, segments, publisher, cache, renderCfg, logger).WithSurfaces(surfaces)
	defer scenes.Shutdown()

	// Queued render requests
	var queue http.RenderQueue
	if pub != nil {
		queue = pub
	}
	if cfg.NATS.ConsumeRequests && pub != nil {
		sub, err := natsadapter.NewSubscriber(cfg.NATS.URL, logger)
		if err != nil {
			log.Fatalf("nats subscriber: %v", err)
		}
		defer sub.Close()
		err = sub.SubscribeRenderRequests(ctx, func(ctx context.Context, req *natsadapter.RenderRequest) error {
			_, err := scenes.Render(ctx, req.RouteVisualizationRequest, req.SurfaceID)
			return err
		})
		if err != nil {
			log.Fatalf("subscribe render requests: %v", err)
		}
		slog.Info("consuming queued render requests")
	}

	deps := &http.Dependencies{
		Scenes:         scenes,
		Surfaces:       surfaces,
		NATS:           natsConn,
		DB:             db,
		Cache:          vc,
		Queue:          queue,
		SurfacePing:    cfg.Server.SurfacePing,
		RequestTimeout: cfg.Server.RequestTimeout,
	}

	// Fiber
	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    4 * 1024 * 1024, // routes with explicit paths can be large
		AppName:      "Routeviz API",
	})
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.Server.AllowOrigins,
		AllowMethods:     "GET,POST,DELETE,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, If-None-Match",
		AllowCredentials: false,
		MaxAge:           3600,
	}))

	http.SetupRoutes(app, deps)

	// Graceful shutdown
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		slog.Info("API server starting", "addr", addr, "map_provider", factory.Kind)
		if err := app.Listen(addr); err != nil {
			log.Fatalf("listen: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	slog.Info("shutdown signal received, draining connections...", "signal", sig.String())

	// Give in-flight requests up to 10s to complete
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		slog.Error("forced shutdown", "error", err)
	}

	slog.Info("server stopped", "sessions", scenes.Sessions())
}

// reportPoolStats keeps the database pool gauges current.
func reportPoolStats(ctx context.Context, db *postgres.DB) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			metrics.UpdateDBPoolMetrics(db.Pool.Stat())
		}
	}
}
