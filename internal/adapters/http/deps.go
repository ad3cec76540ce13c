package http

import (
	"context"
	"time"

	"github.com/nats-io/nats.go"

	natsadapter "github.com/samirrijal/routeviz/internal/adapters/nats"
	"github.com/samirrijal/routeviz/internal/adapters/postgres"
	"github.com/samirrijal/routeviz/internal/adapters/surface"
	"github.com/samirrijal/routeviz/internal/adapters/valkey"
	"github.com/samirrijal/routeviz/internal/core/usecases"
)

// Dependencies holds all services needed by HTTP handlers.
type Dependencies struct {
	Scenes   *usecases.SceneService
	Surfaces *surface.Registry
	NATS     *nats.Conn
	DB       *postgres.DB
	Cache    *valkey.Cache
	// Queue accepts asynchronous render requests; nil disables
	// POST /v1/scenes/queue.
	Queue RenderQueue

	// SurfacePing is the keep-alive interval of display sockets.
	SurfacePing time.Duration
	// RequestTimeout bounds every REST handler (default 15s).
	RequestTimeout time.Duration
	// DocsPath locates the OpenAPI description (default api/openapi.yaml).
	DocsPath string
}

// RenderQueue hands a render request to a background consumer.
type RenderQueue interface {
	PublishRenderRequest(ctx context.Context, req *natsadapter.RenderRequest) error
}
