package ports

import (
	"context"

	"github.com/samirrijal/routeviz/internal/core/domain"
)

// EventPublisher publishes scene events to a message broker.
type EventPublisher interface {
	PublishSceneRendered(ctx context.Context, scene *domain.RenderedScene) error
	PublishMapEvent(ctx context.Context, routeID string, event domain.MapEvent) error
	PublishTileState(ctx context.Context, routeID string, state domain.TileLoadState) error
}

// CacheService provides read-through caching.
type CacheService interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttlSeconds int) error
	Delete(ctx context.Context, key string) error
}
