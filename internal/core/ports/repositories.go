package ports

import (
	"context"

	"github.com/samirrijal/routeviz/internal/core/domain"
)

// SegmentSource loads already-resolved segments of a route, in travel
// order. It is the read side of the route-building collaborator.
type SegmentSource interface {
	ListByRoute(ctx context.Context, routeID string) ([]domain.RouteSegmentVisual, error)
}
