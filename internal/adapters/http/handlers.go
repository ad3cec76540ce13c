package http

import (
	"fmt"

	"github.com/gofiber/fiber/v2"

	natsadapter "github.com/samirrijal/routeviz/internal/adapters/nats"
	"github.com/samirrijal/routeviz/internal/core/domain"
	"github.com/samirrijal/routeviz/internal/render"
)

const maxSegments = 500

// renderRequest is the body of POST /v1/scenes.
type renderRequest struct {
	domain.RouteVisualizationRequest
	SurfaceID string `json:"surface_id,omitempty"`
}

// ModeToggle is the response of a legend toggle.
type ModeToggle struct {
	Mode    domain.TransportMode `json:"mode"`
	Visible bool                 `json:"visible"`
	Legend  []domain.LegendEntry `json:"legend"`
}

// checkSegments numbers segments without an id after their position and
// rejects ids used twice.
func checkSegments(segs []domain.RouteSegmentVisual) error {
	seen := make(map[string]bool, len(segs))
	for i := range segs {
		if segs[i].ID == "" {
			segs[i].ID = fmt.Sprintf("seg-%d", i+1)
		}
		if seen[segs[i].ID] {
			return fmt.Errorf("duplicate segment id %q", segs[i].ID)
		}
		seen[segs[i].ID] = true
	}
	return nil
}

// RenderSceneHandler renders a route supplied in the request body.
func RenderSceneHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req renderRequest
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid request body")
		}
		if req.RouteID == "" {
			return errBadRequest(c, "route_id is required")
		}
		if len(req.Segments) > maxSegments {
			return errBadRequest(c, "too many segments (max 500)")
		}
		if err := checkSegments(req.Segments); err != nil {
			return errBadRequest(c, err.Error())
		}

		scene, err := deps.Scenes.Render(c.UserContext(), req.RouteVisualizationRequest, req.SurfaceID)
		if err != nil {
			return errFromDomain(c, err)
		}
		return c.JSON(scene)
	}
}

// QueueSceneHandler accepts a render request for the background consumer
// and answers 202 without waiting for the scene.
func QueueSceneHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if deps.Queue == nil {
			return newError(c, fiber.StatusServiceUnavailable, "queue_unavailable", "render queue is not configured")
		}
		var req renderRequest
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid request body")
		}
		if req.RouteID == "" {
			return errBadRequest(c, "route_id is required")
		}
		if len(req.Segments) > maxSegments {
			return errBadRequest(c, "too many segments (max 500)")
		}
		if err := checkSegments(req.Segments); err != nil {
			return errBadRequest(c, err.Error())
		}

		err := deps.Queue.PublishRenderRequest(c.UserContext(), &natsadapter.RenderRequest{
			RouteVisualizationRequest: req.RouteVisualizationRequest,
			SurfaceID:                 req.SurfaceID,
		})
		if err != nil {
			return newError(c, fiber.StatusServiceUnavailable, "queue_unavailable", err.Error())
		}
		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
			"route_id": req.RouteID,
			"status":   "queued",
		})
	}
}

// RenderStoredRouteHandler renders a route from the segment store.
func RenderStoredRouteHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		scene, err := deps.Scenes.RenderStored(c.UserContext(), c.Params("id"), c.Query("surface_id"))
		if err != nil {
			return errFromDomain(c, err)
		}
		return c.JSON(scene)
	}
}

// GetSceneHandler returns the current scene of a route.
func GetSceneHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		scene, err := deps.Scenes.Scene(c.UserContext(), c.Params("id"))
		if err != nil {
			return errFromDomain(c, err)
		}
		return c.JSON(scene)
	}
}

// SceneGeoJSONHandler returns the current scene as a GeoJSON FeatureCollection.
func SceneGeoJSONHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		scene, err := deps.Scenes.Scene(c.UserContext(), c.Params("id"))
		if err != nil {
			return errFromDomain(c, err)
		}
		data, err := render.FeatureCollection(scene).MarshalJSON()
		if err != nil {
			return errInternal(c, err.Error())
		}
		c.Set("Content-Type", "application/geo+json")
		return c.Send(data)
	}
}

// SceneLegendHandler returns the legend of a route's scene.
func SceneLegendHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		legend, err := deps.Scenes.Legend(c.UserContext(), c.Params("id"))
		if err != nil {
			return errFromDomain(c, err)
		}
		return c.JSON(legend)
	}
}

// ToggleModeHandler shows or hides every segment of one transport mode.
func ToggleModeHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		mode := domain.TransportMode(c.Params("mode"))
		visible, legend, err := deps.Scenes.ToggleMode(c.UserContext(), c.Params("id"), mode)
		if err != nil {
			return errFromDomain(c, err)
		}
		return c.JSON(ModeToggle{Mode: mode, Visible: visible, Legend: legend})
	}
}

// CloseSceneHandler tears down a route's session.
func CloseSceneHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if err := deps.Scenes.Close(c.UserContext(), c.Params("id")); err != nil {
			return errFromDomain(c, err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}

// TileHandler proxies one basemap tile through the session's breaker.
func TileHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		z, errZ := c.ParamsInt("z")
		x, errX := c.ParamsInt("x")
		y, errY := c.ParamsInt("y")
		if errZ != nil || errX != nil || errY != nil || z < 0 || x < 0 || y < 0 {
			return errBadRequest(c, "z, x and y must be non-negative integers")
		}

		data, err := deps.Scenes.LoadTile(c.UserContext(), c.Params("id"), z, x, y)
		if err != nil {
			return errFromDomain(c, err)
		}
		c.Set("Content-Type", "image/png")
		c.Set("Cache-Control", "public, max-age=86400")
		return c.Send(data)
	}
}

// TileStatusHandler reports the basemap breaker of a route's session.
func TileStatusHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		st, err := deps.Scenes.TileState(c.Params("id"))
		if err != nil {
			return errFromDomain(c, err)
		}
		c.Set("Cache-Control", "no-store")
		return c.JSON(st)
	}
}
