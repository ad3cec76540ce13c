package http

import (
	"log/slog"
	"strconv"
	"time"

	"github.com/gofiber/websocket/v2"

	"github.com/samirrijal/routeviz/internal/adapters/surface"
	"github.com/samirrijal/routeviz/internal/pkg/metrics"
)

// SurfaceSocketHandler attaches a browser map as display surface :id for
// the life of the connection. Sessions rendering to that id send their
// provider commands over it.
// Query: width, height (viewport in CSS pixels).
func SurfaceSocketHandler(deps *Dependencies) func(*websocket.Conn) {
	ping := deps.SurfacePing
	if ping <= 0 {
		ping = 30 * time.Second
	}

	return func(c *websocket.Conn) {
		defer c.Close()

		id := c.Params("id")
		width, _ := strconv.Atoi(c.Query("width"))
		height, _ := strconv.Atoi(c.Query("height"))
		logger := slog.Default().With("surface_id", id)

		if deps.Surfaces == nil || id == "" {
			_ = c.WriteMessage(websocket.TextMessage, []byte(`{"op":"error","payload":"surface registry not configured"}`))
			return
		}

		sock := surface.NewSocket(id, c, width, height, logger)
		deps.Surfaces.Attach(sock)
		metrics.ActiveWebSockets.Inc()
		defer func() {
			deps.Surfaces.Detach(sock)
			metrics.ActiveWebSockets.Dec()
		}()

		w, h := sock.Size()
		logger.Info("surface connected", "width", w, "height", h)
		sock.Serve(ping)
		logger.Info("surface disconnected")
	}
}
