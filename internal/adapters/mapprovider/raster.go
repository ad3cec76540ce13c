package mapprovider

import (
	"math"
	"strconv"
	"strings"

	"github.com/samirrijal/routeviz/internal/core/domain"
	"github.com/samirrijal/routeviz/internal/core/ports"
	"github.com/samirrijal/routeviz/internal/tiles"
)

// rasterDialect speaks a hosted-tiles dialect modelled on Leaflet layer
// operations: [lat, lng] pairs, dash arrays as strings, integer zoom.
type rasterDialect struct{}

// NewRaster returns the hosted-tiles backend.
func NewRaster(opts Options) ports.MapProvider {
	return newProvider(rasterDialect{}, opts)
}

func (rasterDialect) kind() string { return KindRaster }

func (rasterDialect) maxZoom() float64 { return 19 }

func (rasterDialect) snapZoom(z float64) float64 { return math.Floor(z) }

func (rasterDialect) setup(view domain.Viewport, src tiles.Source) ports.SurfaceCommand {
	return ports.SurfaceCommand{
		Op: "map.init",
		Payload: map[string]any{
			"center":     latLng(view.Center),
			"zoom":       int(view.Zoom),
			"tile_layer": tileLayer(src),
		},
	}
}

func (rasterDialect) basemap(src tiles.Source) ports.SurfaceCommand {
	return ports.SurfaceCommand{Op: "tilelayer.replace", Payload: tileLayer(src)}
}

func (rasterDialect) marker(op, id string, at domain.Coordinate, opts ports.MarkerOptions) ports.SurfaceCommand {
	payload := map[string]any{
		"latlng": latLng(at),
		"options": map[string]any{
			"title":        opts.Title,
			"color":        opts.Color,
			"zIndexOffset": opts.ZIndex * 100,
			"className":    "marker-" + string(opts.Role),
		},
	}
	if opts.Tooltip != "" {
		payload["tooltip"] = opts.Tooltip
	}
	if opts.SegmentID != "" {
		payload["segment_id"] = opts.SegmentID
	}
	return ports.SurfaceCommand{Op: "marker." + op, Target: id, Payload: payload}
}

func (rasterDialect) polyline(op, id string, path []domain.Coordinate, opts ports.PolylineOptions) ports.SurfaceCommand {
	latlngs := make([][2]float64, len(path))
	for i, c := range path {
		latlngs[i] = latLng(c)
	}

	st := opts.Style
	options := map[string]any{
		"color":     st.Color,
		"weight":    st.Weight,
		"opacity":   st.Opacity,
		"className": "route-" + string(opts.Mode),
		"pane":      "route-" + strconv.Itoa(st.Priority),
	}
	if dash := st.DashArray(); len(dash) > 0 {
		options["dashArray"] = dashString(dash)
	}

	payload := map[string]any{"latlngs": latlngs, "options": options}
	if opts.Tooltip != "" {
		payload["tooltip"] = opts.Tooltip
	}
	if opts.SegmentID != "" {
		payload["segment_id"] = opts.SegmentID
	}
	return ports.SurfaceCommand{Op: "polyline." + op, Target: id, Payload: payload}
}

func (rasterDialect) remove(id string) ports.SurfaceCommand {
	return ports.SurfaceCommand{Op: "layer.remove", Target: id}
}

func (rasterDialect) camera(view domain.Viewport, fit *domain.MapBounds, paddingPx int) ports.SurfaceCommand {
	if fit == nil {
		return ports.SurfaceCommand{
			Op:      "map.set_view",
			Payload: map[string]any{"center": latLng(view.Center), "zoom": int(view.Zoom)},
		}
	}
	return ports.SurfaceCommand{
		Op: "map.fit_bounds",
		Payload: map[string]any{
			"bounds":  [2][2]float64{{fit.South, fit.West}, {fit.North, fit.East}},
			"padding": [2]int{paddingPx, paddingPx},
			"center":  latLng(view.Center),
			"zoom":    int(view.Zoom),
		},
	}
}

func tileLayer(src tiles.Source) map[string]any {
	return map[string]any{
		"name":        src.Name,
		"url":         src.URLTemplate,
		"subdomains":  strings.Join(src.Subdomains, ""),
		"attribution": src.Attribution,
		"maxZoom":     src.MaxZoom,
	}
}

func latLng(c domain.Coordinate) [2]float64 {
	return [2]float64{c.Lat, c.Lng}
}

func dashString(dash []float64) string {
	parts := make([]string, len(dash))
	for i, d := range dash {
		parts[i] = strconv.FormatFloat(d, 'f', -1, 64)
	}
	return strings.Join(parts, ", ")
}
