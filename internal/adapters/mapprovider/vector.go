package mapprovider

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/samirrijal/routeviz/internal/core/domain"
	"github.com/samirrijal/routeviz/internal/core/ports"
	"github.com/samirrijal/routeviz/internal/tiles"
)

// vectorDialect speaks a style-spec dialect: geometry travels as GeoJSON
// features and styling as paint properties. Zoom is fractional.
type vectorDialect struct{}

// NewVector returns the DOM/vector backend.
func NewVector(opts Options) ports.MapProvider {
	return newProvider(vectorDialect{}, opts)
}

func (vectorDialect) kind() string { return KindVector }

func (vectorDialect) maxZoom() float64 { return 22 }

func (vectorDialect) snapZoom(z float64) float64 {
	return math.Round(z*100) / 100
}

func (vectorDialect) setup(view domain.Viewport, src tiles.Source) ports.SurfaceCommand {
	return ports.SurfaceCommand{
		Op: "map.create",
		Payload: map[string]any{
			"style": map[string]any{
				"version": 8,
				"sources": map[string]any{"basemap": rasterSource(src)},
				"layers": []map[string]any{
					{"id": "basemap", "type": "raster", "source": "basemap"},
				},
			},
			"center": lngLat(view.Center),
			"zoom":   view.Zoom,
		},
	}
}

func (vectorDialect) basemap(src tiles.Source) ports.SurfaceCommand {
	return ports.SurfaceCommand{
		Op:      "source.replace",
		Target:  "basemap",
		Payload: rasterSource(src),
	}
}

func (vectorDialect) marker(op, id string, at domain.Coordinate, opts ports.MarkerOptions) ports.SurfaceCommand {
	f := geojson.NewFeature(orb.Point{at.Lng, at.Lat})
	f.ID = id
	f.Properties["role"] = string(opts.Role)
	f.Properties["title"] = opts.Title
	f.Properties["marker-color"] = opts.Color
	f.Properties["z-index"] = opts.ZIndex
	if opts.SegmentID != "" {
		f.Properties["segment_id"] = opts.SegmentID
	}
	if opts.Tooltip != "" {
		f.Properties["tooltip"] = opts.Tooltip
	}
	return ports.SurfaceCommand{Op: "marker." + op, Target: id, Payload: f}
}

func (vectorDialect) polyline(op, id string, path []domain.Coordinate, opts ports.PolylineOptions) ports.SurfaceCommand {
	f := geojson.NewFeature(lineString(path))
	f.ID = id
	f.Properties["mode"] = string(opts.Mode)
	if opts.SegmentID != "" {
		f.Properties["segment_id"] = opts.SegmentID
	}
	if opts.Tooltip != "" {
		f.Properties["tooltip"] = opts.Tooltip
	}

	st := opts.Style
	paint := map[string]any{
		"line-color":   st.Color,
		"line-width":   st.Weight,
		"line-opacity": st.Opacity,
	}
	// style-spec dash lengths are in units of line width
	if dash := st.DashArray(); len(dash) > 0 && st.Weight > 0 {
		scaled := make([]float64, len(dash))
		for i, d := range dash {
			scaled[i] = d / st.Weight
		}
		paint["line-dasharray"] = scaled
	}

	return ports.SurfaceCommand{
		Op:     "layer." + op,
		Target: id,
		Payload: map[string]any{
			"type":   "line",
			"source": f,
			"paint":  paint,
			"layout": map[string]any{
				"line-join":     "round",
				"line-cap":      "round",
				"line-sort-key": st.Priority,
			},
		},
	}
}

func (vectorDialect) remove(id string) ports.SurfaceCommand {
	return ports.SurfaceCommand{Op: "feature.remove", Target: id}
}

func (vectorDialect) camera(view domain.Viewport, fit *domain.MapBounds, paddingPx int) ports.SurfaceCommand {
	if fit == nil {
		return ports.SurfaceCommand{
			Op:      "camera.jump_to",
			Payload: map[string]any{"center": lngLat(view.Center), "zoom": view.Zoom},
		}
	}
	return ports.SurfaceCommand{
		Op: "camera.fit_bounds",
		Payload: map[string]any{
			"bounds":  [2][2]float64{{fit.West, fit.South}, {fit.East, fit.North}},
			"padding": paddingPx,
			"center":  lngLat(view.Center),
			"zoom":    view.Zoom,
		},
	}
}

func rasterSource(src tiles.Source) map[string]any {
	return map[string]any{
		"type":        "raster",
		"name":        src.Name,
		"tiles":       src.Templates(),
		"tileSize":    tileSizePx,
		"maxzoom":     src.MaxZoom,
		"attribution": src.Attribution,
	}
}

func lngLat(c domain.Coordinate) [2]float64 {
	return [2]float64{c.Lng, c.Lat}
}

func lineString(path []domain.Coordinate) orb.LineString {
	ls := make(orb.LineString, len(path))
	for i, c := range path {
		ls[i] = orb.Point{c.Lng, c.Lat}
	}
	return ls
}
