package render

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/samirrijal/routeviz/internal/core/domain"
)

// FeatureCollection exports a scene as GeoJSON: one LineString per
// polyline (hidden ones included, flagged by "visible") and one Point per
// marker. Coordinates are [lng, lat] as GeoJSON requires.
func FeatureCollection(s *domain.RenderedScene) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	if s == nil {
		return fc
	}

	for _, line := range s.Polylines {
		ls := make(orb.LineString, len(line.Path))
		for i, c := range line.Path {
			ls[i] = orb.Point{c.Lng, c.Lat}
		}
		f := geojson.NewFeature(ls)
		if line.ID != "" {
			f.ID = line.ID
		}
		f.Properties["kind"] = "segment"
		f.Properties["segment_id"] = line.SegmentID
		f.Properties["seq"] = line.Seq
		f.Properties["mode"] = string(line.Mode)
		f.Properties["visible"] = line.Visible
		f.Properties["stroke"] = line.Style.Color
		f.Properties["stroke-width"] = line.Style.Weight
		f.Properties["stroke-opacity"] = line.Style.Opacity
		f.Properties["pattern"] = string(line.Style.Pattern)
		f.Properties["priority"] = line.Style.Priority
		if dash := line.Style.DashArray(); dash != nil {
			f.Properties["dash_array"] = dash
		}
		fc.Append(f)
	}

	for _, m := range s.Markers {
		f := geojson.NewFeature(orb.Point{m.Position.Lng, m.Position.Lat})
		f.ID = m.ID
		f.Properties["kind"] = "stop"
		f.Properties["stop_id"] = m.Marker.Stop.ID
		f.Properties["name"] = m.Marker.Stop.Name
		f.Properties["role"] = string(m.Marker.Role)
		f.Properties["segment_id"] = m.Marker.SegmentID
		f.Properties["marker-color"] = domain.MarkerColor(m.Marker.Role)
		if m.Marker.Annotation != "" {
			f.Properties["annotation"] = m.Marker.Annotation
		}
		fc.Append(f)
	}

	if s.Bounds != nil {
		b := orb.Bound{
			Min: orb.Point{s.Bounds.West, s.Bounds.South},
			Max: orb.Point{s.Bounds.East, s.Bounds.North},
		}
		fc.BBox = geojson.NewBBox(b)
	}
	return fc
}
