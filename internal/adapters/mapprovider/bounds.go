package mapprovider

import (
	"fmt"
	"math"

	"github.com/samirrijal/routeviz/internal/core/domain"
	"github.com/samirrijal/routeviz/internal/pkg/geospatial"
)

const tileSizePx = 256

// maxMercatorLat is the latitude where Web Mercator tiles end.
const maxMercatorLat = 85.05112878

// fitView computes the center and zoom that show b inside a surface of
// width×height pixels with paddingPx on every side. It fails with
// domain.ErrInvalidBounds on non-finite or degenerate bounds.
func fitView(b domain.MapBounds, paddingPx, width, height int, maxZoom float64) (domain.Viewport, error) {
	if err := checkBounds(b); err != nil {
		return domain.Viewport{}, err
	}

	center, err := geospatial.Normalize(b.Center())
	if err != nil {
		return domain.Viewport{}, fmt.Errorf("%w: %v", domain.ErrInvalidBounds, err)
	}

	if paddingPx < 0 {
		paddingPx = 0
	}
	usableW := math.Max(float64(width-2*paddingPx), 1)
	usableH := math.Max(float64(height-2*paddingPx), 1)

	latFraction := (mercatorY(b.North) - mercatorY(b.South)) / (2 * math.Pi)
	lngFraction := (b.East - b.West) / 360

	zoom := math.Min(
		zoomFor(usableH, latFraction),
		zoomFor(usableW, lngFraction),
	)
	zoom = math.Max(0, math.Min(zoom, maxZoom))
	return domain.Viewport{Center: center, Zoom: zoom}, nil
}

func checkBounds(b domain.MapBounds) error {
	for _, v := range []float64{b.North, b.South, b.East, b.West} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: non-finite edge", domain.ErrInvalidBounds)
		}
	}
	if b.North-b.South < geospatial.MinSpanDeg || b.East-b.West < geospatial.MinSpanDeg {
		return fmt.Errorf("%w: span below %v°", domain.ErrInvalidBounds, geospatial.MinSpanDeg)
	}
	if b.North > 90 || b.South < -90 {
		return fmt.Errorf("%w: latitude out of range", domain.ErrInvalidBounds)
	}
	return nil
}

func mercatorY(lat float64) float64 {
	lat = math.Max(-maxMercatorLat, math.Min(maxMercatorLat, lat))
	s := math.Sin(lat * math.Pi / 180)
	return math.Log((1+s)/(1-s)) / 2
}

func zoomFor(px, fraction float64) float64 {
	if fraction <= 0 {
		return math.Inf(1)
	}
	return math.Log2(px / tileSizePx / fraction)
}
