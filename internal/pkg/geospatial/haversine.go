package geospatial

import (
	"fmt"
	"math"

	"github.com/samirrijal/routeviz/internal/core/domain"
)

const earthRadiusKm = 6371.0

const (
	// MinSpanDeg is the smallest axis span treated as non-degenerate.
	MinSpanDeg = 0.001
	// FloorSpanDeg replaces a degenerate span when building bounds.
	FloorSpanDeg = 0.1
)

// ValidateCoordinate fails with domain.ErrInvalidCoordinate when either
// component is non-finite, latitude is outside [-90, 90] or longitude is
// beyond ±360. Longitudes in (±180, ±360] pass and are normalized later.
func ValidateCoordinate(c domain.Coordinate) error {
	if !finite(c.Lat) || !finite(c.Lng) {
		return fmt.Errorf("%w: non-finite (%v, %v)", domain.ErrInvalidCoordinate, c.Lat, c.Lng)
	}
	if c.Lat < -90 || c.Lat > 90 {
		return fmt.Errorf("%w: latitude %v out of range", domain.ErrInvalidCoordinate, c.Lat)
	}
	if c.Lng < -360 || c.Lng > 360 {
		return fmt.Errorf("%w: longitude %v out of range", domain.ErrInvalidCoordinate, c.Lng)
	}
	return nil
}

// Valid is ValidateCoordinate without the error detail.
func Valid(c domain.Coordinate) bool {
	return ValidateCoordinate(c) == nil
}

// NormalizeLongitude maps lng into (-180, 180].
func NormalizeLongitude(lng float64) float64 {
	if lng > -180 && lng <= 180 {
		return lng
	}
	n := math.Mod(lng+180, 360)
	if n <= 0 {
		n += 360
	}
	return n - 180
}

// Normalize validates c and returns it with its longitude normalized.
func Normalize(c domain.Coordinate) (domain.Coordinate, error) {
	if err := ValidateCoordinate(c); err != nil {
		return c, err
	}
	return domain.Coordinate{Lat: c.Lat, Lng: NormalizeLongitude(c.Lng)}, nil
}

// Haversine calculates the great-circle distance in meters between two points.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*
			math.Sin(dLon/2)*math.Sin(dLon/2)

	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusKm * c * 1000 // meters
}

// DistanceKm returns the great-circle distance between a and b in kilometers.
// Identical points return exactly 0.
func DistanceKm(a, b domain.Coordinate) float64 {
	if a == b {
		return 0
	}
	return Haversine(a.Lat, a.Lng, b.Lat, b.Lng) / 1000
}

// BoundsFromCoordinates returns the padded box around points, or nil when
// points is empty. Each axis grows by padding times its span; spans under
// MinSpanDeg are first widened to FloorSpanDeg around their center.
// Latitude stays within [-90, 90]; longitude is left to the provider.
func BoundsFromCoordinates(points []domain.Coordinate, padding float64) *domain.MapBounds {
	if len(points) == 0 {
		return nil
	}
	if padding < 0 || !finite(padding) {
		padding = 0
	}

	minLat, maxLat := points[0].Lat, points[0].Lat
	minLng, maxLng := points[0].Lng, points[0].Lng
	for _, p := range points[1:] {
		minLat = math.Min(minLat, p.Lat)
		maxLat = math.Max(maxLat, p.Lat)
		minLng = math.Min(minLng, p.Lng)
		maxLng = math.Max(maxLng, p.Lng)
	}

	south, north := clampLatitude(expandAxis(minLat, maxLat, padding))
	west, east := expandAxis(minLng, maxLng, padding)

	return &domain.MapBounds{
		North: north,
		South: south,
		East:  east,
		West:  west,
	}
}

// clampLatitude keeps the window inside [-90, 90]. A window crossing a pole
// slides back toward the equator so it keeps its span.
func clampLatitude(south, north float64) (float64, float64) {
	if north > 90 {
		south = math.Max(south-(north-90), -90)
		north = 90
	}
	if south < -90 {
		north = math.Min(north+(-90-south), 90)
		south = -90
	}
	return south, north
}

func expandAxis(lo, hi, padding float64) (float64, float64) {
	span := hi - lo
	if span < MinSpanDeg {
		mid := (lo + hi) / 2
		span = FloorSpanDeg
		lo, hi = mid-span/2, mid+span/2
	}
	pad := span * padding
	return lo - pad, hi + pad
}

// Interpolate returns the point a fraction t of the way from a to b,
// linearly in degree space.
func Interpolate(a, b domain.Coordinate, t float64) domain.Coordinate {
	return domain.Coordinate{
		Lat: a.Lat + (b.Lat-a.Lat)*t,
		Lng: a.Lng + (b.Lng-a.Lng)*t,
	}
}

// UnwrapTowards shifts to's longitude by ±360 so the a→to leg takes the
// short way across the antimeridian.
func UnwrapTowards(from, to domain.Coordinate) domain.Coordinate {
	d := to.Lng - from.Lng
	switch {
	case d > 180:
		to.Lng -= 360
	case d < -180:
		to.Lng += 360
	}
	return to
}

func toRad(deg float64) float64 {
	return deg * math.Pi / 180
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
