// Package pathsynth produces drawable polylines for route segments,
// synthesizing plausible shapes per transport mode when no authoritative
// geometry is available.
package pathsynth

import (
	"math"

	"github.com/samirrijal/routeviz/internal/core/domain"
	"github.com/samirrijal/routeviz/internal/pkg/geospatial"
)

// profile describes the synthetic shape of a mode.
type profile struct {
	minPoints  int     // intermediate points
	maxPoints  int
	kmPerPoint float64 // segment length that earns one more intermediate point
	deviation  float64 // lateral offset as a fraction of the segment's degree length
	shape      func(i, n int, t float64) float64
}

// Flights bow to one side like a great-circle arc through hubs.
func arc(_, _ int, t float64) float64 { return math.Sin(math.Pi * t) }

// Rail swings gently between sides, the way track follows terrain.
func sweep(_, _ int, t float64) float64 {
	return 0.6*math.Sin(math.Pi*t) + 0.4*math.Sin(2*math.Pi*t)
}

// Road traffic jitters slightly around the straight line.
func jitter(i, _ int, t float64) float64 {
	sign := 1.0
	if i%2 == 1 {
		sign = -1
	}
	return sign * math.Sin(math.Pi*t)
}

var profiles = map[domain.TransportMode]profile{
	domain.ModeFlight: {minPoints: 2, maxPoints: 3, kmPerPoint: 1500, deviation: 0.12, shape: arc},
	domain.ModeRail:   {minPoints: 3, maxPoints: 5, kmPerPoint: 300, deviation: 0.05, shape: sweep},
	domain.ModeBus:    {minPoints: 2, maxPoints: 4, kmPerPoint: 200, deviation: 0.02, shape: jitter},
	domain.ModeTaxi:   {minPoints: 2, maxPoints: 4, kmPerPoint: 50, deviation: 0.02, shape: jitter},
}

var fallbackProfile = profile{minPoints: 2, maxPoints: 4, kmPerPoint: 200, deviation: 0.02, shape: jitter}

// WaveConfig shapes ferry paths.
type WaveConfig struct {
	Amplitude float64 // degrees
	Frequency float64 // waves per segment
}

// DefaultWave is the ferry wave used when none is configured.
var DefaultWave = WaveConfig{Amplitude: 0.05, Frequency: 3}

// Synthesizer builds segment paths. The zero value is not usable; use New.
type Synthesizer struct {
	wave WaveConfig
}

// New creates a Synthesizer. A zero WaveConfig selects DefaultWave.
func New(wave WaveConfig) *Synthesizer {
	if wave.Amplitude <= 0 || wave.Frequency <= 0 {
		wave = DefaultWave
	}
	return &Synthesizer{wave: wave}
}

// Segment synthesizes the path of a whole segment. Flights with known hubs
// are laddered through them.
func (s *Synthesizer) Segment(seg domain.RouteSegmentVisual) []domain.Coordinate {
	if len(seg.Path) == 0 && seg.Mode == domain.ModeFlight && len(seg.ViaHubs) > 0 {
		if path := s.throughHubs(seg); len(path) >= 2 {
			return path
		}
	}
	return s.Synthesize(seg.From.Coordinate, seg.To.Coordinate, seg.Mode, seg.Path)
}

// Synthesize returns either nil or at least two valid, normalized
// coordinates. An authoritative path with two or more valid points wins:
// invalid points are dropped, longitudes normalized, and its ends need not
// match from and to. Otherwise the path starts at from and ends at to.
// It never panics; bad input degrades to a straight line or nil.
func (s *Synthesizer) Synthesize(from, to domain.Coordinate, mode domain.TransportMode, authoritative []domain.Coordinate) []domain.Coordinate {
	if len(authoritative) > 0 {
		valid := make([]domain.Coordinate, 0, len(authoritative))
		for _, c := range authoritative {
			if n, err := geospatial.Normalize(c); err == nil {
				valid = append(valid, n)
			}
		}
		if len(valid) >= 2 {
			return valid
		}
	}

	start, err := geospatial.Normalize(from)
	if err != nil {
		return nil
	}
	end, err := geospatial.Normalize(to)
	if err != nil {
		return nil
	}
	if start == end {
		return []domain.Coordinate{start, end}
	}

	var raw []domain.Coordinate
	if mode == domain.ModeFerry {
		raw = s.wavy(start, end)
	} else {
		raw = s.deviated(start, end, mode)
	}

	path := s.sanitize(raw, start, end)
	if len(path) < 2 {
		return []domain.Coordinate{start, end}
	}
	return path
}

// deviated interpolates between start and end and pushes the interior
// points sideways according to the mode profile.
func (s *Synthesizer) deviated(start, end domain.Coordinate, mode domain.TransportMode) []domain.Coordinate {
	p, ok := profiles[mode]
	if !ok {
		p = fallbackProfile
	}

	km := geospatial.DistanceKm(start, end)
	n := p.minPoints + int(km/p.kmPerPoint)
	if n > p.maxPoints {
		n = p.maxPoints
	}

	target := geospatial.UnwrapTowards(start, end)
	dLat, dLng := target.Lat-start.Lat, target.Lng-start.Lng
	length := math.Hypot(dLat, dLng)
	// unit normal to the travel direction
	nLat, nLng := -dLng/length, dLat/length
	amp := length * p.deviation

	out := make([]domain.Coordinate, 0, n+2)
	out = append(out, start)
	for i := 1; i <= n; i++ {
		t := float64(i) / float64(n+1)
		base := geospatial.Interpolate(start, target, t)
		off := amp * p.shape(i, n, t)
		out = append(out, domain.Coordinate{Lat: base.Lat + nLat*off, Lng: base.Lng + nLng*off})
	}
	return append(out, end)
}

// wavy builds a dense base line and applies a sinusoidal lateral offset.
func (s *Synthesizer) wavy(start, end domain.Coordinate) []domain.Coordinate {
	target := geospatial.UnwrapTowards(start, end)
	dLat, dLng := target.Lat-start.Lat, target.Lng-start.Lng
	length := math.Hypot(dLat, dLng)
	nLat, nLng := -dLng/length, dLat/length

	// eight samples per wave keeps the curve smooth at every zoom we fit to
	steps := int(math.Ceil(s.wave.Frequency * 8))
	if steps < 4 {
		steps = 4
	}
	amp := math.Min(s.wave.Amplitude, length/4)

	out := make([]domain.Coordinate, 0, steps+1)
	out = append(out, start)
	for i := 1; i < steps; i++ {
		t := float64(i) / float64(steps)
		base := geospatial.Interpolate(start, target, t)
		off := amp * math.Sin(2*math.Pi*s.wave.Frequency*t)
		out = append(out, domain.Coordinate{Lat: base.Lat + nLat*off, Lng: base.Lng + nLng*off})
	}
	return append(out, end)
}

// sanitize normalizes every point and replaces invalid interior points
// with the undeviated linear interpolation at the same position.
func (s *Synthesizer) sanitize(raw []domain.Coordinate, start, end domain.Coordinate) []domain.Coordinate {
	if len(raw) < 2 {
		return nil
	}
	target := geospatial.UnwrapTowards(start, end)
	last := len(raw) - 1
	out := make([]domain.Coordinate, 0, len(raw))
	for i, c := range raw {
		if n, err := geospatial.Normalize(c); err == nil {
			out = append(out, n)
			continue
		}
		t := float64(i) / float64(last)
		sub, err := geospatial.Normalize(geospatial.Interpolate(start, target, t))
		if err != nil {
			continue
		}
		out = append(out, sub)
	}
	return out
}

func (s *Synthesizer) throughHubs(seg domain.RouteSegmentVisual) []domain.Coordinate {
	start, err := geospatial.Normalize(seg.From.Coordinate)
	if err != nil {
		return nil
	}
	end, err := geospatial.Normalize(seg.To.Coordinate)
	if err != nil {
		return nil
	}
	path := []domain.Coordinate{start}
	for _, hub := range seg.ViaHubs {
		if c, err := geospatial.Normalize(hub.Coordinate); err == nil {
			path = append(path, c)
		}
	}
	return append(path, end)
}
