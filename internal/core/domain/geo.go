package domain

// Coordinate is a geographic position (WGS 84). Latitude must lie in
// [-90, 90]; longitude is normalized into (-180, 180] before use.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// MapBounds is a geographic bounding box.
type MapBounds struct {
	North float64 `json:"north"`
	South float64 `json:"south"`
	East  float64 `json:"east"`
	West  float64 `json:"west"`
}

// Center returns the midpoint of the box.
func (b MapBounds) Center() Coordinate {
	return Coordinate{Lat: (b.North + b.South) / 2, Lng: (b.East + b.West) / 2}
}

// Contains reports whether c lies inside the box (edges included).
func (b MapBounds) Contains(c Coordinate) bool {
	return c.Lat <= b.North && c.Lat >= b.South && c.Lng <= b.East && c.Lng >= b.West
}

// Viewport is the visible map area of a surface.
type Viewport struct {
	Center Coordinate `json:"center"`
	Zoom   float64    `json:"zoom"`
}
