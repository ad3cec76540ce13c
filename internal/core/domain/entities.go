package domain

import (
	"time"
)

// TransportMode identifies how a segment is travelled.
type TransportMode string

const (
	ModeFlight     TransportMode = "flight"
	ModeRail       TransportMode = "rail"
	ModeBus        TransportMode = "bus"
	ModeTaxi       TransportMode = "taxi"
	ModeFerry      TransportMode = "ferry"
	ModeWinterRoad TransportMode = "winter_road"
)

// Stop is a point where a segment starts or ends.
type Stop struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Coordinate Coordinate `json:"coordinate"`
	City       string     `json:"city,omitempty"`
	IsHub      bool       `json:"is_hub"`
	HubLevel   int        `json:"hub_level,omitempty"`
	IsTransfer bool       `json:"is_transfer"`
}

// SegmentMetadata carries display-only facts about a segment.
type SegmentMetadata struct {
	DistanceKm float64 `json:"distance_km,omitempty"`
	Duration   string  `json:"duration,omitempty"`
	Price      float64 `json:"price,omitempty"`
	Currency   string  `json:"currency,omitempty"`
	Departure  string  `json:"departure,omitempty"`
	Arrival    string  `json:"arrival,omitempty"`
	Carrier    string  `json:"carrier,omitempty"`
}

// RouteSegmentVisual is one leg of a multimodal route. It is built by the
// route-building collaborator and consumed read-only here.
type RouteSegmentVisual struct {
	ID       string          `json:"id"`
	Mode     TransportMode   `json:"mode"`
	From     Stop            `json:"from"`
	To       Stop            `json:"to"`
	Path     []Coordinate    `json:"path,omitempty"` // authoritative geometry
	ViaHubs  []Stop          `json:"via_hubs,omitempty"`
	Metadata SegmentMetadata `json:"metadata"`
}

// RouteVisualizationRequest is the only input the engine consumes.
type RouteVisualizationRequest struct {
	RouteID  string               `json:"route_id"`
	Segments []RouteSegmentVisual `json:"segments"`
	Bounds   *MapBounds           `json:"bounds,omitempty"`
}

// MarkerRole classifies a stop within a route.
type MarkerRole string

const (
	RoleStart    MarkerRole = "start"
	RoleTransfer MarkerRole = "transfer"
	RoleEnd      MarkerRole = "end"
	RoleWarning  MarkerRole = "warning"
)

// Marker is a stop plus its role in the route.
type Marker struct {
	Stop       Stop       `json:"stop"`
	Role       MarkerRole `json:"role"`
	SegmentID  string     `json:"segment_id"`
	Annotation string     `json:"annotation,omitempty"`
}

// RenderedSceneHandle lists the provider-assigned ids created by one render.
type RenderedSceneHandle struct {
	RouteID     string   `json:"route_id"`
	MarkerIDs   []string `json:"marker_ids"`
	PolylineIDs []string `json:"polyline_ids"`
}

// Empty reports whether the handle owns no drawn objects.
func (h RenderedSceneHandle) Empty() bool {
	return len(h.MarkerIDs) == 0 && len(h.PolylineIDs) == 0
}

// LegendEntry describes one transport mode present in a scene.
type LegendEntry struct {
	Mode    TransportMode `json:"mode"`
	Label   string        `json:"label"`
	Color   string        `json:"color"`
	Count   int           `json:"count"`
	Visible bool          `json:"visible"`
}

// DrawnMarker is a marker as it was placed on the provider.
type DrawnMarker struct {
	ID       string     `json:"id"`
	Marker   Marker     `json:"marker"`
	Position Coordinate `json:"position"`
}

// DrawnPolyline is a segment path as it was placed on the provider.
// ID is empty while the segment's mode is hidden.
type DrawnPolyline struct {
	ID        string        `json:"id,omitempty"`
	SegmentID string        `json:"segment_id"`
	// Seq is the index of the segment in the request.
	Seq       int           `json:"seq"`
	Mode      TransportMode `json:"mode"`
	Path      []Coordinate  `json:"path"`
	Style     LineStyle     `json:"style"`
	Visible   bool          `json:"visible"`
}

// RenderedScene is the full result of one render call.
type RenderedScene struct {
	RouteID    string              `json:"route_id"`
	Handle     RenderedSceneHandle `json:"handle"`
	Legend     []LegendEntry       `json:"legend"`
	NoData     bool                `json:"no_data"`
	Markers    []DrawnMarker       `json:"markers"`
	Polylines  []DrawnPolyline     `json:"polylines"`
	Bounds     *MapBounds          `json:"bounds,omitempty"`
	Skipped    []string            `json:"skipped_segments,omitempty"`
	Warnings   []string            `json:"warnings,omitempty"`
	RenderedAt time.Time           `json:"rendered_at"`
}

// TileState is the circuit breaker state of a basemap.
type TileState string

const (
	TileStable    TileState = "stable"
	TileDegrading TileState = "degrading"
	TileFallback  TileState = "fallback"
)

// TileLoadState is a point-in-time view of a provider's tile breaker.
type TileLoadState struct {
	State           TileState `json:"state"`
	ActiveSource    string    `json:"active_source"`
	ErrorCount      int       `json:"error_count"`   // outstanding counter
	WindowErrors    int       `json:"window_errors"` // timestamps inside the window
	InFlight        int       `json:"in_flight"`
	FallbackEngaged bool      `json:"fallback_engaged"`
}

// MapEventKind names a user interaction reported by a surface.
type MapEventKind string

const (
	EventMarkerClick    MapEventKind = "marker_click"
	EventPolylineClick  MapEventKind = "polyline_click"
	EventViewportChange MapEventKind = "viewport_change"
)

// MapEvent is an interaction forwarded to the active event sink.
type MapEvent struct {
	Kind     MapEventKind `json:"kind"`
	TargetID string       `json:"target_id,omitempty"`
	Viewport *Viewport    `json:"viewport,omitempty"`
	Time     time.Time    `json:"time"`
}
