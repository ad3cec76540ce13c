package telemetry

// Span names.
const (
	SpanSceneRender = "scene.render"
	SpanToggleMode  = "scene.toggle_mode"
	SpanLoadTile    = "scene.load_tile"
)

// Span attribute keys.
const (
	AttrRouteID       = "route.id"
	AttrRouteSegments = "route.segments"
	AttrPolylines     = "scene.polylines"
	AttrMarkers       = "scene.markers"
	AttrNoData        = "scene.no_data"
	AttrMode          = "mode"
	AttrModeVisible   = "mode.visible"
	AttrTileZ         = "tile.z"
	AttrTileX         = "tile.x"
	AttrTileY         = "tile.y"
)
