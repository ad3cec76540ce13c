package domain

// LinePattern is how a polyline stroke is drawn.
type LinePattern string

const (
	PatternSolid  LinePattern = "solid"
	PatternDashed LinePattern = "dashed"
	PatternDotted LinePattern = "dotted"
	PatternWavy   LinePattern = "wavy"
)

// LineStyle is the fixed per-mode stroke description.
type LineStyle struct {
	Color    string      `json:"color"`
	Pattern  LinePattern `json:"pattern"`
	Weight   float64     `json:"weight"`
	Opacity  float64     `json:"opacity"`
	Priority int         `json:"priority"` // higher draws on top
	Label    string      `json:"label"`
}

// DashArray returns the stroke dash lengths for the pattern, nil for
// continuous strokes. Wavy lines get their shape from geometry.
func (s LineStyle) DashArray() []float64 {
	switch s.Pattern {
	case PatternDashed:
		return []float64{10, 10}
	case PatternDotted:
		return []float64{2, 8}
	default:
		return nil
	}
}

var styleTable = map[TransportMode]LineStyle{
	ModeFlight:     {Color: "#3B82F6", Pattern: PatternDashed, Weight: 3, Opacity: 0.9, Priority: 6, Label: "Flight"},
	ModeRail:       {Color: "#10B981", Pattern: PatternSolid, Weight: 4, Opacity: 0.85, Priority: 5, Label: "Rail"},
	ModeBus:        {Color: "#F59E0B", Pattern: PatternSolid, Weight: 3, Opacity: 0.8, Priority: 4, Label: "Bus"},
	ModeTaxi:       {Color: "#EAB308", Pattern: PatternSolid, Weight: 2, Opacity: 0.8, Priority: 3, Label: "Taxi"},
	ModeFerry:      {Color: "#06B6D4", Pattern: PatternWavy, Weight: 3, Opacity: 0.85, Priority: 2, Label: "Ferry"},
	ModeWinterRoad: {Color: "#94A3B8", Pattern: PatternDotted, Weight: 3, Opacity: 0.75, Priority: 1, Label: "Winter road"},
}

var defaultStyle = LineStyle{Color: "#6B7280", Pattern: PatternSolid, Weight: 2, Opacity: 0.7, Priority: 0, Label: "Other"}

// StyleFor returns the style of a mode; unknown modes get a neutral style.
func StyleFor(mode TransportMode) LineStyle {
	if s, ok := styleTable[mode]; ok {
		return s
	}
	return defaultStyle
}

// MarkerColor is the fill color of a marker role.
func MarkerColor(role MarkerRole) string {
	switch role {
	case RoleStart:
		return "#22C55E"
	case RoleEnd:
		return "#EF4444"
	case RoleTransfer:
		return "#F97316"
	case RoleWarning:
		return "#EAB308"
	default:
		return "#6B7280"
	}
}
