package mapprovider

import (
	"fmt"

	"github.com/samirrijal/routeviz/internal/core/ports"
)

// Backend kinds selectable through configuration.
const (
	KindVector = "vector"
	KindRaster = "raster"
)

// Factory builds one provider per renderer. The backend is chosen by Kind,
// never by inspecting a provider at runtime.
type Factory struct {
	Kind    string
	Options Options
}

// NewFactory validates kind and returns a factory for it.
func NewFactory(kind string, opts Options) (*Factory, error) {
	switch kind {
	case KindVector, KindRaster:
	case "":
		kind = KindVector
	default:
		return nil, fmt.Errorf("unknown map provider %q (want %s or %s)", kind, KindVector, KindRaster)
	}
	return &Factory{Kind: kind, Options: opts}, nil
}

// New implements ports.ProviderFactory.
func (f *Factory) New() (ports.MapProvider, error) {
	switch f.Kind {
	case KindVector:
		return NewVector(f.Options), nil
	case KindRaster:
		return NewRaster(f.Options), nil
	default:
		return nil, fmt.Errorf("unknown map provider %q", f.Kind)
	}
}
