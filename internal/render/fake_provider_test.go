package render_test

import (
	"context"
	"fmt"
	"sync"

	"github.com/samirrijal/routeviz/internal/core/domain"
	"github.com/samirrijal/routeviz/internal/core/ports"
)

type drawnMarker struct {
	at   domain.Coordinate
	opts ports.MarkerOptions
}

type drawnLine struct {
	path []domain.Coordinate
	opts ports.PolylineOptions
}

// fakeProvider is an in-memory MapProvider that records every call.
type fakeProvider struct {
	mu          sync.Mutex
	initErr     error
	initialized bool
	destroyed   bool
	next        int

	markers   map[string]drawnMarker
	polylines map[string]drawnLine
	removed   []string
	bounds    []domain.MapBounds
	padding   []int
	sink      *ports.EventSink

	// afterAddPolyline runs outside the lock after each AddPolyline.
	afterAddPolyline func(count int)
	addedPolylines   int
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		markers:   make(map[string]drawnMarker),
		polylines: make(map[string]drawnLine),
	}
}

func (f *fakeProvider) ready() error {
	if f.destroyed || !f.initialized {
		return domain.ErrNotInitialized
	}
	return nil
}

func (f *fakeProvider) Initialize(_ context.Context, _ ports.ProviderConfig) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.initErr != nil {
		return f.initErr
	}
	f.initialized = true
	return nil
}

func (f *fakeProvider) AddMarker(at domain.Coordinate, opts ports.MarkerOptions) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.ready(); err != nil {
		return "", err
	}
	f.next++
	id := fmt.Sprintf("m%d", f.next)
	f.markers[id] = drawnMarker{at: at, opts: opts}
	return id, nil
}

func (f *fakeProvider) UpdateMarker(id string, at domain.Coordinate, opts ports.MarkerOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.ready(); err != nil {
		return err
	}
	if _, ok := f.markers[id]; ok {
		f.markers[id] = drawnMarker{at: at, opts: opts}
	}
	return nil
}

func (f *fakeProvider) RemoveMarker(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.ready(); err != nil {
		return err
	}
	if _, ok := f.markers[id]; ok {
		delete(f.markers, id)
		f.removed = append(f.removed, id)
	}
	return nil
}

func (f *fakeProvider) AddPolyline(path []domain.Coordinate, opts ports.PolylineOptions) (string, error) {
	f.mu.Lock()
	if err := f.ready(); err != nil {
		f.mu.Unlock()
		return "", err
	}
	f.next++
	id := fmt.Sprintf("p%d", f.next)
	f.polylines[id] = drawnLine{path: path, opts: opts}
	f.addedPolylines++
	n, hook := f.addedPolylines, f.afterAddPolyline
	f.mu.Unlock()

	if hook != nil {
		hook(n)
	}
	return id, nil
}

func (f *fakeProvider) UpdatePolyline(id string, path []domain.Coordinate, opts ports.PolylineOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.ready(); err != nil {
		return err
	}
	if _, ok := f.polylines[id]; ok {
		f.polylines[id] = drawnLine{path: path, opts: opts}
	}
	return nil
}

func (f *fakeProvider) RemovePolyline(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.ready(); err != nil {
		return err
	}
	if _, ok := f.polylines[id]; ok {
		delete(f.polylines, id)
		f.removed = append(f.removed, id)
	}
	return nil
}

func (f *fakeProvider) Clear() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.ready(); err != nil {
		return err
	}
	f.markers = make(map[string]drawnMarker)
	f.polylines = make(map[string]drawnLine)
	return nil
}

func (f *fakeProvider) SetBounds(b domain.MapBounds, paddingPx int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.ready(); err != nil {
		return err
	}
	f.bounds = append(f.bounds, b)
	f.padding = append(f.padding, paddingPx)
	return nil
}

func (f *fakeProvider) SetView(domain.Viewport) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ready()
}

func (f *fakeProvider) View() (domain.Viewport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return domain.Viewport{}, f.ready()
}

func (f *fakeProvider) SetEvents(sink ports.EventSink) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.ready(); err != nil {
		return err
	}
	f.sink = &sink
	return nil
}

func (f *fakeProvider) RemoveEvents() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.ready(); err != nil {
		return err
	}
	f.sink = nil
	return nil
}

func (f *fakeProvider) LoadTile(context.Context, int, int, int) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.ready(); err != nil {
		return nil, err
	}
	return []byte("tile"), nil
}

func (f *fakeProvider) TileState() (domain.TileLoadState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.ready(); err != nil {
		return domain.TileLoadState{}, err
	}
	return domain.TileLoadState{State: domain.TileStable, ActiveSource: "fake"}, nil
}

func (f *fakeProvider) Destroy() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.destroyed = true
}

func (f *fakeProvider) liveIDs() map[string]bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make(map[string]bool, len(f.markers)+len(f.polylines))
	for id := range f.markers {
		ids[id] = true
	}
	for id := range f.polylines {
		ids[id] = true
	}
	return ids
}

type fakeFactory struct {
	p   *fakeProvider
	err error
}

func (f *fakeFactory) New() (ports.MapProvider, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.p, nil
}
