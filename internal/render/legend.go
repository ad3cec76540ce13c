package render

import (
	"errors"
	"sort"

	"github.com/samirrijal/routeviz/internal/core/domain"
)

// buildLegend lists every mode present in a request, skipped segments
// included, highest draw priority first.
func buildLegend(counts map[domain.TransportMode]int, hidden map[domain.TransportMode]bool) []domain.LegendEntry {
	legend := make([]domain.LegendEntry, 0, len(counts))
	for mode, n := range counts {
		st := domain.StyleFor(mode)
		legend = append(legend, domain.LegendEntry{
			Mode:    mode,
			Label:   st.Label,
			Color:   st.Color,
			Count:   n,
			Visible: !hidden[mode],
		})
	}
	sort.Slice(legend, func(i, j int) bool {
		pi := domain.StyleFor(legend[i].Mode).Priority
		pj := domain.StyleFor(legend[j].Mode).Priority
		if pi != pj {
			return pi > pj
		}
		return legend[i].Mode < legend[j].Mode
	})
	return legend
}

// Legend returns the legend of routeID's scene.
func (r *Renderer) Legend(routeID string) ([]domain.LegendEntry, bool) {
	if r.destroyed.Load() {
		return nil, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.scenes[routeID]
	if !ok {
		return nil, false
	}
	return append([]domain.LegendEntry{}, s.Legend...), true
}

// ToggleVisibility flips mode between shown and hidden across every scene
// of this renderer and reports the new visibility.
func (r *Renderer) ToggleVisibility(mode domain.TransportMode) (bool, error) {
	r.mu.Lock()
	visible := r.hidden[mode]
	r.mu.Unlock()
	return visible, r.SetVisibility(mode, visible)
}

// SetVisibility shows or hides every polyline of mode. Paths come from
// the last render, so nothing is synthesized again.
func (r *Renderer) SetVisibility(mode domain.TransportMode, visible bool) error {
	if r.destroyed.Load() {
		return nil
	}
	p := r.currentProvider()
	if p == nil {
		return domain.ErrNotInitialized
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if visible {
		delete(r.hidden, mode)
	} else {
		r.hidden[mode] = true
	}

	for routeID, s := range r.scenes {
		for i := range s.Polylines {
			line := &s.Polylines[i]
			if line.Mode != mode || line.Visible == visible {
				continue
			}

			if !visible {
				if err := p.RemovePolyline(line.ID); err != nil {
					return r.visibilityErr(err)
				}
				s.Handle.PolylineIDs = removeID(s.Handle.PolylineIDs, line.ID)
				line.ID = ""
				line.Visible = false
				continue
			}

			var seg domain.RouteSegmentVisual
			if segs := r.segments[routeID]; line.Seq < len(segs) {
				seg = segs[line.Seq]
			}
			id, err := p.AddPolyline(line.Path, polylineOptions(seg, line.Style))
			if err != nil {
				if errors.Is(err, domain.ErrNotInitialized) {
					return r.visibilityErr(err)
				}
				r.logger.Warn("polyline rejected by provider", "route_id", routeID, "segment_id", line.SegmentID, "error", err)
				continue
			}
			line.ID = id
			line.Visible = true
			s.Handle.PolylineIDs = append(s.Handle.PolylineIDs, id)
		}

		for i := range s.Legend {
			if s.Legend[i].Mode == mode {
				s.Legend[i].Visible = visible
			}
		}
	}

	r.logger.Debug("mode visibility changed", "mode", mode, "visible", visible)
	return nil
}

// Hidden reports whether mode is currently hidden.
func (r *Renderer) Hidden(mode domain.TransportMode) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.hidden[mode]
}

func (r *Renderer) visibilityErr(err error) error {
	if r.destroyed.Load() {
		return nil
	}
	return err
}

func removeID(ids []string, id string) []string {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
