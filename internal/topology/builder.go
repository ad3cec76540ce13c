// Package topology classifies the stops of an ordered segment chain into
// start, transfer, end and warning markers.
package topology

import (
	"fmt"

	"github.com/samirrijal/routeviz/internal/core/domain"
)

// Result is the classified stop list of a route.
type Result struct {
	Markers []domain.Marker
	// Owners[i] is the index in the input of the segment that produced
	// Markers[i]. Segment ids may be blank or repeated; indexes are not.
	Owners []int
	// Gaps lists one error per adjacency whose stop ids do not match.
	// Each wraps domain.ErrDisconnectedTopology.
	Gaps []error
}

// Build walks segments in order. Stop identity is the only topology signal:
// a transfer exists where segment[i].From.ID equals segment[i-1].To.ID.
// When they differ, both loose ends are emitted once as warning markers.
// Every stop id appears at most once in the output.
func Build(segments []domain.RouteSegmentVisual) Result {
	var res Result
	if len(segments) == 0 {
		return res
	}

	seen := make(map[string]bool, len(segments)+1)
	emit := func(stop domain.Stop, role domain.MarkerRole, owner int, note string) {
		if seen[stop.ID] {
			return
		}
		seen[stop.ID] = true
		res.Markers = append(res.Markers, domain.Marker{
			Stop:       stop,
			Role:       role,
			SegmentID:  segments[owner].ID,
			Annotation: note,
		})
		res.Owners = append(res.Owners, owner)
	}

	emit(segments[0].From, domain.RoleStart, 0, "")

	for i := 1; i < len(segments); i++ {
		prev, cur := segments[i-1], segments[i]
		if cur.From.ID == prev.To.ID {
			emit(cur.From, domain.RoleTransfer, i, "")
			continue
		}

		gap := fmt.Errorf("%w: segment %q ends at %q but segment %q starts at %q",
			domain.ErrDisconnectedTopology, prev.ID, prev.To.ID, cur.ID, cur.From.ID)
		res.Gaps = append(res.Gaps, gap)
		emit(prev.To, domain.RoleWarning, i-1, "disconnected: next segment starts at "+cur.From.ID)
		emit(cur.From, domain.RoleWarning, i, "disconnected: previous segment ends at "+prev.To.ID)
	}

	last := len(segments) - 1
	emit(segments[last].To, domain.RoleEnd, last, "")

	return res
}

// Count returns how many markers have the given role.
func (r Result) Count(role domain.MarkerRole) int {
	n := 0
	for _, m := range r.Markers {
		if m.Role == role {
			n++
		}
	}
	return n
}
