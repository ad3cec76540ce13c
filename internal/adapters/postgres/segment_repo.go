package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/samirrijal/routeviz/internal/core/domain"
)

// SegmentRepo implements ports.SegmentSource over the route_segments table.
// Stops, paths and metadata are stored as JSONB so the row mirrors
// domain.RouteSegmentVisual.
type SegmentRepo struct {
	db *DB
}

func NewSegmentRepo(db *DB) *SegmentRepo { return &SegmentRepo{db: db} }

// ListByRoute returns the route's segments in travel order. A route
// with no rows yields an empty slice and no error.
func (r *SegmentRepo) ListByRoute(ctx context.Context, routeID string) ([]domain.RouteSegmentVisual, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT segment_id, mode, from_stop, to_stop, path, via_hubs, metadata
		FROM route_segments WHERE route_id = $1 ORDER BY seq
	`, routeID)
	if err != nil {
		return nil, fmt.Errorf("query segments: %w", err)
	}
	defer rows.Close()

	var segments []domain.RouteSegmentVisual
	for rows.Next() {
		var (
			seg                            domain.RouteSegmentVisual
			mode                           string
			from, to, path, hubs, metadata []byte
		)
		if err := rows.Scan(&seg.ID, &mode, &from, &to, &path, &hubs, &metadata); err != nil {
			return nil, err
		}
		seg.Mode = domain.TransportMode(mode)
		if err := decodeColumns(
			column{"from_stop", from, &seg.From},
			column{"to_stop", to, &seg.To},
			column{"path", path, &seg.Path},
			column{"via_hubs", hubs, &seg.ViaHubs},
			column{"metadata", metadata, &seg.Metadata},
		); err != nil {
			return nil, fmt.Errorf("segment %s: %w", seg.ID, err)
		}
		segments = append(segments, seg)
	}
	return segments, rows.Err()
}

// ReplaceRoute stores the route's segments, replacing any previous ones,
// in a single transaction.
func (r *SegmentRepo) ReplaceRoute(ctx context.Context, routeID string, segments []domain.RouteSegmentVisual) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, `DELETE FROM route_segments WHERE route_id = $1`, routeID); err != nil {
		return fmt.Errorf("delete segments: %w", err)
	}

	batch := &pgx.Batch{}
	for i, seg := range segments {
		from, _ := json.Marshal(seg.From)
		to, _ := json.Marshal(seg.To)
		path, _ := json.Marshal(seg.Path)
		hubs, _ := json.Marshal(seg.ViaHubs)
		metadata, _ := json.Marshal(seg.Metadata)
		batch.Queue(`
			INSERT INTO route_segments (route_id, seq, segment_id, mode, from_stop, to_stop, path, via_hubs, metadata)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`, routeID, i, seg.ID, string(seg.Mode), from, to, path, hubs, metadata)
	}
	br := tx.SendBatch(ctx, batch)
	for range segments {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return fmt.Errorf("batch exec: %w", err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("batch close: %w", err)
	}

	return tx.Commit(ctx)
}

type column struct {
	name string
	raw  []byte
	dst  any
}

func decodeColumns(cols ...column) error {
	for _, c := range cols {
		if len(c.raw) == 0 || string(c.raw) == "null" {
			continue
		}
		if err := json.Unmarshal(c.raw, c.dst); err != nil {
			return fmt.Errorf("decode %s: %w", c.name, err)
		}
	}
	return nil
}
