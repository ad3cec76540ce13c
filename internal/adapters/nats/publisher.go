package natsadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/samirrijal/routeviz/internal/core/domain"
)

// Subject prefixes; the route id token follows.
const (
	SubjectScene    = "routeviz.scene."
	SubjectMap      = "routeviz.map."
	SubjectTiles    = "routeviz.tiles."
	SubjectRequests = "routeviz.requests."
)

// Event is the envelope of every published message.
type Event struct {
	Type    string    `json:"type"`
	RouteID string    `json:"route_id"`
	Time    time.Time `json:"time"`
	Data    any       `json:"data"`
}

// SceneSummary is the payload of a scene.rendered event.
type SceneSummary struct {
	Polylines int                  `json:"polylines"`
	Markers   int                  `json:"markers"`
	NoData    bool                 `json:"no_data"`
	Skipped   []string             `json:"skipped_segments,omitempty"`
	Warnings  []string             `json:"warnings,omitempty"`
	Legend    []domain.LegendEntry `json:"legend"`
	Bounds    *domain.MapBounds    `json:"bounds,omitempty"`
}

// Token makes a route id safe to use as one subject token.
func Token(routeID string) string {
	if routeID == "" {
		return "_"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\r', '\n':
			return '_'
		}
		return r
	}, routeID)
}

// Publisher implements ports.EventPublisher using NATS JetStream.
type Publisher struct {
	conn *nats.Conn
	js   nats.JetStreamContext
}

// NewPublisher connects to NATS and enables JetStream.
func NewPublisher(url string) (*Publisher, error) {
	conn, err := RawConn(url)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := conn.JetStream()
	if err != nil {
		return nil, fmt.Errorf("jetstream: %w", err)
	}

	// Ensure streams exist
	streams := []nats.StreamConfig{
		{
			Name:      "ROUTEVIZ_SCENES",
			Subjects:  []string{SubjectScene + ">"},
			Retention: nats.LimitsPolicy,
			MaxAge:    24 * time.Hour,
			Storage:   nats.FileStorage,
		},
		{
			Name:      "ROUTEVIZ_TILES",
			Subjects:  []string{SubjectTiles + ">"},
			Retention: nats.LimitsPolicy,
			MaxAge:    24 * time.Hour,
			Storage:   nats.FileStorage,
		},
		{
			Name:      "ROUTEVIZ_REQUESTS",
			Subjects:  []string{SubjectRequests + ">"},
			Retention: nats.WorkQueuePolicy,
			MaxAge:    1 * time.Hour,
			Storage:   nats.FileStorage,
		},
	}

	for _, cfg := range streams {
		if _, err := js.AddStream(&cfg); err != nil {
			// Stream may already exist: try update
			if _, err := js.UpdateStream(&cfg); err != nil {
				return nil, fmt.Errorf("ensure stream %s: %w", cfg.Name, err)
			}
		}
	}

	return &Publisher{conn: conn, js: js}, nil
}

func (p *Publisher) PublishSceneRendered(ctx context.Context, scene *domain.RenderedScene) error {
	data, err := json.Marshal(Event{
		Type:    "scene.rendered",
		RouteID: scene.RouteID,
		Time:    scene.RenderedAt,
		Data: SceneSummary{
			Polylines: len(scene.Handle.PolylineIDs),
			Markers:   len(scene.Handle.MarkerIDs),
			NoData:    scene.NoData,
			Skipped:   scene.Skipped,
			Warnings:  scene.Warnings,
			Legend:    scene.Legend,
			Bounds:    scene.Bounds,
		},
	})
	if err != nil {
		return err
	}
	_, err = p.js.Publish(SubjectScene+Token(scene.RouteID), data, nats.Context(ctx))
	return err
}

// PublishMapEvent sends interactions on core NATS: they are only useful
// to listeners that are connected right now.
func (p *Publisher) PublishMapEvent(ctx context.Context, routeID string, event domain.MapEvent) error {
	data, err := json.Marshal(Event{Type: "map." + string(event.Kind), RouteID: routeID, Time: event.Time, Data: event})
	if err != nil {
		return err
	}
	return p.conn.Publish(SubjectMap+Token(routeID), data)
}

func (p *Publisher) PublishTileState(ctx context.Context, routeID string, state domain.TileLoadState) error {
	data, err := json.Marshal(Event{Type: "tiles." + string(state.State), RouteID: routeID, Time: time.Now(), Data: state})
	if err != nil {
		return err
	}
	_, err = p.js.Publish(SubjectTiles+Token(routeID), data, nats.Context(ctx))
	return err
}

// PublishRenderRequest queues a render for the subscriber side.
func (p *Publisher) PublishRenderRequest(ctx context.Context, req *RenderRequest) error {
	data, err := json.Marshal(req)
	if err != nil {
		return err
	}
	_, err = p.js.Publish(SubjectRequests+Token(req.RouteID), data, nats.Context(ctx))
	return err
}

// Conn returns the underlying connection, e.g. for the websocket relay.
func (p *Publisher) Conn() *nats.Conn {
	return p.conn
}

// Close drains and closes the connection.
func (p *Publisher) Close() {
	_ = p.conn.Drain()
}

// RawConn creates a plain NATS connection for subscribing (e.g. WebSocket relay).
func RawConn(url string) (*nats.Conn, error) {
	return nats.Connect(url,
		nats.Name("routeviz"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
}
