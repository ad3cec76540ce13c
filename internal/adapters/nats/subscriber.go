package natsadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"

	"github.com/samirrijal/routeviz/internal/core/domain"
)

// RenderRequest is a queued render, published by the route builder once
// a route's segments are resolved.
type RenderRequest struct {
	domain.RouteVisualizationRequest
	SurfaceID string `json:"surface_id,omitempty"`
}

// Subscriber consumes queued render requests from JetStream.
type Subscriber struct {
	conn   *nats.Conn
	js     nats.JetStreamContext
	subs   []*nats.Subscription
	logger *slog.Logger
}

// NewSubscriber creates a subscriber with its own NATS connection.
func NewSubscriber(url string, logger *slog.Logger) (*Subscriber, error) {
	conn, err := RawConn(url)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	js, err := conn.JetStream()
	if err != nil {
		return nil, fmt.Errorf("jetstream: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Subscriber{conn: conn, js: js, logger: logger}, nil
}

// SubscribeRenderRequests delivers every queued request to handler. A
// message is acked once handler succeeds; malformed messages are
// terminated, failures are redelivered up to three times.
func (s *Subscriber) SubscribeRenderRequests(ctx context.Context, handler func(ctx context.Context, req *RenderRequest) error) error {
	sub, err := s.js.Subscribe(SubjectRequests+">", func(msg *nats.Msg) {
		var req RenderRequest
		if err := json.Unmarshal(msg.Data, &req); err != nil || req.RouteID == "" {
			s.logger.Warn("dropping malformed render request", "subject", msg.Subject, "error", err)
			_ = msg.Term()
			return
		}
		if err := handler(ctx, &req); err != nil {
			s.logger.Warn("render request failed", "route_id", req.RouteID, "error", err)
			_ = msg.Nak()
			return
		}
		_ = msg.Ack()
	},
		nats.Durable("scene-renderer"),
		nats.ManualAck(),
		nats.MaxDeliver(3),
	)
	if err != nil {
		return err
	}
	s.subs = append(s.subs, sub)
	return nil
}

// Close unsubscribes and drains.
func (s *Subscriber) Close() {
	for _, sub := range s.subs {
		_ = sub.Unsubscribe()
	}
	_ = s.conn.Drain()
}
