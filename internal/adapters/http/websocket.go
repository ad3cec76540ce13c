package http

import (
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/nats-io/nats.go"

	natsadapter "github.com/samirrijal/routeviz/internal/adapters/nats"
	"github.com/samirrijal/routeviz/internal/pkg/metrics"
)

// relayRequest is sent by a client to follow or drop an event channel.
// An empty route_id follows every route; the channel defaults to "scene".
type relayRequest struct {
	Action  string `json:"action"` // subscribe | unsubscribe
	RouteID string `json:"route_id"`
	Channel string `json:"channel"` // scene | map | tiles
}

// relayReply acknowledges a relayRequest.
type relayReply struct {
	Status  string `json:"status,omitempty"`
	Subject string `json:"subject,omitempty"`
	Error   string `json:"error,omitempty"`
}

// relaySubject maps a channel and route filter onto a NATS subject.
func relaySubject(channel, routeID string) (string, bool) {
	var prefix string
	switch channel {
	case "", "scene":
		prefix = natsadapter.SubjectScene
	case "map":
		prefix = natsadapter.SubjectMap
	case "tiles":
		prefix = natsadapter.SubjectTiles
	default:
		return "", false
	}
	if routeID == "" {
		return prefix + ">", true
	}
	return prefix + natsadapter.Token(routeID), true
}

// relayClient is one websocket following NATS subjects.
type relayClient struct {
	conn   *websocket.Conn
	nc     *nats.Conn
	logger *slog.Logger

	wmu  sync.Mutex
	subs map[string]*nats.Subscription
}

func (r *relayClient) write(messageType int, data []byte) error {
	r.wmu.Lock()
	defer r.wmu.Unlock()
	return r.conn.WriteMessage(messageType, data)
}

func (r *relayClient) reply(v relayReply) {
	data, _ := json.Marshal(v)
	_ = r.write(websocket.TextMessage, data)
}

func (r *relayClient) forward(msg *nats.Msg) {
	_ = r.write(websocket.TextMessage, msg.Data)
}

func (r *relayClient) handle(raw []byte) {
	var req relayRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		r.reply(relayReply{Error: "invalid JSON"})
		return
	}
	subject, ok := relaySubject(strings.ToLower(req.Channel), req.RouteID)
	if !ok {
		r.reply(relayReply{Error: "unknown channel: " + req.Channel})
		return
	}

	switch req.Action {
	case "subscribe":
		if _, exists := r.subs[subject]; exists {
			r.reply(relayReply{Status: "already subscribed", Subject: subject})
			return
		}
		sub, err := r.nc.Subscribe(subject, r.forward)
		if err != nil {
			r.reply(relayReply{Error: "subscribe failed: " + err.Error()})
			return
		}
		r.subs[subject] = sub
		r.logger.Debug("relay subscribed", "subject", subject)
		r.reply(relayReply{Status: "subscribed", Subject: subject})
	case "unsubscribe":
		sub, exists := r.subs[subject]
		if !exists {
			r.reply(relayReply{Error: "not subscribed to " + subject})
			return
		}
		_ = sub.Unsubscribe()
		delete(r.subs, subject)
		r.reply(relayReply{Status: "unsubscribed", Subject: subject})
	default:
		r.reply(relayReply{Error: "unknown action: " + req.Action})
	}
}

func (r *relayClient) keepAlive(interval time.Duration, done <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := r.write(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

func (r *relayClient) close() {
	for _, sub := range r.subs {
		_ = sub.Unsubscribe()
	}
}

// WebSocketHandler relays scene, map-interaction and tile-state events
// from NATS to websocket clients.
// Clients send JSON: {"action":"subscribe","route_id":"r1","channel":"tiles"}
func WebSocketHandler(deps *Dependencies) func(*websocket.Conn) {
	ping := deps.SurfacePing
	if ping <= 0 {
		ping = 30 * time.Second
	}

	return func(c *websocket.Conn) {
		defer c.Close()

		logger := slog.Default().With("remote_addr", c.RemoteAddr().String())
		if deps.NATS == nil {
			_ = c.WriteMessage(websocket.TextMessage, []byte(`{"error":"event relay not configured"}`))
			return
		}

		client := &relayClient{conn: c, nc: deps.NATS, logger: logger, subs: make(map[string]*nats.Subscription)}
		logger.Info("ws client connected")
		metrics.ActiveWebSockets.Inc()
		defer metrics.ActiveWebSockets.Dec()

		done := make(chan struct{})
		go client.keepAlive(ping, done)

		for {
			_, msg, err := c.ReadMessage()
			if err != nil {
				break
			}
			client.handle(msg)
		}

		close(done)
		logger.Info("ws client disconnected", "subscriptions", len(client.subs))
		client.close()
	}
}
