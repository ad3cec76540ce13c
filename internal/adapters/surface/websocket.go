package surface

import (
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"

	"github.com/samirrijal/routeviz/internal/core/ports"
)

// Conn is the part of a websocket connection a Socket needs.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	ReadMessage() (messageType int, p []byte, err error)
}

// clientMessage is sent by the browser map.
// {"type":"input","input":{"kind":"marker_click","target_id":"..."}}
// {"type":"resize","width":1280,"height":720}
type clientMessage struct {
	Type   string              `json:"type"`
	Input  *ports.SurfaceInput `json:"input,omitempty"`
	Width  int                 `json:"width,omitempty"`
	Height int                 `json:"height,omitempty"`
}

var errSocketClosed = errors.New("surface socket closed")

// Socket bridges a browser map over a websocket. Commands are written as
// JSON text frames; interactions arrive the same way.
type Socket struct {
	id     string
	conn   Conn
	logger *slog.Logger

	writeMu sync.Mutex

	mu        sync.Mutex
	width     int
	height    int
	closed    bool
	listeners map[int]func(ports.SurfaceInput)
	nextID    int
}

func NewSocket(id string, conn Conn, width, height int, logger *slog.Logger) *Socket {
	if width <= 0 {
		width = defaultWidth
	}
	if height <= 0 {
		height = defaultHeight
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Socket{
		id:        id,
		conn:      conn,
		width:     width,
		height:    height,
		logger:    logger.With("surface_id", id),
		listeners: make(map[int]func(ports.SurfaceInput)),
	}
}

func (s *Socket) ID() string { return s.id }

func (s *Socket) Size() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.width, s.height
}

func (s *Socket) Apply(cmd ports.SurfaceCommand) error {
	data, err := json.Marshal(cmd)
	if err != nil {
		return err
	}
	return s.write(websocket.TextMessage, data)
}

func (s *Socket) InvalidateSize() {
	if err := s.Apply(ports.SurfaceCommand{Op: "invalidate_size"}); err != nil {
		s.logger.Debug("invalidate size failed", "error", err)
	}
}

func (s *Socket) OnInput(fn func(ports.SurfaceInput)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// Serve reads client messages until the connection fails and keeps it
// alive with pings every interval. It marks the socket closed on return.
func (s *Socket) Serve(pingInterval time.Duration) {
	done := make(chan struct{})
	defer func() {
		close(done)
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
	}()

	if pingInterval > 0 {
		go func() {
			ticker := time.NewTicker(pingInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					if err := s.write(websocket.PingMessage, nil); err != nil {
						return
					}
				case <-done:
					return
				}
			}
		}()
	}

	for {
		_, msg, err := s.conn.ReadMessage()
		if err != nil {
			return
		}
		s.handle(msg)
	}
}

func (s *Socket) handle(msg []byte) {
	var m clientMessage
	if err := json.Unmarshal(msg, &m); err != nil {
		_ = s.Apply(ports.SurfaceCommand{Op: "error", Payload: "invalid JSON"})
		return
	}

	switch m.Type {
	case "input":
		if m.Input == nil {
			return
		}
		s.dispatch(*m.Input)
	case "resize":
		if m.Width > 0 && m.Height > 0 {
			s.mu.Lock()
			s.width, s.height = m.Width, m.Height
			s.mu.Unlock()
		}
	default:
		_ = s.Apply(ports.SurfaceCommand{Op: "error", Payload: "unknown message type: " + m.Type})
	}
}

func (s *Socket) dispatch(in ports.SurfaceInput) {
	s.mu.Lock()
	fns := make([]func(ports.SurfaceInput), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(in)
	}
}

func (s *Socket) write(messageType int, data []byte) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return errSocketClosed
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteMessage(messageType, data)
}
