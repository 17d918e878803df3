package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/clyfe/systems-toolbox/channel"
	"github.com/clyfe/systems-toolbox/component"
	"github.com/clyfe/systems-toolbox/errors"
	"github.com/clyfe/systems-toolbox/metric"
)

// WebSocketStreamerDeps holds runtime dependencies for the firehose
// WebSocket streamer.
type WebSocketStreamerDeps struct {
	Name            string // Instance name; also the inner component ID
	Addr            string // HTTP listen address, e.g. ":8081"
	Path            string // WebSocket endpoint path, defaults to /firehose
	Logger          *slog.Logger
	MetricsRegistry *metric.MetricsRegistry
}

// WebSocketStreamer serves the firehose stream to WebSocket clients as
// JSON frames. Slow clients are disconnected rather than allowed to
// back-pressure the stream.
type WebSocketStreamer struct {
	name   string
	addr   string
	path   string
	logger *slog.Logger

	cmp *component.Component

	upgrader  websocket.Upgrader
	clients   map[*websocket.Conn]struct{}
	clientsMu sync.RWMutex

	server    *http.Server
	running   atomic.Bool
	startTime time.Time

	framesSent     atomic.Int64
	clientsDropped atomic.Int64
}

const writeDeadline = 2 * time.Second

// NewWebSocketStreamer creates the streamer and its inner component.
func NewWebSocketStreamer(deps WebSocketStreamerDeps) (*WebSocketStreamer, error) {
	name := deps.Name
	if name == "" {
		name = "firehose-ws-streamer"
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default().With("component", name)
	}

	path := deps.Path
	if path == "" {
		path = "/firehose"
	}

	s := &WebSocketStreamer{
		name:   name,
		addr:   deps.Addr,
		path:   path,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		clients: make(map[*websocket.Conn]struct{}),
	}

	opts := component.DefaultOptions()
	opts.InChan = channel.Fixed(64)
	opts.MsgsOnFirehose = false
	opts.SnapshotsOnFirehose = false

	cmp, err := component.New(component.Deps{
		ID:              name,
		AllMsgsHandler:  s.broadcast,
		Opts:            opts,
		Logger:          logger,
		MetricsRegistry: deps.MetricsRegistry,
	})
	if err != nil {
		return nil, errors.Wrap(err, "WebSocketStreamer", "New", "inner component construction")
	}
	s.cmp = cmp

	return s, nil
}

// Component exposes the inner component for switchboard wiring.
func (s *WebSocketStreamer) Component() *component.Component {
	return s.cmp
}

// FramesSent returns the number of frames delivered to clients.
func (s *WebSocketStreamer) FramesSent() int64 {
	return s.framesSent.Load()
}

// broadcast sends one firehose envelope to every connected client.
func (s *WebSocketStreamer) broadcast(ctx *component.Context) {
	if !ctx.Type.IsFirehose() {
		return
	}

	data, err := json.Marshal(ctx.Msg)
	if err != nil {
		s.logger.Error("Failed to marshal firehose frame", "error", err)
		return
	}

	s.clientsMu.RLock()
	conns := make([]*websocket.Conn, 0, len(s.clients))
	for conn := range s.clients {
		conns = append(conns, conn)
	}
	s.clientsMu.RUnlock()

	for _, conn := range conns {
		_ = conn.SetWriteDeadline(time.Now().Add(writeDeadline))
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			// Slow or gone; drop the client rather than stall the stream
			s.removeClient(conn)
			s.clientsDropped.Add(1)
			continue
		}
		s.framesSent.Add(1)
	}
}

// handleWS upgrades one HTTP request and registers the client.
func (s *WebSocketStreamer) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("WebSocket upgrade failed", "error", err, "remote", r.RemoteAddr)
		return
	}

	s.clientsMu.Lock()
	s.clients[conn] = struct{}{}
	s.clientsMu.Unlock()

	s.logger.Info("Firehose client connected", "remote", r.RemoteAddr)

	// Read loop exists only to observe close; inbound frames are discarded
	go func() {
		defer s.removeClient(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (s *WebSocketStreamer) removeClient(conn *websocket.Conn) {
	s.clientsMu.Lock()
	if _, ok := s.clients[conn]; ok {
		delete(s.clients, conn)
		_ = conn.Close()
	}
	s.clientsMu.Unlock()
}

// Initialize validates the streamer configuration.
func (s *WebSocketStreamer) Initialize() error {
	if s.addr == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "WebSocketStreamer", "Initialize",
			"listen address validation")
	}
	return nil
}

// Start begins serving the firehose stream. Non-blocking; the HTTP server
// runs in a background goroutine.
func (s *WebSocketStreamer) Start(_ context.Context) error {
	if s.running.Load() {
		return nil // Already running, idempotent
	}

	mux := http.NewServeMux()
	mux.HandleFunc(s.path, s.handleWS)
	s.server = &http.Server{Addr: s.addr, Handler: mux}

	s.running.Store(true)
	s.startTime = time.Now()
	s.cmp.SystemReady()

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("Firehose WebSocket server failed", "error", err)
			s.running.Store(false)
		}
	}()

	s.logger.Info("Firehose WebSocket streamer started", "addr", s.addr, "path", s.path)
	return nil
}

// Stop disconnects clients and shuts the server and inner component down.
func (s *WebSocketStreamer) Stop(timeout time.Duration) error {
	if !s.running.Load() {
		return nil
	}
	s.running.Store(false)

	s.cmp.Shutdown()

	s.clientsMu.Lock()
	for conn := range s.clients {
		_ = conn.Close()
	}
	s.clients = make(map[*websocket.Conn]struct{})
	s.clientsMu.Unlock()

	if s.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := s.server.Shutdown(ctx); err != nil {
			return errors.WrapTransient(fmt.Errorf("shutdown: %w", err),
				"WebSocketStreamer", "Stop", "graceful shutdown")
		}
	}

	return nil
}
