package realtime

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	wsCloseGrace   = time.Second
	wsMaxReadBytes = 4096
)

// wsTransport writes frames to a gorilla connection. Writes are serialized;
// Close may run concurrently with a write and unblocks it.
type wsTransport struct {
	conn   *websocket.Conn
	mu     sync.Mutex
	closed bool
	once   sync.Once
}

func NewWebSocketTransport(conn *websocket.Conn) Transport {
	return &wsTransport{conn: conn}
}

func (t *wsTransport) Name() string { return "websocket" }

func (t *wsTransport) Send(ctx context.Context, msg []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return errTransportClosed
	}
	if deadline, ok := ctx.Deadline(); ok {
		if err := t.conn.SetWriteDeadline(deadline); err != nil {
			return err
		}
	}
	return t.conn.WriteMessage(websocket.TextMessage, msg)
}

func (t *wsTransport) ping(deadline time.Time) error {
	return t.conn.WriteControl(websocket.PingMessage, nil, deadline)
}

func (t *wsTransport) Close() error {
	var err error
	t.once.Do(func() {
		// WriteControl and Close are safe alongside a blocked WriteMessage.
		_ = t.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(wsCloseGrace))
		err = t.conn.Close()
		t.mu.Lock()
		t.closed = true
		t.mu.Unlock()
	})
	return err
}

// WebSocketOptions configures ServeWebSocket.
type WebSocketOptions struct {
	// AllowedOrigins lists accepted Origin headers. Empty means same-host only.
	AllowedOrigins []string
	PingInterval   time.Duration
}

// NewUpgrader builds a gorilla upgrader that enforces AllowedOrigins.
func NewUpgrader(opts WebSocketOptions) *websocket.Upgrader {
	allowed := make(map[string]struct{}, len(opts.AllowedOrigins))
	for _, o := range opts.AllowedOrigins {
		allowed[o] = struct{}{}
	}
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			if _, ok := allowed["*"]; ok {
				return true
			}
			if _, ok := allowed[origin]; ok {
				return true
			}
			// Fall back to gorilla's same-host check.
			return len(allowed) == 0 && sameHost(r)
		},
	}
}

// ServeWebSocket upgrades the request, registers a session and blocks until
// the client goes away or the hub drops the session. Inbound frames are read
// and discarded.
func (h *Hub) ServeWebSocket(w http.ResponseWriter, r *http.Request, upgrader *websocket.Upgrader, opts WebSocketOptions, userID string, kinds []string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		h.logger.WarnContext(r.Context(), "WebSocket upgrade failed", "error", err)
		return
	}

	transport := &wsTransport{conn: conn}
	session := NewSession(transport, userID, kinds)
	h.Connect(session)
	defer h.Disconnect(session.ID)

	pingInterval := opts.PingInterval
	if pingInterval <= 0 {
		pingInterval = 30 * time.Second
	}
	readWait := 2 * pingInterval
	conn.SetReadLimit(wsMaxReadBytes)
	_ = conn.SetReadDeadline(time.Now().Add(readWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readWait))
	})

	readErr := make(chan error, 1)
	go func() {
		for {
			if _, _, err := conn.NextReader(); err != nil {
				readErr <- err
				return
			}
		}
	}()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case err := <-readErr:
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.DebugContext(r.Context(), "WebSocket read ended", "session_id", session.ID, "error", err)
			}
			return
		case <-ticker.C:
			if err := transport.ping(time.Now().Add(h.sendTimeout)); err != nil {
				h.logger.DebugContext(r.Context(), "WebSocket ping failed", "session_id", session.ID, "error", err)
				return
			}
		case <-session.Done():
			return
		case <-r.Context().Done():
			return
		}
	}
}

func sameHost(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	for _, scheme := range []string{"http://", "https://"} {
		if origin == scheme+r.Host {
			return true
		}
	}
	return false
}
