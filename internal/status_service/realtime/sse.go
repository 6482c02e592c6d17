package realtime

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

const sseKeepAliveInterval = 15 * time.Second

// sseTransport writes events to an http.ResponseWriter owned by a running
// handler. The handler holds mu before returning so no write outlives it.
type sseTransport struct {
	w      http.ResponseWriter
	rc     *http.ResponseController
	mu     sync.Mutex
	closed atomic.Bool

	deadlinesSupported bool
}

func (t *sseTransport) Name() string { return "sse" }

func (t *sseTransport) Send(ctx context.Context, msg []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed.Load() {
		return errTransportClosed
	}
	return t.writeLocked(ctx, func() error {
		_, err := fmt.Fprintf(t.w, "data: %s\n\n", msg)
		return err
	})
}

func (t *sseTransport) keepAlive(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed.Load() {
		return errTransportClosed
	}
	return t.writeLocked(ctx, func() error {
		_, err := fmt.Fprint(t.w, ": keep-alive\n\n")
		return err
	})
}

func (t *sseTransport) writeLocked(ctx context.Context, write func() error) error {
	if deadline, ok := ctx.Deadline(); ok && t.deadlinesSupported {
		if err := t.rc.SetWriteDeadline(deadline); err != nil {
			t.deadlinesSupported = false
		}
	}
	if err := write(); err != nil {
		return err
	}
	return t.rc.Flush()
}

// Close marks the transport closed without waiting for an in-flight write.
func (t *sseTransport) Close() error {
	t.closed.Store(true)
	return nil
}

// ServeSSE streams broadcasts as Server-Sent Events until the client goes
// away or the hub drops the session.
func (h *Hub) ServeSSE(w http.ResponseWriter, r *http.Request, userID string, kinds []string) {
	if _, ok := w.(http.Flusher); !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	transport := &sseTransport{w: w, rc: http.NewResponseController(w), deadlinesSupported: true}
	if err := transport.rc.Flush(); err != nil {
		h.logger.WarnContext(r.Context(), "SSE initial flush failed", "error", err)
		return
	}

	session := NewSession(transport, userID, kinds)
	h.Connect(session)
	defer func() {
		h.Disconnect(session.ID)
		// w must not be written after return; wait out any send in flight.
		transport.mu.Lock()
		defer transport.mu.Unlock()
		transport.closed.Store(true)
	}()

	ticker := time.NewTicker(sseKeepAliveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(r.Context(), h.sendTimeout)
			err := transport.keepAlive(ctx)
			cancel()
			if err != nil {
				return
			}
		case <-session.Done():
			return
		case <-r.Context().Done():
			// Fires on client disconnect and on server shutdown.
			return
		}
	}
}
