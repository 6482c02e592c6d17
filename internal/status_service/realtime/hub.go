// Package realtime fans committed status updates out to connected dashboard
// clients over WebSocket or Server-Sent Events.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/YahyawiAF/co-admin-system-sub001/internal/platform/eventbus"
	"github.com/YahyawiAF/co-admin-system-sub001/internal/status_service/domain"
)

const DefaultSendTimeout = 2 * time.Second

// Envelope is the wire frame every client receives.
type Envelope struct {
	Type   string    `json:"type"`
	Data   any       `json:"data"`
	SentAt time.Time `json:"sent_at"`
}

// BroadcastResult counts per-session outcomes of one broadcast.
type BroadcastResult struct {
	Delivered int
	Failed    int
	Skipped   int
}

type Options struct {
	// SendTimeout bounds each per-session send.
	SendTimeout time.Duration
}

// Hub is the registry of connected sessions.
type Hub struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*Session

	sendTimeout time.Duration
	logger      *slog.Logger
	now         func() time.Time
}

func NewHub(opts Options, logger *slog.Logger) *Hub {
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = DefaultSendTimeout
	}
	return &Hub{
		sessions:    make(map[uuid.UUID]*Session),
		sendTimeout: opts.SendTimeout,
		logger:      logger.With("component", "realtime_hub"),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Connect registers a session. Safe to call while broadcasts are running;
// the session receives broadcasts that snapshot the registry after this.
func (h *Hub) Connect(s *Session) {
	h.mu.Lock()
	h.sessions[s.ID] = s
	n := len(h.sessions)
	h.mu.Unlock()

	activeSessionsGauge.WithLabelValues(transportName(s.transport)).Inc()
	h.logger.Info("Realtime session connected", "session_id", s.ID, "user_id", s.UserID, "sessions", n)
}

// Disconnect removes and closes the session. It reports whether the session
// was registered; calling it again is a no-op.
func (h *Hub) Disconnect(id uuid.UUID) bool {
	h.mu.Lock()
	s, ok := h.sessions[id]
	if ok {
		delete(h.sessions, id)
	}
	h.mu.Unlock()
	if !ok {
		return false
	}

	activeSessionsGauge.WithLabelValues(transportName(s.transport)).Dec()
	if err := s.close(); err != nil {
		h.logger.Debug("Error closing realtime transport", "session_id", id, "error", err)
	}
	h.logger.Info("Realtime session disconnected", "session_id", id, "user_id", s.UserID)
	return true
}

// Len returns the number of connected sessions.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// Broadcast serializes payload once and sends it to every session whose
// filter accepts kind. Sends run concurrently, each bounded by the send
// timeout. A session whose send fails is disconnected; the others are
// unaffected. Broadcast returns once every send has finished or timed out.
func (h *Hub) Broadcast(ctx context.Context, kind string, payload any) (BroadcastResult, error) {
	start := time.Now()
	defer func() {
		broadcastDurationHist.WithLabelValues(kind).Observe(time.Since(start).Seconds())
	}()

	msg, err := json.Marshal(Envelope{Type: kind, Data: payload, SentAt: h.now()})
	if err != nil {
		return BroadcastResult{}, fmt.Errorf("marshal %s broadcast: %w", kind, err)
	}

	h.mu.RLock()
	targets := make([]*Session, 0, len(h.sessions))
	skipped := 0
	for _, s := range h.sessions {
		if s.Accepts(kind) {
			targets = append(targets, s)
		} else {
			skipped++
		}
	}
	h.mu.RUnlock()

	result := BroadcastResult{Skipped: skipped}
	if len(targets) == 0 {
		return result, nil
	}

	errs := make([]error, len(targets))
	var wg sync.WaitGroup
	for i, s := range targets {
		wg.Add(1)
		go func(i int, s *Session) {
			defer wg.Done()
			errs[i] = h.send(ctx, s, msg)
		}(i, s)
	}
	wg.Wait()

	for i, err := range errs {
		s := targets[i]
		if err == nil {
			result.Delivered++
			messagesSentCounter.WithLabelValues(kind, "delivered").Inc()
			continue
		}
		result.Failed++
		messagesSentCounter.WithLabelValues(kind, "failed").Inc()
		h.logger.WarnContext(ctx, "Realtime delivery failed, dropping session",
			"error", err, "session_id", s.ID, "user_id", s.UserID, "kind", kind)
		h.Disconnect(s.ID)
	}
	return result, nil
}

// send runs the transport send under the per-session timeout and stops
// waiting once the timeout passes even if the transport does not.
func (h *Hub) send(ctx context.Context, s *Session, msg []byte) error {
	sendCtx, cancel := context.WithTimeout(ctx, h.sendTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- s.transport.Send(sendCtx, msg) }()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("%w: session %s: %w", domain.ErrDeliveryFailure, s.ID, err)
		}
		return nil
	case <-sendCtx.Done():
		return fmt.Errorf("%w: session %s: %w", domain.ErrDeliveryFailure, s.ID, sendCtx.Err())
	}
}

// Attach subscribes the hub to status.notification on bus.
func (h *Hub) Attach(bus *eventbus.Bus) (*eventbus.Subscription, error) {
	return eventbus.Subscribe(bus, domain.StatusNotified, "realtime_hub",
		func(ctx context.Context, n domain.StatusNotification) error {
			res, err := h.Broadcast(ctx, domain.StatusNotified.String(), n)
			if err != nil {
				return err
			}
			if res.Failed > 0 {
				h.logger.DebugContext(ctx, "Broadcast finished with failures",
					"status_id", n.ID, "delivered", res.Delivered, "failed", res.Failed)
			}
			return nil
		})
}

// Close disconnects every session.
func (h *Hub) Close() {
	h.mu.RLock()
	ids := make([]uuid.UUID, 0, len(h.sessions))
	for id := range h.sessions {
		ids = append(ids, id)
	}
	h.mu.RUnlock()

	for _, id := range ids {
		h.Disconnect(id)
	}
}

var errTransportClosed = errors.New("transport closed")

func transportName(t Transport) string {
	if named, ok := t.(interface{ Name() string }); ok {
		return named.Name()
	}
	return "other"
}
