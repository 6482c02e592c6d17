package http

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/YahyawiAF/co-admin-system-sub001/internal/status_service/domain"
	"github.com/YahyawiAF/co-admin-system-sub001/internal/status_service/middleware"
	"github.com/YahyawiAF/co-admin-system-sub001/internal/status_service/realtime"
)

// RealtimeHandler upgrades authenticated clients into hub sessions.
type RealtimeHandler struct {
	hub      *realtime.Hub
	upgrader *websocket.Upgrader
	wsOpts   realtime.WebSocketOptions
	logger   *slog.Logger
}

func NewRealtimeHandler(hub *realtime.Hub, wsOpts realtime.WebSocketOptions, logger *slog.Logger) *RealtimeHandler {
	return &RealtimeHandler{
		hub:      hub,
		upgrader: realtime.NewUpgrader(wsOpts),
		wsOpts:   wsOpts,
		logger:   logger.With("handler", "realtime"),
	}
}

// ServeWebSocket handles GET /api/v1/realtime/ws.
func (h *RealtimeHandler) ServeWebSocket(w http.ResponseWriter, r *http.Request) {
	user, kinds, ok := h.sessionParams(w, r)
	if !ok {
		return
	}
	h.hub.ServeWebSocket(w, r, h.upgrader, h.wsOpts, user.ID, kinds)
}

// ServeSSE handles GET /api/v1/realtime/sse.
func (h *RealtimeHandler) ServeSSE(w http.ResponseWriter, r *http.Request) {
	user, kinds, ok := h.sessionParams(w, r)
	if !ok {
		return
	}
	h.hub.ServeSSE(w, r, user.ID, kinds)
}

func (h *RealtimeHandler) sessionParams(w http.ResponseWriter, r *http.Request) (middleware.AuthenticatedUser, []string, bool) {
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		h.logger.ErrorContext(r.Context(), "AuthenticatedUser not found in context for realtime session")
		writeJSONError(w, "User authentication details not found", http.StatusUnauthorized)
		return middleware.AuthenticatedUser{}, nil, false
	}
	kinds, err := parseKinds(r)
	if err != nil {
		h.logger.WarnContext(r.Context(), "Invalid kinds filter", "error", err, "user_id", user.ID)
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return middleware.AuthenticatedUser{}, nil, false
	}
	return user, kinds, true
}

// parseKinds reads the optional kinds filter, given as repeated or
// comma-separated values. No filter means every kind.
func parseKinds(r *http.Request) ([]string, error) {
	var kinds []string
	for _, raw := range r.URL.Query()["kinds"] {
		for _, k := range strings.Split(raw, ",") {
			k = strings.TrimSpace(k)
			if k == "" {
				continue
			}
			if !domain.IsEventKind(k) {
				return nil, fmt.Errorf("unknown event kind %q (known: %s)", k, strings.Join(domain.EventKinds(), ", "))
			}
			kinds = append(kinds, k)
		}
	}
	return kinds, nil
}
