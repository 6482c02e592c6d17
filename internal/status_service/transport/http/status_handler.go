package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/YahyawiAF/co-admin-system-sub001/internal/status_service/domain"
)

const maxRequestBodyBytes = 1 << 20

// StatusService is the part of app.StatusService the handlers call.
type StatusService interface {
	AddStatus(ctx context.Context, in domain.CreateStatusInput) (domain.Status, error)
	FindMany(ctx context.Context, q domain.PageQuery) (domain.Page, error)
	FindByID(ctx context.Context, id uuid.UUID) (domain.Status, error)
	Update(ctx context.Context, id uuid.UUID, in domain.UpdateStatusInput) (domain.Status, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type StatusHandler struct {
	service  StatusService
	validate *validator.Validate
	logger   *slog.Logger
}

func NewStatusHandler(service StatusService, validate *validator.Validate, logger *slog.Logger) *StatusHandler {
	return &StatusHandler{
		service:  service,
		validate: validate,
		logger:   logger.With("handler", "statuses"),
	}
}

// CreateStatus handles POST /api/v1/statuses.
func (h *StatusHandler) CreateStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := h.requestLogger(r)

	var req CreateStatusRequestDTO
	if err := decodeJSON(w, r, &req); err != nil {
		log.WarnContext(ctx, "Failed to decode request body for CreateStatus", "error", err)
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.validate.StructCtx(ctx, req); err != nil {
		log.WarnContext(ctx, "Validation failed for CreateStatus", "error", err)
		writeJSONError(w, fmt.Sprintf("Validation error: %s", err.Error()), http.StatusBadRequest)
		return
	}

	in, err := req.ToInput()
	if err != nil {
		h.writeServiceError(w, r, err, "CreateStatus")
		return
	}

	record, err := h.service.AddStatus(ctx, in)
	if err != nil {
		h.writeServiceError(w, r, err, "CreateStatus")
		return
	}

	w.Header().Set("Location", "/api/v1/statuses/"+record.ID.String())
	writeJSON(w, http.StatusCreated, record)
}

// ListStatuses handles GET /api/v1/statuses?page=&perPage=.
func (h *StatusHandler) ListStatuses(w http.ResponseWriter, r *http.Request) {
	q, err := parsePageQuery(r)
	if err != nil {
		h.requestLogger(r).WarnContext(r.Context(), "Invalid pagination parameters", "error", err)
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	page, err := h.service.FindMany(r.Context(), q)
	if err != nil {
		h.writeServiceError(w, r, err, "ListStatuses")
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// GetStatus handles GET /api/v1/statuses/{id}.
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := h.statusID(w, r)
	if !ok {
		return
	}
	record, err := h.service.FindByID(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, err, "GetStatus")
		return
	}
	writeJSON(w, http.StatusOK, record)
}

// UpdateStatus handles PATCH /api/v1/statuses/{id}.
func (h *StatusHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := h.statusID(w, r)
	if !ok {
		return
	}

	var req UpdateStatusRequestDTO
	if err := decodeJSON(w, r, &req); err != nil {
		h.requestLogger(r).WarnContext(r.Context(), "Failed to decode request body for UpdateStatus", "error", err)
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	in, err := req.ToInput()
	if err != nil {
		h.writeServiceError(w, r, err, "UpdateStatus")
		return
	}

	record, err := h.service.Update(r.Context(), id, in)
	if err != nil {
		h.writeServiceError(w, r, err, "UpdateStatus")
		return
	}
	writeJSON(w, http.StatusOK, record)
}

// DeleteStatus handles DELETE /api/v1/statuses/{id}.
func (h *StatusHandler) DeleteStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := h.statusID(w, r)
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		h.writeServiceError(w, r, err, "DeleteStatus")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *StatusHandler) statusID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw := chi.URLParam(r, "id")
	id, err := uuid.Parse(raw)
	if err != nil {
		h.requestLogger(r).WarnContext(r.Context(), "Invalid status id", "id", raw)
		writeJSONError(w, "Invalid status id", http.StatusBadRequest)
		return uuid.Nil, false
	}
	return id, true
}

// writeServiceError maps domain errors onto HTTP status codes.
func (h *StatusHandler) writeServiceError(w http.ResponseWriter, r *http.Request, err error, operation string) {
	log := h.requestLogger(r).With("operation", operation)
	switch {
	case errors.Is(err, domain.ErrValidation):
		log.WarnContext(r.Context(), "Validation error", "error", err)
		writeJSONError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, domain.ErrNotFound):
		writeJSONError(w, "Status not found", http.StatusNotFound)
	case errors.Is(err, context.DeadlineExceeded):
		log.ErrorContext(r.Context(), "Request timed out", "error", err)
		writeJSONError(w, "Request timed out", http.StatusGatewayTimeout)
	default:
		log.ErrorContext(r.Context(), "Unhandled service error", "error", err)
		writeJSONError(w, "Internal server error", http.StatusInternalServerError)
	}
}

func (h *StatusHandler) requestLogger(r *http.Request) *slog.Logger {
	if reqID := chimiddleware.GetReqID(r.Context()); reqID != "" {
		return h.logger.With("request_id", reqID)
	}
	return h.logger
}

func parsePageQuery(r *http.Request) (domain.PageQuery, error) {
	var q domain.PageQuery
	values := r.URL.Query()
	for _, p := range []struct {
		name string
		dst  *int
	}{{"page", &q.Page}, {"perPage", &q.PerPage}} {
		raw := values.Get(p.name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			return domain.PageQuery{}, fmt.Errorf("%s must be an integer", p.name)
		}
		*p.dst = n
	}
	return q, nil
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is empty")
		}
		return fmt.Errorf("invalid request payload: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeJSONError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, ErrorResponseDTO{Error: message})
}
