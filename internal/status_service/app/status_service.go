package app

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/YahyawiAF/co-admin-system-sub001/internal/platform/eventbus"
	"github.com/YahyawiAF/co-admin-system-sub001/internal/status_service/domain"
)

// StatusService orchestrates ingestion: validate, announce, persist, notify.
type StatusService struct {
	repo   StatusRepository
	bus    *eventbus.Bus
	logger *slog.Logger
}

func NewStatusService(repo StatusRepository, bus *eventbus.Bus, logger *slog.Logger) *StatusService {
	return &StatusService{
		repo:   repo,
		bus:    bus,
		logger: logger.With("component", "status_service"),
	}
}

// AddStatus records a provider status update.
//
// status.create is published with the normalized input before the record is
// written: it means "an update is being processed", not "committed". If the
// write then fails the error is returned to the caller and status.create
// subscribers are not told. On success the committed record is announced on
// status.notification through Notify.
func (s *StatusService) AddStatus(ctx context.Context, in domain.CreateStatusInput) (domain.Status, error) {
	start := time.Now()
	in = in.Normalize()

	if err := in.Validate(); err != nil {
		s.observe(start, "invalid")
		s.logger.WarnContext(ctx, "Rejected status update", "error", err, "send_id", in.SendID)
		return domain.Status{}, err
	}

	if !eventbus.Publish(ctx, s.bus, domain.StatusCreated, in.Clone()) {
		s.logger.DebugContext(ctx, "No subscribers for event", "kind", domain.StatusCreated.String())
	}

	record, err := s.repo.Create(ctx, in)
	if err != nil {
		result := "error"
		if errors.Is(err, domain.ErrValidation) {
			result = "invalid"
		}
		s.observe(start, result)
		s.logger.ErrorContext(ctx, "Failed to persist status update", "error", err, "send_id", in.SendID)
		return domain.Status{}, err
	}

	s.Notify(ctx, record)
	s.observe(start, "success")
	s.logger.InfoContext(ctx, "Status update recorded",
		"status_id", record.ID, "send_id", record.SendID, "bounce_type", record.BounceType)
	return record, nil
}

// Notify publishes the enriched view of a committed record on
// status.notification and reports whether anyone was listening.
func (s *StatusService) Notify(ctx context.Context, record domain.Status) bool {
	delivered := eventbus.Publish(ctx, s.bus, domain.StatusNotified, domain.NewStatusNotification(record))
	if !delivered {
		s.logger.DebugContext(ctx, "No subscribers for event", "kind", domain.StatusNotified.String(), "status_id", record.ID)
	}
	return delivered
}

// FindMany is a pure read; it never touches the bus.
func (s *StatusService) FindMany(ctx context.Context, q domain.PageQuery) (domain.Page, error) {
	page, err := s.repo.FindMany(ctx, q)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to list statuses", "error", err, "page", q.Page, "per_page", q.PerPage)
		return domain.Page{}, err
	}
	return page, nil
}

func (s *StatusService) FindByID(ctx context.Context, id uuid.UUID) (domain.Status, error) {
	return s.repo.FindByID(ctx, id)
}

// Update persists a partial change. No event is emitted.
func (s *StatusService) Update(ctx context.Context, id uuid.UUID, in domain.UpdateStatusInput) (domain.Status, error) {
	if err := in.Validate(); err != nil {
		return domain.Status{}, err
	}
	record, err := s.repo.Update(ctx, id, in)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			s.logger.ErrorContext(ctx, "Failed to update status", "error", err, "status_id", id)
		}
		return domain.Status{}, err
	}
	s.logger.InfoContext(ctx, "Status updated", "status_id", id)
	return record, nil
}

// Delete removes a record. No event is emitted.
func (s *StatusService) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			s.logger.ErrorContext(ctx, "Failed to delete status", "error", err, "status_id", id)
		}
		return err
	}
	s.logger.InfoContext(ctx, "Status deleted", "status_id", id)
	return nil
}

func (s *StatusService) observe(start time.Time, result string) {
	statusesIngestedCounter.WithLabelValues(result).Inc()
	statusIngestDurationHist.WithLabelValues(result).Observe(time.Since(start).Seconds())
}
