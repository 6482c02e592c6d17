package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/YahyawiAF/co-admin-system-sub001/internal/platform/eventbus"
	"github.com/YahyawiAF/co-admin-system-sub001/internal/status_service/domain"
)

// NotificationForwarder relays status.notification events to a broker
// subject for outbound mail/notification consumers.
type NotificationForwarder struct {
	publisher Publisher
	subject   string
	logger    *slog.Logger
}

func NewNotificationForwarder(publisher Publisher, subject string, logger *slog.Logger) *NotificationForwarder {
	return &NotificationForwarder{
		publisher: publisher,
		subject:   subject,
		logger:    logger.With("component", "notification_forwarder"),
	}
}

// Attach subscribes the forwarder to status.notification.
func (f *NotificationForwarder) Attach(bus *eventbus.Bus) (*eventbus.Subscription, error) {
	return eventbus.Subscribe(bus, domain.StatusNotified, "notification_forwarder", f.Forward)
}

// Forward publishes one notification. Errors go back to the bus, which logs them.
func (f *NotificationForwarder) Forward(ctx context.Context, n domain.StatusNotification) error {
	data, err := json.Marshal(n)
	if err != nil {
		notificationsForwardedCounter.WithLabelValues("error").Inc()
		return fmt.Errorf("marshal notification %s: %w", n.ID, err)
	}
	if err := f.publisher.Publish(ctx, f.subject, data); err != nil {
		notificationsForwardedCounter.WithLabelValues("error").Inc()
		return fmt.Errorf("forward notification %s: %w", n.ID, err)
	}
	notificationsForwardedCounter.WithLabelValues("success").Inc()
	f.logger.DebugContext(ctx, "Notification forwarded", "subject", f.subject, "status_id", n.ID)
	return nil
}
