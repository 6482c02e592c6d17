package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nats-io/nats.go"

	"github.com/YahyawiAF/co-admin-system-sub001/internal/status_service/domain"
)

var ErrInvalidSubject = errors.New("invalid provider status subject")

// StatusAdder is the part of StatusService the consumer needs.
type StatusAdder interface {
	AddStatus(ctx context.Context, in domain.CreateStatusInput) (domain.Status, error)
}

// StatusConsumer feeds provider status messages published on
// dlr.status.<provider> into the pipeline.
type StatusConsumer struct {
	service StatusAdder
	logger  *slog.Logger
}

func NewStatusConsumer(service StatusAdder, logger *slog.Logger) *StatusConsumer {
	return &StatusConsumer{
		service: service,
		logger:  logger.With("component", "status_consumer"),
	}
}

// Start joins queueGroup on subject. Messages are handled on the NATS
// delivery goroutine, one at a time per subscription. Cancelling ctx drains
// the subscription; messages handled during the drain still run to completion.
func (c *StatusConsumer) Start(ctx context.Context, sub Subscriber, subject, queueGroup string) (*nats.Subscription, error) {
	c.logger.InfoContext(ctx, "Starting provider status subscription", "subject", subject, "queue_group", queueGroup)
	handlerCtx := context.WithoutCancel(ctx)
	return sub.Subscribe(ctx, subject, queueGroup, func(msg *nats.Msg) {
		// Outcomes are logged and counted inside HandleMessage.
		_ = c.HandleMessage(handlerCtx, msg)
	})
}

// HandleMessage decodes one message and hands it to the service.
func (c *StatusConsumer) HandleMessage(ctx context.Context, msg *nats.Msg) error {
	provider, err := providerFromSubject(msg.Subject)
	if err != nil {
		natsMessagesReceivedCounter.WithLabelValues("unknown", "rejected").Inc()
		c.logger.ErrorContext(ctx, "Invalid NATS subject format for provider status", "subject", msg.Subject)
		return err
	}

	var callback domain.ProviderStatusCallback
	if err := json.Unmarshal(msg.Data, &callback); err != nil {
		natsMessagesReceivedCounter.WithLabelValues(provider, "rejected").Inc()
		c.logger.ErrorContext(ctx, "Failed to deserialize provider status message",
			"error", err, "subject", msg.Subject, "data_len", len(msg.Data))
		return fmt.Errorf("%w: decode message: %w", domain.ErrValidation, err)
	}

	in, err := callback.ToInput()
	if err != nil {
		natsMessagesReceivedCounter.WithLabelValues(provider, "rejected").Inc()
		c.logger.WarnContext(ctx, "Rejected provider status message", "error", err, "provider_name", provider)
		return err
	}

	record, err := c.service.AddStatus(ctx, in)
	if err != nil {
		result := "error"
		if errors.Is(err, domain.ErrValidation) {
			result = "rejected"
		}
		natsMessagesReceivedCounter.WithLabelValues(provider, result).Inc()
		c.logger.ErrorContext(ctx, "Failed to record provider status", "error", err, "provider_name", provider, "send_id", in.SendID)
		return err
	}

	natsMessagesReceivedCounter.WithLabelValues(provider, "success").Inc()
	c.logger.InfoContext(ctx, "Provider status recorded", "provider_name", provider, "status_id", record.ID, "send_id", record.SendID)
	return nil
}

func providerFromSubject(subject string) (string, error) {
	parts := strings.Split(subject, ".")
	if len(parts) != 3 || parts[0] != "dlr" || parts[1] != "status" {
		return "", fmt.Errorf("%w: %q", ErrInvalidSubject, subject)
	}
	provider := parts[2]
	if provider == "" || provider == "*" || provider == ">" {
		return "", fmt.Errorf("%w: %q", ErrInvalidSubject, subject)
	}
	return provider, nil
}
