package app

import (
	"context"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/YahyawiAF/co-admin-system-sub001/internal/status_service/domain"
)

// StatusRepository is the StatusStore contract. Implementations validate
// their input and wrap faults in domain.ErrStorage.
type StatusRepository interface {
	Create(ctx context.Context, in domain.CreateStatusInput) (domain.Status, error)
	FindByID(ctx context.Context, id uuid.UUID) (domain.Status, error)
	FindMany(ctx context.Context, q domain.PageQuery) (domain.Page, error)
	Update(ctx context.Context, id uuid.UUID, in domain.UpdateStatusInput) (domain.Status, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// Publisher sends raw payloads to an external broker subject.
type Publisher interface {
	Publish(ctx context.Context, subject string, data []byte) error
}

// Subscriber joins a queue group on a broker subject.
type Subscriber interface {
	Subscribe(ctx context.Context, subject, queueGroup string, handler nats.MsgHandler) (*nats.Subscription, error)
}
