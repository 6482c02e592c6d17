package http

import (
	"strings"

	"github.com/YahyawiAF/co-admin-system-sub001/internal/status_service/domain"
)

// CreateStatusRequestDTO is the webhook body. It shares its wire format with
// the NATS ingestion subject.
type CreateStatusRequestDTO = domain.ProviderStatusCallback

// UpdateStatusRequestDTO is the PATCH body. Absent fields are left unchanged.
type UpdateStatusRequestDTO struct {
	Email      *string `json:"email,omitempty"`
	ListID     *string `json:"listid,omitempty"`
	BounceType *string `json:"bounce_type,omitempty"`
	BounceText *string `json:"bounce_text,omitempty"`
	Timestamp  *string `json:"timestamp,omitempty"`
	SendID     *string `json:"sendid,omitempty"`
}

// ToInput converts the DTO into a partial update. An unparseable timestamp
// is a validation error.
func (d UpdateStatusRequestDTO) ToInput() (domain.UpdateStatusInput, error) {
	in := domain.UpdateStatusInput{
		Email:      d.Email,
		ListID:     d.ListID,
		BounceType: d.BounceType,
		BounceText: d.BounceText,
		SendID:     d.SendID,
	}
	if d.Timestamp != nil {
		ts, err := domain.ParseTimestamp(strings.TrimSpace(*d.Timestamp))
		if err != nil {
			return domain.UpdateStatusInput{}, err
		}
		in.Timestamp = &ts
	}
	return in, nil
}

// ErrorResponseDTO is the body of every non-2xx JSON response.
type ErrorResponseDTO struct {
	Error string `json:"error"`
}

// HealthResponseDTO reports per-dependency health.
type HealthResponseDTO struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}
