package domain

import (
	"fmt"
	"strings"
	"time"
)

// ProviderStatusCallback is the wire format of a provider status callback,
// shared by the HTTP webhook and the NATS ingestion subject.
type ProviderStatusCallback struct {
	Email      string `json:"email" validate:"required,email"`
	ListID     string `json:"listid,omitempty"`
	BounceType string `json:"bounce_type,omitempty"`
	BounceText string `json:"bounce_text,omitempty"`
	Timestamp  string `json:"timestamp,omitempty"`
	SendID     string `json:"sendid,omitempty"`
}

// timestampLayouts are tried in order when parsing provider timestamps.
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

// ToInput converts the callback into a normalized creation input.
// A timestamp that matches none of the known layouts is a validation error.
func (c ProviderStatusCallback) ToInput() (CreateStatusInput, error) {
	in := CreateStatusInput{
		Email:      c.Email,
		ListID:     c.ListID,
		BounceType: c.BounceType,
		BounceText: c.BounceText,
		SendID:     c.SendID,
	}
	if raw := strings.TrimSpace(c.Timestamp); raw != "" {
		ts, err := ParseTimestamp(raw)
		if err != nil {
			return CreateStatusInput{}, err
		}
		in.Timestamp = &ts
	}
	return in.Normalize(), nil
}

// ParseTimestamp accepts RFC 3339 and the bare date-time layouts providers send.
func ParseTimestamp(raw string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: timestamp: unrecognized format %q", ErrValidation, raw)
}
