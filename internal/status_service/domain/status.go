package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Status is one delivery-status observation for a single send attempt.
// A send can have several of them over time (delivered, then bounced).
type Status struct {
	ID         uuid.UUID  `json:"id"`
	CreatedAt  time.Time  `json:"createdAt"`
	Email      string     `json:"email"`
	SendID     string     `json:"sendid"`
	ListID     string     `json:"listid,omitempty"`
	BounceType string     `json:"bounce_type,omitempty"`
	BounceText string     `json:"bounce_text,omitempty"`
	Timestamp  *time.Time `json:"timestamp"`

	// Seq is the insertion sequence. It only breaks ordering ties.
	Seq int64 `json:"-"`
}

// Clone returns a copy that shares no pointers with s.
func (s Status) Clone() Status {
	s.Timestamp = cloneTime(s.Timestamp)
	return s
}

// CreateStatusInput is the normalized creation input shared by the webhook,
// the NATS consumer and the status.create event.
type CreateStatusInput struct {
	Email      string     `json:"email" validate:"required,email"`
	ListID     string     `json:"listid,omitempty"`
	BounceType string     `json:"bounce_type,omitempty"`
	BounceText string     `json:"bounce_text,omitempty"`
	Timestamp  *time.Time `json:"timestamp,omitempty"`
	SendID     string     `json:"sendid" validate:"required"`
}

// Normalize trims every field and lowercases the email address.
func (in CreateStatusInput) Normalize() CreateStatusInput {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.ListID = strings.TrimSpace(in.ListID)
	in.BounceType = strings.TrimSpace(in.BounceType)
	in.BounceText = strings.TrimSpace(in.BounceText)
	in.SendID = strings.TrimSpace(in.SendID)
	if in.Timestamp != nil {
		ts := in.Timestamp.UTC()
		in.Timestamp = &ts
	}
	return in
}

func (in CreateStatusInput) Clone() CreateStatusInput {
	in.Timestamp = cloneTime(in.Timestamp)
	return in
}

// UpdateStatusInput is a partial update. Nil fields are left untouched.
type UpdateStatusInput struct {
	Email      *string    `json:"email,omitempty"`
	ListID     *string    `json:"listid,omitempty"`
	BounceType *string    `json:"bounce_type,omitempty"`
	BounceText *string    `json:"bounce_text,omitempty"`
	Timestamp  *time.Time `json:"timestamp,omitempty"`
	SendID     *string    `json:"sendid,omitempty"`
}

// Empty reports whether the update would change nothing.
func (in UpdateStatusInput) Empty() bool {
	return in.Email == nil && in.ListID == nil && in.BounceType == nil &&
		in.BounceText == nil && in.Timestamp == nil && in.SendID == nil
}

// Normalize trims every present field and lowercases the email address.
func (in UpdateStatusInput) Normalize() UpdateStatusInput {
	trim := func(p *string, lower bool) *string {
		if p == nil {
			return nil
		}
		v := strings.TrimSpace(*p)
		if lower {
			v = strings.ToLower(v)
		}
		return &v
	}
	in.Email = trim(in.Email, true)
	in.ListID = trim(in.ListID, false)
	in.BounceType = trim(in.BounceType, false)
	in.BounceText = trim(in.BounceText, false)
	in.SendID = trim(in.SendID, false)
	if in.Timestamp != nil {
		ts := in.Timestamp.UTC()
		in.Timestamp = &ts
	}
	return in
}

// Apply returns s with the non-nil fields of in written over it.
// ID, CreatedAt and Seq are never touched.
func (in UpdateStatusInput) Apply(s Status) Status {
	in = in.Normalize()
	if in.Email != nil {
		s.Email = *in.Email
	}
	if in.ListID != nil {
		s.ListID = *in.ListID
	}
	if in.BounceType != nil {
		s.BounceType = *in.BounceType
	}
	if in.BounceText != nil {
		s.BounceText = *in.BounceText
	}
	if in.Timestamp != nil {
		s.Timestamp = in.Timestamp
	}
	if in.SendID != nil {
		s.SendID = *in.SendID
	}
	return s
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
