package domain

import "strings"

// Display statuses shown to dashboard clients.
const (
	DisplayDelivered  = "delivered"
	DisplayBounced    = "bounced"
	DisplayComplained = "complained"
)

// ResolveDisplayStatus maps a provider bounce type to the status a dashboard
// shows. No bounce type means the message was delivered.
func ResolveDisplayStatus(bounceType string) string {
	switch strings.ToLower(strings.TrimSpace(bounceType)) {
	case "", "delivery", "delivered":
		return DisplayDelivered
	case "complaint", "complained", "abuse", "spam":
		return DisplayComplained
	default:
		return DisplayBounced
	}
}

// StatusNotification is the client-facing view of a committed status record.
type StatusNotification struct {
	Status
	DisplayStatus string `json:"display_status"`
}

// NewStatusNotification enriches a persisted record for realtime clients.
func NewStatusNotification(s Status) StatusNotification {
	return StatusNotification{
		Status:        s.Clone(),
		DisplayStatus: ResolveDisplayStatus(s.BounceType),
	}
}

func (n StatusNotification) Clone() StatusNotification {
	n.Status = n.Status.Clone()
	return n
}
