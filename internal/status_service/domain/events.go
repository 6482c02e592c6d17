package domain

import "github.com/YahyawiAF/co-admin-system-sub001/internal/platform/eventbus"

// Event kinds of the status pipeline. This is the complete set; each kind is
// bound to exactly one payload type.
var (
	// StatusCreated fires with the raw input while an update is being
	// processed, before it is committed.
	StatusCreated = eventbus.NewKind[CreateStatusInput]("status.create")

	// StatusNotified fires with the enriched view of a committed record.
	StatusNotified = eventbus.NewKind[StatusNotification]("status.notification")
)

// EventKinds lists the names of every kind above.
func EventKinds() []string {
	return []string{StatusCreated.String(), StatusNotified.String()}
}

// IsEventKind reports whether name is one of the status pipeline kinds.
func IsEventKind(name string) bool {
	for _, k := range EventKinds() {
		if k == name {
			return true
		}
	}
	return false
}
