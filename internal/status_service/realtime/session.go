package realtime

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Transport delivers serialized messages to one connected client.
// Send must give up once ctx is done. Close must not block on an in-flight Send.
type Transport interface {
	Send(ctx context.Context, msg []byte) error
	Close() error
}

// Session is one connected dashboard client.
type Session struct {
	ID          uuid.UUID
	UserID      string
	ConnectedAt time.Time

	kinds     map[string]struct{}
	transport Transport

	closeOnce sync.Once
	done      chan struct{}
}

// NewSession wraps a transport. An empty kinds list accepts every kind.
func NewSession(transport Transport, userID string, kinds []string) *Session {
	s := &Session{
		ID:          uuid.New(),
		UserID:      userID,
		ConnectedAt: time.Now().UTC(),
		transport:   transport,
		done:        make(chan struct{}),
	}
	if len(kinds) > 0 {
		s.kinds = make(map[string]struct{}, len(kinds))
		for _, k := range kinds {
			s.kinds[k] = struct{}{}
		}
	}
	return s
}

// Accepts reports whether the session's filter lets kind through.
func (s *Session) Accepts(kind string) bool {
	if s.kinds == nil {
		return true
	}
	_, ok := s.kinds[kind]
	return ok
}

// Done is closed once the session has been disconnected.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

func (s *Session) close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		err = s.transport.Close()
	})
	return err
}
