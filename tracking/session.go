package tracking

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const sessionPrefix = "sess_"

// SessionTracker maps session ids to their last activity. Sessions are soft
// state: they live only in this process and are lost on restart.
type SessionTracker struct {
	mu         sync.Mutex
	sessions   map[string]time.Time
	timeout    time.Duration
	maxEntries int
	now        func() time.Time
}

// NewSessionTracker expires sessions after timeout of inactivity. Once the
// table holds more than maxEntries sessions, each new session triggers a scan
// that evicts every expired entry.
func NewSessionTracker(timeout time.Duration, maxEntries int) *SessionTracker {
	return &SessionTracker{
		sessions:   make(map[string]time.Time),
		timeout:    timeout,
		maxEntries: maxEntries,
		now:        time.Now,
	}
}

// Resolve continues the provided session if it is known and still active,
// refreshing its last activity. Otherwise it mints and stores a new id.
func (s *SessionTracker) Resolve(provided string, now time.Time) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if provided != "" {
		if last, ok := s.sessions[provided]; ok {
			if now.Sub(last) < s.timeout {
				s.sessions[provided] = now
				return provided
			}
			delete(s.sessions, provided)
		}
	}

	id := newSessionID()
	s.sessions[id] = now

	if len(s.sessions) > s.maxEntries {
		s.evictExpired(now)
	}
	return id
}

// Sweep evicts every expired session regardless of table size.
func (s *SessionTracker) Sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.evictExpired(now)
}

// Len returns the number of sessions currently held.
func (s *SessionTracker) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Run sweeps expired sessions every interval until ctx is done.
func (s *SessionTracker) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(s.now())
		}
	}
}

// evictExpired must be called with s.mu held.
func (s *SessionTracker) evictExpired(now time.Time) int {
	removed := 0
	for id, last := range s.sessions {
		if now.Sub(last) >= s.timeout {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed
}

// newSessionID returns the session prefix followed by ten lowercase
// hexadecimal characters.
func newSessionID() string {
	return sessionPrefix + strings.ReplaceAll(uuid.NewString(), "-", "")[:10]
}
