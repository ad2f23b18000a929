package api

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/leadform/internal/wizard"
)

const defaultSessionTTL = time.Hour

// liveSession pairs a wizard session with the view it renders into.
type liveSession struct {
	session *wizard.Session
	view    *wizard.Recorder
	seen    time.Time
}

// Sessions is an in-memory registry of wizard sessions that expire after a
// period without requests.
type Sessions struct {
	ttl time.Duration
	now func() time.Time

	mu   sync.Mutex
	live map[string]*liveSession
}

// NewSessions returns an empty registry. A non-positive ttl means one hour.
func NewSessions(ttl time.Duration) *Sessions {
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	return &Sessions{ttl: ttl, now: time.Now, live: make(map[string]*liveSession)}
}

func (s *Sessions) add(sess *wizard.Session, view *wizard.Recorder) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.live[sess.ID()] = &liveSession{session: sess, view: view, seen: s.now()}
}

// get returns a live session and refreshes its expiry.
func (s *Sessions) get(id string) (*liveSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ls, ok := s.live[id]
	if !ok {
		return nil, false
	}
	if s.now().Sub(ls.seen) > s.ttl {
		delete(s.live, id)
		return nil, false
	}
	ls.seen = s.now()
	return ls, true
}

// Len returns the number of registered sessions, expired or not.
func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.live)
}

// Sweep drops expired sessions and returns how many were removed.
func (s *Sessions) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := s.now().Add(-s.ttl)
	n := 0
	for id, ls := range s.live {
		if ls.seen.Before(cutoff) {
			delete(s.live, id)
			n++
		}
	}
	return n
}

// RunSweeper sweeps at interval until ctx is cancelled.
func (s *Sessions) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.Sweep(); n > 0 {
				zap.L().Debug("api: expired sessions swept", zap.Int("count", n))
			}
		}
	}
}
