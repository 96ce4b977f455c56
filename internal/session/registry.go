package session

import (
	"sync"
	"time"

	"ai-call-bridge-service/internal/observability/logging"
)

type registryEntry struct {
	session  *Session
	lastSeen time.Time
}

// Registry is the in-memory index of live call sessions, keyed by call
// ID. Reads refresh the entry's last-seen time; a background sweep
// evicts entries idle past the maximum age. Eviction does not finalize
// the session, it only drops the reference.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*registryEntry

	maxAge        time.Duration
	sweepInterval time.Duration
	now           func() time.Time

	stop chan struct{}
	done chan struct{}
}

// NewRegistry creates a registry with the given idle limit and sweep
// cadence. Start must be called for background eviction to run.
func NewRegistry(maxAge, sweepInterval time.Duration) *Registry {
	return &Registry{
		entries:       make(map[string]*registryEntry),
		maxAge:        maxAge,
		sweepInterval: sweepInterval,
		now:           time.Now,
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
	}
}

// Put registers a session under its call ID, replacing any previous
// entry for the same call.
func (r *Registry) Put(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[s.CallID] = &registryEntry{session: s, lastSeen: r.now()}
}

// Get returns the session for callID and refreshes its last-seen time.
func (r *Registry) Get(callID string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.entries[callID]
	if !ok {
		return nil, false
	}
	entry.lastSeen = r.now()
	return entry.session, true
}

// Remove drops the session for callID, if present.
func (r *Registry) Remove(callID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, callID)
}

// ListByBusiness returns the live sessions for one business.
func (r *Registry) ListByBusiness(businessID string) []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var sessions []*Session
	for _, entry := range r.entries {
		if entry.session.BusinessID == businessID {
			sessions = append(sessions, entry.session)
		}
	}
	return sessions
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Start launches the background sweep loop.
func (r *Registry) Start() {
	go func() {
		defer close(r.done)
		ticker := time.NewTicker(r.sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				r.sweep()
			case <-r.stop:
				return
			}
		}
	}()
}

// Stop halts the sweep loop and waits for it to exit.
func (r *Registry) Stop() {
	close(r.stop)
	<-r.done
}

func (r *Registry) sweep() {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	for callID, entry := range r.entries {
		if now.Sub(entry.lastSeen) > r.maxAge {
			delete(r.entries, callID)
			logging.WithComponent("registry").Warn().
				Str("callId", callID).
				Dur("idle", now.Sub(entry.lastSeen)).
				Msg("Evicted stale call session")
		}
	}
}
