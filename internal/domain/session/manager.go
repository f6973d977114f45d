package session

import (
	"context"
	"sync"
	"time"
)

// entry tracks a live session and when it was last used.
type entry struct {
	session  *Session
	lastSeen time.Time
}

// Manager keeps the live Session objects of this process, keyed by session
// id. Sessions idle for longer than the configured TTL are evicted; the next
// request of an evicted session rebuilds it from the cookie session.
type Manager struct {
	deps Deps
	ttl  time.Duration
	now  func() time.Time

	mu       sync.Mutex
	sessions map[string]*entry
}

// NewManager returns a Manager building sessions from deps.
func NewManager(deps Deps, ttl time.Duration) *Manager {
	return &Manager{
		deps:     deps,
		ttl:      ttl,
		now:      time.Now,
		sessions: make(map[string]*entry),
	}
}

// Get returns the session with id. created is true when the session was
// built by this call; the caller is then expected to restore its identity.
func (m *Manager) Get(ctx context.Context, id string) (s *Session, created bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e, ok := m.sessions[id]; ok {
		e.lastSeen = m.now()
		return e.session, false
	}
	s = New(ctx, id, m.deps)
	m.sessions[id] = &entry{session: s, lastSeen: m.now()}
	return s, true
}

// Drop closes and forgets the session with id.
func (m *Manager) Drop(id string) {
	m.mu.Lock()
	e, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if ok {
		e.session.Close()
	}
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// cleanup evicts sessions idle for longer than the TTL.
func (m *Manager) cleanup(now time.Time) {
	var evicted []*Session

	m.mu.Lock()
	for id, e := range m.sessions {
		if now.Sub(e.lastSeen) > m.ttl {
			evicted = append(evicted, e.session)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, s := range evicted {
		s.Close()
	}
}

// StartCleanup evicts idle sessions every interval until ctx is cancelled.
func (m *Manager) StartCleanup(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				m.cleanup(now)
			}
		}
	}()
}
