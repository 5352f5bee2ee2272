package explorer

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// SessionStore hands out one Session per browser, keyed by an opaque id,
// and forgets sessions idle for longer than ttl.
type SessionStore struct {
	entries   map[string]*sessionEntry
	mutex     sync.Mutex
	ttl       time.Duration
	newFn     func() *Session
	lastSweep time.Time
	now       func() time.Time
}

type sessionEntry struct {
	session  *Session
	lastSeen time.Time
}

func NewSessionStore(ttl time.Duration, newFn func() *Session) *SessionStore {
	return &SessionStore{
		entries: make(map[string]*sessionEntry),
		ttl:     ttl,
		newFn:   newFn,
		now:     time.Now,
	}
}

// Acquire returns the live session for id, or a fresh session under a new
// id when id is empty, unknown or expired.
func (st *SessionStore) Acquire(id string) (string, *Session) {
	st.mutex.Lock()
	defer st.mutex.Unlock()

	now := st.now()
	if now.Sub(st.lastSweep) > st.ttl {
		st.sweepLocked(now)
		st.lastSweep = now
	}

	if entry, ok := st.entries[id]; ok && now.Sub(entry.lastSeen) <= st.ttl {
		entry.lastSeen = now
		return id, entry.session
	}

	id = uuid.NewString()
	entry := &sessionEntry{session: st.newFn(), lastSeen: now}
	st.entries[id] = entry
	return id, entry.session
}

func (st *SessionStore) sweepLocked(now time.Time) {
	for id, entry := range st.entries {
		if now.Sub(entry.lastSeen) > st.ttl {
			delete(st.entries, id)
		}
	}
}
