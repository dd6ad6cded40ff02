package session

import (
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"go.uber.org/zap"
)

// Store is a bounded in-memory session table. The least recently used
// session is evicted when the table is full; onEvict runs for every session
// that leaves the table, whether evicted or removed.
type Store struct {
	cache  *lru.Cache
	logger *zap.Logger
	// serialises get-or-create so one id never maps to two sessions
	createMu sync.Mutex
}

func NewStore(size int, onEvict func(*Session), logger *zap.Logger) (*Store, error) {
	if size <= 0 {
		size = 256
	}
	cache, err := lru.NewWithEvict(size, func(key interface{}, value interface{}) {
		s, ok := value.(*Session)
		if !ok {
			return
		}
		logger.Info("Session released", zap.String("session_id", s.ID))
		if onEvict != nil {
			onEvict(s)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("create session cache: %w", err)
	}
	return &Store{cache: cache, logger: logger}, nil
}

// GetOrCreate returns the session for id, creating an empty one if needed.
// The session is marked active.
func (st *Store) GetOrCreate(id string) *Session {
	st.createMu.Lock()
	defer st.createMu.Unlock()

	if v, ok := st.cache.Get(id); ok {
		s := v.(*Session)
		s.Touch()
		return s
	}
	s := newSession(id)
	st.cache.Add(id, s)
	st.logger.Debug("Session created", zap.String("session_id", id))
	return s
}

// Get returns an existing session without creating one.
func (st *Store) Get(id string) (*Session, bool) {
	v, ok := st.cache.Get(id)
	if !ok {
		return nil, false
	}
	return v.(*Session), true
}

// Remove drops a session and runs the eviction hook for it.
func (st *Store) Remove(id string) bool {
	return st.cache.Remove(id)
}

// IdleSince lists sessions whose last activity is before cutoff.
func (st *Store) IdleSince(cutoff time.Time) []string {
	var idle []string
	for _, key := range st.cache.Keys() {
		v, ok := st.cache.Peek(key)
		if !ok {
			continue
		}
		s := v.(*Session)
		if s.LastActive().Before(cutoff) {
			idle = append(idle, s.ID)
		}
	}
	return idle
}

func (st *Store) Len() int {
	return st.cache.Len()
}
