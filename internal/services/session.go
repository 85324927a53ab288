package services

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"storefront-api/internal/models"
)

// Session is one shopper's browse state and cart. All access goes through Do,
// which applies one event at a time.
type Session struct {
	ID string

	mu       sync.Mutex
	browse   models.BrowseState
	cart     *Cart
	lastSeen time.Time
}

// Do runs fn with exclusive access to the session state.
func (s *Session) Do(fn func(browse *models.BrowseState, cart *Cart)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.browse, s.cart)
}

// SessionStore owns every live session and expires idle ones.
type SessionStore struct {
	mu           sync.Mutex
	sessions     map[string]*Session
	ttl          time.Duration
	itemsPerPage int
	now          func() time.Time
}

func NewSessionStore(ttl time.Duration, itemsPerPage int) *SessionStore {
	return &SessionStore{
		sessions:     make(map[string]*Session),
		ttl:          ttl,
		itemsPerPage: itemsPerPage,
		now:          time.Now,
	}
}

// Resolve returns the live session for id, or a new session when id is empty,
// malformed, unknown or expired. created reports the latter.
func (st *SessionStore) Resolve(id string) (sess *Session, created bool) {
	st.mu.Lock()
	defer st.mu.Unlock()

	now := st.now()
	if _, err := uuid.Parse(id); err == nil {
		if sess, ok := st.sessions[id]; ok && !st.expired(sess, now) {
			sess.lastSeen = now
			return sess, false
		}
	}

	sess = &Session{
		ID:       uuid.NewString(),
		browse:   NewBrowseState(st.itemsPerPage),
		cart:     NewCart(),
		lastSeen: now,
	}
	st.sessions[sess.ID] = sess
	return sess, true
}

func (st *SessionStore) Len() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.sessions)
}

// Sweep drops sessions idle for longer than the TTL and returns how many went.
func (st *SessionStore) Sweep() int {
	st.mu.Lock()
	defer st.mu.Unlock()

	now := st.now()
	removed := 0
	for id, sess := range st.sessions {
		if st.expired(sess, now) {
			delete(st.sessions, id)
			removed++
		}
	}
	return removed
}

// RunJanitor sweeps on every interval until ctx is done.
func (st *SessionStore) RunJanitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := st.Sweep(); n > 0 {
				log.Debugf("Expired %d idle sessions", n)
			}
		}
	}
}

func (st *SessionStore) expired(sess *Session, now time.Time) bool {
	return st.ttl > 0 && now.Sub(sess.lastSeen) > st.ttl
}
