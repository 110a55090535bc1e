// Package session owns the authenticated session: proactive token
// renewal, lazy expiry, and reconciliation with sessions written to the
// shared store by other execution contexts.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"shortlink/internal/auth"
	"shortlink/internal/store"
)

// Key is the store key holding the current session.
const Key = "shortlink:session"

// DefaultRefreshLead is how long before expiry the renewal fires.
const DefaultRefreshLead = 5 * time.Minute

const boundaryTimeout = 10 * time.Second

// State is the manager's position in its lifecycle.
type State int

const (
	Anonymous State = iota
	Authenticated
	Refreshing
)

func (s State) String() string {
	switch s {
	case Anonymous:
		return "anonymous"
	case Authenticated:
		return "authenticated"
	case Refreshing:
		return "refreshing"
	default:
		return "unknown"
	}
}

// Session is the persisted token material and identity. ExpiresAt is
// always computed locally from the issuing instant, never copied from
// another context without the envelope that carried it.
type Session struct {
	AccessToken string    `json:"accessToken"`
	TokenType   string    `json:"tokenType"`
	ExpiresIn   int64     `json:"expiresIn"` // seconds, as issued
	ExpiresAt   int64     `json:"expiresAt"` // epoch milliseconds
	User        auth.User `json:"user"`
}

// Manager drives the session state machine for one execution context.
// Exactly one session (or none) is current; the store copy is shared with
// every other context, and store change notifications keep this instance
// aligned with whichever context wrote last.
type Manager struct {
	store    store.Store
	boundary auth.Boundary
	lead     time.Duration

	mu      sync.Mutex
	state   State
	session *Session
	timer   *time.Timer
	// gen invalidates timers and in-flight refreshes across logouts and
	// reschedules; a fired timer holding a stale gen is a no-op.
	gen uint64

	unsubscribe func()
	now         func() time.Time
}

// NewManager creates a Manager, adopts any live session already in the
// store, and subscribes to session changes from other contexts.
func NewManager(st store.Store, boundary auth.Boundary, lead time.Duration) *Manager {
	if lead <= 0 {
		lead = DefaultRefreshLead
	}
	m := &Manager{
		store:    st,
		boundary: boundary,
		lead:     lead,
		now:      time.Now,
	}

	if raw, err := st.Get(context.Background(), Key); err == nil {
		var sess Session
		if err := json.Unmarshal([]byte(raw), &sess); err == nil && m.now().UnixMilli() < sess.ExpiresAt {
			m.mu.Lock()
			m.adoptLocked(&sess)
			m.mu.Unlock()
		}
	}

	m.unsubscribe = st.Subscribe(Key, m.onChange)
	return m
}

// Login authenticates against the boundary, persists the session for
// other contexts and arms the renewal timer. Boundary errors pass through
// wrapped: auth.ErrRejected ends the attempt, auth.ErrUnavailable may be
// retried by the caller (never by the manager).
func (m *Manager) Login(ctx context.Context, creds auth.Credentials) (*Session, error) {
	result, err := m.boundary.Login(ctx, creds)
	if err != nil {
		return nil, err
	}

	sess := m.newSession(result.AccessToken, result.ExpiresIn, result.User)
	if err := m.persist(ctx, sess); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.adoptLocked(sess)
	m.mu.Unlock()

	return sess, nil
}

// Session returns the current session, or nil when there is none. Expiry
// is checked on every read, independent of the renewal timer; reading an
// expired session transitions the manager to Anonymous.
func (m *Manager) Session() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session == nil {
		return nil
	}
	if m.now().UnixMilli() >= m.session.ExpiresAt {
		m.clearLocked()
		return nil
	}

	copied := *m.session
	return &copied
}

// State reports the manager's current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Logout clears the session, cancels the renewal timer and removes the
// store copy so other contexts observe the logout.
func (m *Manager) Logout(ctx context.Context) error {
	m.mu.Lock()
	m.clearLocked()
	m.mu.Unlock()

	return m.store.Remove(ctx, Key)
}

// Close cancels the timer and the store subscription without touching the
// shared session; other contexts keep theirs.
func (m *Manager) Close() {
	if m.unsubscribe != nil {
		m.unsubscribe()
	}
	m.mu.Lock()
	m.clearLocked()
	m.mu.Unlock()
}

// onChange reconciles this instance against a session change observed in
// the store. Notifications may echo this instance's own writes, so every
// branch is idempotent.
func (m *Manager) onChange(change store.Change) {
	if change.Removed || change.New == "" {
		m.mu.Lock()
		m.clearLocked()
		m.mu.Unlock()
		return
	}

	var sess Session
	if err := json.Unmarshal([]byte(change.New), &sess); err != nil {
		log.Printf("Warning: ignoring malformed session in store: %v", err)
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session != nil && m.session.ExpiresAt == sess.ExpiresAt {
		// Already scheduled against this expiry; our own write, or a
		// duplicate delivery.
		return
	}
	// Another context logged in or won a refresh race; adopt its session
	// and reschedule against the new expiry instead of refreshing again.
	m.adoptLocked(&sess)
}

// refresh runs when the renewal timer fires. Failure is terminal for the
// session: no retry, the store copy is removed so every context logs out.
func (m *Manager) refresh(gen uint64) {
	m.mu.Lock()
	if gen != m.gen || m.session == nil {
		m.mu.Unlock()
		return
	}
	m.state = Refreshing
	token := m.session.AccessToken
	user := m.session.User
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), boundaryTimeout)
	result, err := m.boundary.Refresh(ctx, token)
	cancel()

	if err != nil {
		log.Printf("Warning: session refresh failed, logging out: %v", err)
		m.mu.Lock()
		if gen != m.gen {
			m.mu.Unlock()
			return
		}
		m.clearLocked()
		m.mu.Unlock()

		removeCtx, cancel := context.WithTimeout(context.Background(), boundaryTimeout)
		defer cancel()
		if err := m.store.Remove(removeCtx, Key); err != nil {
			log.Printf("Warning: failed to remove session from store: %v", err)
		}
		return
	}

	sess := m.newSession(result.AccessToken, result.ExpiresIn, user)

	m.mu.Lock()
	if gen != m.gen {
		// Logged out, or another context's session arrived mid-flight.
		m.mu.Unlock()
		return
	}
	m.adoptLocked(sess)
	m.mu.Unlock()

	persistCtx, cancel := context.WithTimeout(context.Background(), boundaryTimeout)
	defer cancel()
	if err := m.persist(persistCtx, sess); err != nil {
		log.Printf("Warning: failed to persist refreshed session: %v", err)
	}
}

// adoptLocked installs sess as current and arms the renewal timer at
// ExpiresAt minus the lead, clamped to fire immediately when already
// inside that window.
func (m *Manager) adoptLocked(sess *Session) {
	m.session = sess
	m.state = Authenticated

	m.gen++
	gen := m.gen
	if m.timer != nil {
		m.timer.Stop()
	}

	delayMillis := sess.ExpiresAt - m.lead.Milliseconds() - m.now().UnixMilli()
	if delayMillis < 0 {
		delayMillis = 0
	}
	m.timer = time.AfterFunc(time.Duration(delayMillis)*time.Millisecond, func() {
		m.refresh(gen)
	})
}

// clearLocked drops the session and disarms the timer. Idempotent; a
// timer that already fired finds its gen stale and does nothing.
func (m *Manager) clearLocked() {
	m.gen++
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.session = nil
	m.state = Anonymous
}

func (m *Manager) newSession(accessToken string, expiresIn int64, user auth.User) *Session {
	issuedAt := m.now().UnixMilli()
	return &Session{
		AccessToken: accessToken,
		TokenType:   auth.TokenType,
		ExpiresIn:   expiresIn,
		ExpiresAt:   issuedAt + expiresIn*1000,
		User:        user,
	}
}

func (m *Manager) persist(ctx context.Context, sess *Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	return m.store.Set(ctx, Key, string(data))
}
