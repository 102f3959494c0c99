package domain

import (
	"sync"
	"time"
)

// SessionState is the lifecycle state of one connection.
type SessionState int

const (
	StateUnauthenticated SessionState = iota
	StateAuthenticated
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateUnauthenticated:
		return "UNAUTHENTICATED"
	case StateAuthenticated:
		return "AUTHENTICATED"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// Session tracks the state of a single connection:
// UNAUTHENTICATED -> AUTHENTICATED -> CLOSED. CLOSED is absorbing.
type Session struct {
	ID           string
	memberID     MemberID
	state        SessionState
	subs         map[string]Destination // subscription id -> destination
	CreatedAt    time.Time
	LastActiveAt time.Time
	mu           sync.RWMutex
}

func NewSession(id string) *Session {
	now := time.Now()
	return &Session{
		ID:           id,
		subs:         make(map[string]Destination),
		CreatedAt:    now,
		LastActiveAt: now,
	}
}

// Authenticate binds the session to a member.
func (s *Session) Authenticate(memberID MemberID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case StateClosed:
		return ErrConnectionClosed
	case StateAuthenticated:
		return ErrAlreadyConnected
	}
	s.memberID = memberID
	s.state = StateAuthenticated
	s.LastActiveAt = time.Now()
	return nil
}

// Close moves the session to CLOSED. It reports true only for the call that
// performed the transition, together with the subscriptions held at that point.
func (s *Session) Close() (bool, []Destination) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return false, nil
	}
	s.state = StateClosed
	subs := make([]Destination, 0, len(s.subs))
	for _, d := range s.subs {
		subs = append(subs, d)
	}
	s.subs = make(map[string]Destination)
	return true, subs
}

func (s *Session) State() SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Session) IsAuthenticated() bool {
	return s.State() == StateAuthenticated
}

func (s *Session) IsClosed() bool {
	return s.State() == StateClosed
}

// MemberID returns the bound member, zero before authentication.
func (s *Session) MemberID() MemberID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.memberID
}

// AddSubscription records a subscription. It reports false if the id is
// already in use or the session is not authenticated.
func (s *Session) AddSubscription(id string, d Destination) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateAuthenticated {
		return false
	}
	if _, ok := s.subs[id]; ok {
		return false
	}
	s.subs[id] = d
	s.LastActiveAt = time.Now()
	return true
}

// RemoveSubscription drops a subscription by id.
func (s *Session) RemoveSubscription(id string) (Destination, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.subs[id]
	if ok {
		delete(s.subs, id)
	}
	return d, ok
}

// FindSubscription returns the id of the first subscription to d.
func (s *Session) FindSubscription(d Destination) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for id, sd := range s.subs {
		if sd == d {
			return id, true
		}
	}
	return "", false
}

// SubscribedTo reports whether any subscription of this session targets d.
func (s *Session) SubscribedTo(d Destination) bool {
	_, ok := s.FindSubscription(d)
	return ok
}

func (s *Session) UpdateActivity() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.LastActiveAt = time.Now()
}
