// Package tokenstore holds the short-lived process-wide values that bridge
// asynchronous auth events: a deep link arrives before the screen that will
// consume it is mounted, so the value must live above component lifetime.
//
// Each cell has exactly one canonical writer role per transition (only the
// URL-handling path writes the pending auth URL, only the gate consumes the
// pending route, and so on). That convention is documented here and asserted
// in tests rather than enforced by types.
package tokenstore

import "sync"

// Store owns the pending-value cells. All operations are synchronous and
// non-blocking; none may suspend.
type Store struct {
	mu               sync.Mutex
	pendingAuthURL   string
	pendingRoute     string
	pendingReferral  string
	passwordRecovery bool
}

func New() *Store {
	return &Store{}
}

// SetPendingAuthURL records an auth-type URL seen while no callback consumer
// was ready. Last write wins; the cell never holds two values.
func (s *Store) SetPendingAuthURL(url string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pendingAuthURL = url
}

// PeekPendingAuthURL reads without clearing.
func (s *Store) PeekPendingAuthURL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pendingAuthURL
}

// GetAndClearPendingAuthURL reads and empties the cell in one step.
func (s *Store) GetAndClearPendingAuthURL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	url := s.pendingAuthURL
	s.pendingAuthURL = ""
	return url
}

// SetPendingRoute records a content or referral destination to replay once
// authentication completes.
func (s *Store) SetPendingRoute(route string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pendingRoute = route
}

// PeekPendingRoute reads without clearing.
func (s *Store) PeekPendingRoute() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pendingRoute
}

// GetAndClearPendingRoute reads and empties the cell in one step. A read
// always empties it, so a stored route can never be replayed twice.
func (s *Store) GetAndClearPendingRoute() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	route := s.pendingRoute
	s.pendingRoute = ""
	return route
}

// SetPendingReferralCode records a referral code for attribution after signup.
func (s *Store) SetPendingReferralCode(code string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pendingReferral = code
}

// PeekPendingReferralCode reads without clearing.
func (s *Store) PeekPendingReferralCode() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pendingReferral
}

// GetAndClearPendingReferralCode reads and empties the cell in one step.
func (s *Store) GetAndClearPendingReferralCode() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	code := s.pendingReferral
	s.pendingReferral = ""
	return code
}

// SetPasswordRecovery marks a recovery flow as in progress. Callers must set
// this synchronously, before any asynchronous work, because the originating
// URL hash can be consumed by navigation before an async handler inspects it.
func (s *Store) SetPasswordRecovery() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.passwordRecovery = true
}

// PeekPasswordRecovery reads the flag without clearing it.
func (s *Store) PeekPasswordRecovery() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.passwordRecovery
}

// GetAndClearPasswordRecovery reads and clears the flag in one step. The
// reset-password screen performs this single consuming read.
func (s *Store) GetAndClearPasswordRecovery() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := s.passwordRecovery
	s.passwordRecovery = false
	return v
}
