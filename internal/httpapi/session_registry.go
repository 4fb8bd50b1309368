package httpapi

import "sync"

// SessionRegistry tracks live sentiment stream connections per call and
// supports graceful draining. When draining is enabled, new connections are
// rejected while in-flight streams finish naturally.
//
// The mutex makes the draining check and the count increment atomic in Add,
// so no session can slip through between StartDraining and Wait. Counts are
// kept per call so the readiness endpoint can report which streams are still
// holding up a drain.
type SessionRegistry struct {
	mu       sync.Mutex
	draining bool
	perCall  map[string]int
	total    int64
	wg       sync.WaitGroup
}

// NewSessionRegistry creates a new SessionRegistry.
func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{perCall: make(map[string]int)}
}

// Add registers a live connection for a call. Returns false if the registry
// is draining, meaning the connection must be refused.
func (sr *SessionRegistry) Add(callID string) bool {
	sr.mu.Lock()
	defer sr.mu.Unlock()
	if sr.draining {
		return false
	}
	sr.wg.Add(1)
	sr.perCall[callID]++
	sr.total++
	return true
}

// Done marks one connection for the call closed. Must be called exactly once
// per successful Add.
func (sr *SessionRegistry) Done(callID string) {
	sr.mu.Lock()
	if n := sr.perCall[callID]; n <= 1 {
		delete(sr.perCall, callID)
	} else {
		sr.perCall[callID] = n - 1
	}
	sr.total--
	sr.mu.Unlock()
	sr.wg.Done()
}

// StartDraining sets the draining flag so that future Add calls return false.
// Safe to call concurrently with Add; the mutex ensures no Add can slip
// through after StartDraining returns.
func (sr *SessionRegistry) StartDraining() {
	sr.mu.Lock()
	defer sr.mu.Unlock()
	sr.draining = true
}

// IsDraining reports whether the registry is in draining mode.
func (sr *SessionRegistry) IsDraining() bool {
	sr.mu.Lock()
	defer sr.mu.Unlock()
	return sr.draining
}

// ActiveCount returns the number of currently live connections.
func (sr *SessionRegistry) ActiveCount() int64 {
	sr.mu.Lock()
	defer sr.mu.Unlock()
	return sr.total
}

// Snapshot returns the live session count per call, for the readiness
// payload during a drain.
func (sr *SessionRegistry) Snapshot() map[string]int {
	sr.mu.Lock()
	defer sr.mu.Unlock()
	out := make(map[string]int, len(sr.perCall))
	for id, n := range sr.perCall {
		out[id] = n
	}
	return out
}

// Wait blocks until all live connections have closed (all Done calls matched
// Add calls).
func (sr *SessionRegistry) Wait() {
	sr.wg.Wait()
}
