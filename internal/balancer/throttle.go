package balancer

import "sync"

// Throttle admits at most one in-flight classification probe per user.
// A second request while one is outstanding is rejected immediately, never
// queued; the slot is released when the probe settles, success or failure.
type Throttle struct {
	mu       sync.Mutex
	inFlight map[string]struct{}
}

func NewThrottle() *Throttle {
	return &Throttle{inFlight: make(map[string]struct{})}
}

// TryAcquire claims the user's probe slot. It returns false when a probe is
// already outstanding for that user.
func (t *Throttle) TryAcquire(userID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, busy := t.inFlight[userID]; busy {
		return false
	}
	t.inFlight[userID] = struct{}{}
	return true
}

// Release frees the user's probe slot. Releasing an unheld slot is a no-op.
func (t *Throttle) Release(userID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.inFlight, userID)
}
