package consent

import "sync"

// Latch is the single-slot handoff between a Speech Worker that has
// just classified a verbal consent ("my name is Dana, you can record
// me") and the Video Worker, which is the only component with access
// to live frames. Exactly one capture request is in flight at a time;
// a second Arm while one is already pending is coalesced into a
// no-op rather than queued, per spec.md §9's note that consent
// capture is best-effort and does not need to survive every
// utterance.
type Latch struct {
	mu     sync.Mutex
	armed  bool
	name   string
}

// NewLatch returns an unarmed latch.
func NewLatch() *Latch {
	return &Latch{}
}

// Arm requests that the next video frame attempt a capture for name.
// It reports whether the request was accepted (false means a capture
// for some name was already pending and this one was dropped).
func (l *Latch) Arm(name string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.armed {
		return false
	}
	l.armed = true
	l.name = name
	return true
}

// TakeIfArmed atomically clears the latch and returns the pending
// name, if any. Called once per frame by the Video Worker.
func (l *Latch) TakeIfArmed() (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.armed {
		return "", false
	}
	l.armed = false
	name, pending := l.name, true
	l.name = ""
	return name, pending
}
