package sim

import "sync"

// ReinitQueue collects reinitialization requests between frames. Posting
// is cheap and idempotent; the pipeline drains the queue once per frame,
// so any number of requests posted during one frame collapse into a
// single restart.
type ReinitQueue struct {
	mu      sync.Mutex
	pending bool
}

// Post requests a reinitialization.
func (q *ReinitQueue) Post() {
	q.mu.Lock()
	q.pending = true
	q.mu.Unlock()
}

// Drain consumes the pending request, reporting whether one was posted
// since the last drain.
func (q *ReinitQueue) Drain() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	p := q.pending
	q.pending = false
	return p
}
