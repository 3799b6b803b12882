package marketdata

import "sync"

// Trigger coalesces scan requests. Firing while a request is already pending
// is a no-op on the channel; the dirty keys accumulate instead, so a burst of
// book updates produces exactly one wakeup carrying all of them. Pacing
// between scans is the consumer's job, not the trigger's.
type Trigger struct {
	mu      sync.Mutex
	pending map[string]struct{}
	ch      chan struct{}
}

// NewTrigger returns an armed, empty trigger.
func NewTrigger() *Trigger {
	return &Trigger{
		pending: make(map[string]struct{}),
		ch:      make(chan struct{}, 1),
	}
}

// Fire marks the key dirty and wakes the consumer if it is not already
// pending a wakeup. Fire never blocks.
func (t *Trigger) Fire(key string) {
	t.mu.Lock()
	t.pending[key] = struct{}{}
	t.mu.Unlock()

	select {
	case t.ch <- struct{}{}:
	default:
	}
}

// C is the wakeup channel. Receive once, then call Drain.
func (t *Trigger) C() <-chan struct{} {
	return t.ch
}

// Drain returns the keys dirtied since the last drain and clears them.
func (t *Trigger) Drain() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.pending) == 0 {
		return nil
	}
	keys := make([]string, 0, len(t.pending))
	for k := range t.pending {
		keys = append(keys, k)
	}
	t.pending = make(map[string]struct{})
	return keys
}

// Pending reports the number of dirty keys without clearing them.
func (t *Trigger) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}
