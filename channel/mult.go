package channel

import (
	"sync"
)

// Mult is a fan-out over a source channel: every tap receives every message.
// Slow FIFO taps back-pressure the source; sliding taps never do. When the
// source closes, all taps are closed after the remaining messages drain.
//
// The switchboard relies on Mult to wire one component's out-channel to many
// downstream components.
type Mult struct {
	src *Chan

	mu   sync.Mutex
	taps map[*Chan]struct{}
	done chan struct{}
}

// NewMult creates a mult over src and starts its distribution loop.
func NewMult(src *Chan) *Mult {
	m := &Mult{
		src:  src,
		taps: make(map[*Chan]struct{}),
		done: make(chan struct{}),
	}
	go m.run()
	return m
}

// Tap subscribes ch to the fan-out. Messages already in flight are not
// replayed; ch receives everything distributed from now on.
func (m *Mult) Tap(ch *Chan) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.taps[ch] = struct{}{}
}

// Untap removes ch from the fan-out. The channel itself is left open.
func (m *Mult) Untap(ch *Chan) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.taps, ch)
}

// Done is closed once the source has closed and all messages are distributed.
func (m *Mult) Done() <-chan struct{} {
	return m.done
}

func (m *Mult) run() {
	defer close(m.done)

	for {
		msg, ok := m.src.Take()
		if !ok {
			m.closeTaps()
			return
		}

		for _, tap := range m.snapshot() {
			if err := tap.Put(msg); err != nil {
				// Tap was closed from outside; stop delivering to it
				m.Untap(tap)
			}
		}
	}
}

// snapshot copies the tap set so delivery happens without holding the lock.
func (m *Mult) snapshot() []*Chan {
	m.mu.Lock()
	defer m.mu.Unlock()
	taps := make([]*Chan, 0, len(m.taps))
	for tap := range m.taps {
		taps = append(taps, tap)
	}
	return taps
}

func (m *Mult) closeTaps() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for tap := range m.taps {
		tap.Close()
	}
	m.taps = make(map[*Chan]struct{})
}
