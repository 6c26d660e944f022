// Package lifecycle carries app foreground/background transitions to the
// components that react to them.
package lifecycle

import "sync"

type State string

const (
	Active     State = "active"
	Inactive   State = "inactive"
	Background State = "background"
)

func ParseState(raw string) (State, bool) {
	switch State(raw) {
	case Active, Inactive, Background:
		return State(raw), true
	}
	return "", false
}

// Source delivers app state changes until the returned func is called.
type Source interface {
	Subscribe(fn func(State)) (unsubscribe func())
}

// Broadcaster is a Source fed by Publish.
type Broadcaster struct {
	mu        sync.Mutex
	listeners map[int]func(State)
	next      int
	current   State
}

var _ Source = (*Broadcaster)(nil)

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{listeners: make(map[int]func(State)), current: Active}
}

func (b *Broadcaster) Subscribe(fn func(State)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.next
	b.next++
	b.listeners[id] = fn
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.listeners, id)
	}
}

// Publish records s and notifies every subscriber. Repeating the current
// state is a no-op.
func (b *Broadcaster) Publish(s State) {
	b.mu.Lock()
	if s == b.current {
		b.mu.Unlock()
		return
	}
	b.current = s
	fns := make([]func(State), 0, len(b.listeners))
	for _, fn := range b.listeners {
		fns = append(fns, fn)
	}
	b.mu.Unlock()

	for _, fn := range fns {
		fn(s)
	}
}

func (b *Broadcaster) Current() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current
}
