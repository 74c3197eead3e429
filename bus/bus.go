// Package bus provides a small synchronous event bus that micro-frontend
// shells and auth bridges use to broadcast login and logout transitions.
//
// Delivery is synchronous and in subscription order: Publish returns only
// after every handler registered at publish time has run. There is no replay;
// a subscriber registered after an event was published never sees it.
package bus

import (
	"sync"

	"github.com/mfekit/bff/identity"
)

// Kind classifies an auth event.
type Kind string

const (
	// KindLogin is published after a session is established.
	KindLogin Kind = "login"
	// KindLogout is published after a session is torn down.
	KindLogout Kind = "logout"
)

// Event is what flows through the bus. Profile is set for login events and
// zero for logout events.
type Event struct {
	Kind    Kind
	Profile identity.Profile
}

// Handler receives published events. Handlers run on the publisher's
// goroutine and should not block.
type Handler func(Event)

// Bus is a synchronous publish/subscribe hub. The zero value is not usable;
// call New.
type Bus struct {
	mu     sync.RWMutex
	nextID int
	subs   []subscription
}

type subscription struct {
	id      int
	handler Handler
}

// New returns an empty Bus.
func New() *Bus {
	return &Bus{}
}

// Subscribe registers the handler and returns a function that removes it.
// Calling the returned function more than once is harmless.
func (b *Bus) Subscribe(h Handler) (unsubscribe func()) {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs = append(b.subs, subscription{id: id, handler: h})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			for i, sub := range b.subs {
				if sub.id == id {
					b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
					return
				}
			}
		})
	}
}

// Publish delivers the event to every current subscriber in registration
// order. Handlers run without the bus lock held, so a handler may subscribe
// or unsubscribe; such changes only affect later publishes.
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	handlers := make([]Handler, len(b.subs))
	for i, sub := range b.subs {
		handlers[i] = sub.handler
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		h(e)
	}
}
