// Package eventbus is an in-process publish/subscribe bus for domain
// events (file/task/claim/webhook/settings) fanning out to WebSocket
// subscribers and the webhook trigger (§4.H). Subscriber registration is
// synchronous at startup; publication to subscribers of one workspace is
// ordered, but no cross-workspace ordering is claimed (§5).
package eventbus

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/albri/mdplane-sub004/internal/domain"
)

// Subscriber receives published events synchronously on the publisher's
// goroutine. Implementations that need to do slow work (e.g. deliver a
// webhook) must hand the event off to their own worker instead of
// blocking here, preserving publisher throughput (§9).
type Subscriber func(domain.Event)

// Bus is a process-wide singleton fanning out events to every subscriber.
type Bus struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[uint64]Subscriber
}

// New builds an empty Bus.
func New() *Bus {
	return &Bus{subs: make(map[uint64]Subscriber)}
}

// Subscribe registers a subscriber and returns a function that removes
// it. Startup wiring (the webhook trigger, the scheduler) never calls the
// returned func since those subscriptions live for the process lifetime;
// per-connection subscribers (a WebSocket handler) call it on disconnect
// so the subscriber list doesn't grow without bound.
func (b *Bus) Subscribe(s Subscriber) func() {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = s
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}
}

// Publish fans e out to every subscriber, in per-workspace-preserving
// registration order. A panicking subscriber is recovered and logged so
// one bad subscriber can't take down the publisher.
func (b *Bus) Publish(e domain.Event) {
	b.mu.RLock()
	subs := make([]Subscriber, 0, len(b.subs))
	for _, s := range b.subs {
		subs = append(subs, s)
	}
	b.mu.RUnlock()

	for _, s := range subs {
		func(s Subscriber) {
			defer func() {
				if r := recover(); r != nil {
					log.Error().Interface("panic", r).Str("event", e.Name).Msg("eventbus: subscriber panicked")
				}
			}()
			s(e)
		}(s)
	}
}
