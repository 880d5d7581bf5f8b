// SPDX-License-Identifier: Apache-2.0

// Package eventbus fans dispatcher lifecycle events out to any number of
// local subscribers (the live monitor, the statistics collector) without
// ever letting a slow or absent subscriber affect the protocol engine's
// hot path (spec's expanded §4.8).
package eventbus

import (
	"sync"

	"github.com/chrislenderman/nabuadapter/internal/nabu"
)

// subscriberBuffer bounds how many unconsumed events a subscriber may
// lag behind before new events are dropped for that subscriber.
const subscriberBuffer = 256

// Bus is a mutex-guarded fan-out satisfying nabu.Sink.
type Bus struct {
	mu   sync.RWMutex
	subs map[int]chan nabu.Event
	next int
}

// New returns an empty Bus. Zero subscribers is the steady state.
func New() *Bus {
	return &Bus{subs: make(map[int]chan nabu.Event)}
}

// Publish copies ev to every subscriber's buffered channel. A full
// channel drops the event for that subscriber rather than block the
// caller — Publish is called from the dispatcher's Step path and must
// never stall it.
func (b *Bus) Publish(ev nabu.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Subscribe registers a new listener and returns its channel plus an
// unsubscribe function that closes and removes it.
func (b *Bus) Subscribe() (<-chan nabu.Event, func()) {
	b.mu.Lock()
	id := b.next
	b.next++
	ch := make(chan nabu.Event, subscriberBuffer)
	b.subs[id] = ch
	b.mu.Unlock()

	unsubscribe := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if ch, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(ch)
		}
	}
	return ch, unsubscribe
}
