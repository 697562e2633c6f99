package store

import (
	"sync"

	"qrticket/models"
)

// broadcaster fans ticket changes out to subscribers.
type broadcaster struct {
	mu   sync.RWMutex
	next int
	subs map[int]func(models.TicketChange)
}

func newBroadcaster() *broadcaster {
	return &broadcaster{subs: make(map[int]func(models.TicketChange))}
}

func (b *broadcaster) subscribe(fn func(models.TicketChange)) func() {
	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = fn
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
		})
	}
}

func (b *broadcaster) publish(c models.TicketChange) {
	b.mu.RLock()
	fns := make([]func(models.TicketChange), 0, len(b.subs))
	for _, fn := range b.subs {
		fns = append(fns, fn)
	}
	b.mu.RUnlock()

	for _, fn := range fns {
		fn(c)
	}
}
