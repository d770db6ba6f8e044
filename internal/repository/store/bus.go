package store

import "sync"

// Op is the kind of write that produced a change event.
type Op string

const (
	// OpInsert marks a newly created record.
	OpInsert Op = "insert"
	// OpUpdate marks a mutated record.
	OpUpdate Op = "update"
)

// ChangeEvent describes one successful write to the store.
// Record is the post-write state of the affected record.
type ChangeEvent struct {
	Table  string
	Op     Op
	Record any
}

// Handler consumes change events. Handlers run synchronously with the
// triggering write and should hand long work off to their own goroutines.
type Handler func(ChangeEvent)

// Subscription is a live registration on the change feed.
type Subscription struct {
	bus      *bus
	id       int
	familyID string
	tables   map[string]struct{}
	handler  Handler

	// mu guards closed. Deliveries hold the read lock while invoking the
	// handler, so Close blocks until in-flight handler calls return.
	mu     sync.RWMutex
	closed bool
}

// deliver invokes the handler unless the subscription is closed.
func (sub *Subscription) deliver(event ChangeEvent) {
	sub.mu.RLock()
	defer sub.mu.RUnlock()

	if sub.closed {
		return
	}

	if sub.tables != nil {
		if _, ok := sub.tables[event.Table]; !ok {
			return
		}
	}

	sub.handler(event)
}

// Close detaches the subscription. It is idempotent, safe to call from any
// goroutine, and guarantees the handler never runs after it returns.
func (sub *Subscription) Close() {
	sub.mu.Lock()
	alreadyClosed := sub.closed
	sub.closed = true
	sub.mu.Unlock()

	if alreadyClosed {
		return
	}

	sub.bus.remove(sub.familyID, sub.id)
}

// bus fans change events out to per-family subscribers.
type bus struct {
	mu        sync.RWMutex
	subs      map[string]map[int]*Subscription
	lastSubID int
}

func newBus() *bus {
	return &bus{
		subs: make(map[string]map[int]*Subscription),
	}
}

func (b *bus) subscribe(familyID string, tables []string, handler Handler) *Subscription {
	var tableSet map[string]struct{}
	if len(tables) > 0 {
		tableSet = make(map[string]struct{}, len(tables))
		for _, table := range tables {
			tableSet[table] = struct{}{}
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.lastSubID++

	sub := &Subscription{
		bus:      b,
		id:       b.lastSubID,
		familyID: familyID,
		tables:   tableSet,
		handler:  handler,
	}

	if b.subs[familyID] == nil {
		b.subs[familyID] = make(map[int]*Subscription)
	}

	b.subs[familyID][sub.id] = sub

	return sub
}

func (b *bus) remove(familyID string, id int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if family := b.subs[familyID]; family != nil {
		delete(family, id)
		if len(family) == 0 {
			delete(b.subs, familyID)
		}
	}
}

// publish delivers the event to every subscriber of the family. Events from
// other families never reach a subscriber, which is what keeps the fanout
// from leaking alerts across families.
func (b *bus) publish(familyID string, event ChangeEvent) {
	b.mu.RLock()
	targets := make([]*Subscription, 0, len(b.subs[familyID]))
	for _, sub := range b.subs[familyID] {
		targets = append(targets, sub)
	}
	b.mu.RUnlock()

	for _, sub := range targets {
		sub.deliver(event)
	}
}

// closeAll closes every live subscription, used on store shutdown.
func (b *bus) closeAll() {
	b.mu.RLock()
	targets := make([]*Subscription, 0)
	for _, family := range b.subs {
		for _, sub := range family {
			targets = append(targets, sub)
		}
	}
	b.mu.RUnlock()

	for _, sub := range targets {
		sub.Close()
	}
}
