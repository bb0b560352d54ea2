// Package fanout delivers room snapshots to subscribers through conflating
// channels: a subscriber that falls behind skips straight to the newest
// snapshot instead of blocking the publisher.
package fanout

import (
	"sync"

	"github.com/dkeye/Poker/internal/core"
	"github.com/dkeye/Poker/internal/domain"
)

type Sub struct {
	mu      sync.Mutex
	ch      chan core.Snapshot
	closed  bool
	onClose func()
	once    sync.Once
}

// NewSub returns a standalone subscription; onClose runs once on Close.
func NewSub(onClose func()) *Sub {
	return &Sub{ch: make(chan core.Snapshot, 1), onClose: onClose}
}

func (s *Sub) C() <-chan core.Snapshot { return s.ch }

// Deliver replaces any undelivered snapshot with snap. It never blocks.
func (s *Sub) Deliver(snap core.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case <-s.ch:
	default:
	}
	s.ch <- snap
}

func (s *Sub) Close() {
	s.once.Do(func() {
		if s.onClose != nil {
			s.onClose()
		}
		s.mu.Lock()
		s.closed = true
		close(s.ch)
		s.mu.Unlock()
	})
}

// Broker keeps subscribers per room for stores that publish in-process.
type Broker struct {
	mu   sync.Mutex
	subs map[domain.RoomID]map[*Sub]struct{}
}

func NewBroker() *Broker {
	return &Broker{subs: make(map[domain.RoomID]map[*Sub]struct{})}
}

// Subscribe registers a subscriber and hands it initial before any later
// Publish. Callers hold their store lock so no commit slips in between.
func (b *Broker) Subscribe(id domain.RoomID, initial core.Snapshot) *Sub {
	var s *Sub
	s = NewSub(func() { b.remove(id, s) })
	s.Deliver(initial)

	b.mu.Lock()
	defer b.mu.Unlock()
	set, ok := b.subs[id]
	if !ok {
		set = make(map[*Sub]struct{})
		b.subs[id] = set
	}
	set[s] = struct{}{}
	return s
}

func (b *Broker) Publish(snap core.Snapshot) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for s := range b.subs[snap.RoomID] {
		s.Deliver(snap)
	}
}

func (b *Broker) Count(id domain.RoomID) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[id])
}

func (b *Broker) remove(id domain.RoomID, s *Sub) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if set, ok := b.subs[id]; ok {
		delete(set, s)
		if len(set) == 0 {
			delete(b.subs, id)
		}
	}
}
