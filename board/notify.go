package board

import "sync"

// changeBroker fans state change signals out to subscribers. Signals coalesce: a subscriber
// that has not drained its channel sees a single pending signal.
type changeBroker struct {
	mu   sync.Mutex
	subs map[chan struct{}]struct{}
}

func newChangeBroker() *changeBroker {
	return &changeBroker{subs: make(map[chan struct{}]struct{})}
}

func (b *changeBroker) subscribe() chan struct{} {
	ch := make(chan struct{}, 1)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

func (b *changeBroker) unsubscribe(ch chan struct{}) {
	b.mu.Lock()
	delete(b.subs, ch)
	b.mu.Unlock()
}

func (b *changeBroker) notify() {
	b.mu.Lock()
	for ch := range b.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
	b.mu.Unlock()
}

// Subscribe returns a channel signalled after every state change and a func that ends the
// subscription.
func (s *Store) Subscribe() (<-chan struct{}, func()) {
	ch := s.changes.subscribe()
	var once sync.Once
	return ch, func() { once.Do(func() { s.changes.unsubscribe(ch) }) }
}
