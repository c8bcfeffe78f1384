package pubsub

import "sync"

// fanout is a set of buffered subscriber channels with non-blocking delivery.
type fanout struct {
	mu     sync.RWMutex
	subs   []chan Event
	buffer int
}

func newFanout(buffer int) *fanout {
	return &fanout{subs: []chan Event{}, buffer: buffer}
}

func (f *fanout) add() chan Event {
	ch := make(chan Event, f.buffer)
	f.mu.Lock()
	f.subs = append(f.subs, ch)
	f.mu.Unlock()
	return ch
}

// remove closes ch only if it is a member, so foreign channels stay open.
func (f *fanout) remove(ch chan Event) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	for i, sub := range f.subs {
		if sub == ch {
			f.subs = append(f.subs[:i], f.subs[i+1:]...)
			close(ch)
			return true
		}
	}
	return false
}

// broadcast delivers to every subscriber and returns how many were full.
// The read lock is held across sends so a concurrent remove cannot close a channel mid-send.
func (f *fanout) broadcast(event Event) int {
	f.mu.RLock()
	defer f.mu.RUnlock()

	dropped := 0
	for _, ch := range f.subs {
		select {
		case ch <- event:
		default:
			dropped++
		}
	}
	return dropped
}

func (f *fanout) count() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.subs)
}

func (f *fanout) closeAll() {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, ch := range f.subs {
		close(ch)
	}
	f.subs = nil
}
