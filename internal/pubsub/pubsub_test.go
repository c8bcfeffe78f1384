package pubsub

import (
	"sync"
	"testing"
	"time"
)

func TestNewEventStampsIDAndTime(t *testing.T) {
	a := NewEvent(EventTeamJoin, map[string]interface{}{"key": "alpha"})
	b := NewEvent(EventTeamJoin, nil)

	if a.ID == "" || b.ID == "" {
		t.Fatal("expected event IDs to be set")
	}
	if a.ID == b.ID {
		t.Error("expected distinct event IDs")
	}
	if a.At.IsZero() {
		t.Error("expected event time to be set")
	}
	if a.Type != EventTeamJoin || a.Payload["key"] != "alpha" {
		t.Errorf("unexpected event: %+v", a)
	}
}

func TestSubscribeUnsubscribe(t *testing.T) {
	ps := New()

	ch1 := ps.Subscribe()
	ch2 := ps.Subscribe()
	if ps.SubscriberCount() != 2 {
		t.Fatalf("expected 2 subscribers, got %d", ps.SubscriberCount())
	}

	ps.Unsubscribe(ch1)
	if ps.SubscriberCount() != 1 {
		t.Errorf("expected 1 subscriber after unsubscribe, got %d", ps.SubscriberCount())
	}

	select {
	case _, ok := <-ch1:
		if ok {
			t.Error("channel should be closed after unsubscribe")
		}
	default:
		t.Error("channel should be closed and readable")
	}

	ps.Publish(Event{Type: "still:here"})
	select {
	case ev := <-ch2:
		if ev.Type != "still:here" {
			t.Errorf("expected still:here, got %s", ev.Type)
		}
	case <-time.After(100 * time.Millisecond):
		t.Error("remaining subscriber should receive events")
	}
}

func TestPublishFillsMissingIDAndTime(t *testing.T) {
	ps := New()
	ch := ps.Subscribe()

	ps.Publish(Event{Type: "bare"})

	select {
	case ev := <-ch:
		if ev.ID == "" || ev.At.IsZero() {
			t.Errorf("expected ID and time to be filled, got %+v", ev)
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("timeout waiting for event")
	}
}

func TestPublishMultipleSubscribers(t *testing.T) {
	ps := New()
	subs := []chan Event{ps.Subscribe(), ps.Subscribe(), ps.Subscribe()}

	ps.Publish(NewEvent(EventGameStart, nil))

	for i, ch := range subs {
		select {
		case received := <-ch:
			if received.Type != EventGameStart {
				t.Errorf("subscriber %d: expected %s, got %s", i, EventGameStart, received.Type)
			}
		case <-time.After(100 * time.Millisecond):
			t.Errorf("subscriber %d: timeout waiting for event", i)
		}
	}
}

func TestPublishDropsWhenChannelFull(t *testing.T) {
	ps := New()
	ch := ps.Subscribe()

	for i := 0; i < 15; i++ {
		ps.Publish(Event{Type: "fill"})
	}

	count := 0
	for {
		select {
		case <-ch:
			count++
		default:
			if count != 10 {
				t.Errorf("expected 10 events (buffer size), got %d", count)
			}
			return
		}
	}
}

func TestConcurrentSubscribeUnsubscribePublish(t *testing.T) {
	ps := New()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			ch := ps.Subscribe()
			time.Sleep(time.Millisecond)
			ps.Unsubscribe(ch)
		}()
		go func() {
			defer wg.Done()
			ps.Publish(Event{Type: "concurrent"})
		}()
	}
	wg.Wait()

	if n := ps.SubscriberCount(); n != 0 {
		t.Errorf("expected 0 subscribers after all unsubscribe, got %d", n)
	}
}

func TestUnsubscribeForeignChannelLeavesItOpen(t *testing.T) {
	ps := New()
	ch := make(chan Event, 1)

	ps.Unsubscribe(ch)

	select {
	case ch <- Event{Type: "test"}:
	default:
		t.Error("foreign channel should remain open and writable")
	}
}

func TestCloseClosesSubscribers(t *testing.T) {
	ps := New()
	ch := ps.Subscribe()

	ps.Close()

	if _, ok := <-ch; ok {
		t.Error("expected channel to be closed by Close")
	}
}

// mockUpstream stands in for a cross-instance broker.
type mockUpstream struct {
	mu        sync.Mutex
	published []Event
	local     *fanout
}

func newMockUpstream() *mockUpstream {
	return &mockUpstream{local: newFanout(100)}
}

func (m *mockUpstream) Publish(event Event) {
	m.mu.Lock()
	m.published = append(m.published, event)
	m.mu.Unlock()
	m.local.broadcast(event)
}

func (m *mockUpstream) Subscribe() chan Event     { return m.local.add() }
func (m *mockUpstream) Unsubscribe(ch chan Event) { m.local.remove(ch) }

func (m *mockUpstream) publishedEvents() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Event(nil), m.published...)
}

func TestPublishWithUpstreamLoopsBack(t *testing.T) {
	upstream := newMockUpstream()
	ps := NewWithUpstream(upstream)
	defer ps.Close()

	ch := ps.Subscribe()
	ps.Publish(Event{Type: "upstream:test", Payload: map[string]interface{}{"foo": "bar"}})

	select {
	case received := <-ch:
		if received.Type != "upstream:test" || received.Payload["foo"] != "bar" {
			t.Errorf("unexpected event from upstream: %+v", received)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event from upstream")
	}

	if got := upstream.publishedEvents(); len(got) != 1 {
		t.Errorf("expected 1 event sent upstream, got %d", len(got))
	}
}

func TestUpstreamEventsReachLocalSubscribers(t *testing.T) {
	upstream := newMockUpstream()
	ps := NewWithUpstream(upstream)
	defer ps.Close()

	ch1 := ps.Subscribe()
	ch2 := ps.Subscribe()

	// another instance publishing
	upstream.Publish(Event{Type: "external:event"})

	for i, ch := range []chan Event{ch1, ch2} {
		select {
		case received := <-ch:
			if received.Type != "external:event" {
				t.Errorf("subscriber %d: expected external:event, got %s", i, received.Type)
			}
		case <-time.After(time.Second):
			t.Errorf("subscriber %d: timeout waiting for event", i)
		}
	}
}
