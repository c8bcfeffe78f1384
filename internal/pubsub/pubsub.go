package pubsub

import (
	"time"

	"github.com/Billy-Davies-2/pricing-game/internal/logger"
	"github.com/google/uuid"
)

// Event types published by the game service.
const (
	EventGameConfig   = "game:config"
	EventGameStart    = "game:start"
	EventSessionReset = "session:reset"
	EventTeamJoin     = "teams:join"
	EventTeamRound    = "teams:round"
)

// Event represents a pubsub event
type Event struct {
	ID      string                 `json:"id,omitempty"`
	Type    string                 `json:"type"`
	At      time.Time              `json:"at,omitempty"`
	Payload map[string]interface{} `json:"payload,omitempty"`
}

// NewEvent stamps an event with a fresh ID and the current time.
func NewEvent(eventType string, payload map[string]interface{}) Event {
	return Event{
		ID:      uuid.NewString(),
		Type:    eventType,
		At:      time.Now().UTC(),
		Payload: payload,
	}
}

// Publisher is the write side of the bus.
type Publisher interface {
	Publish(Event)
}

// Bus is anything that can publish and hand out subscriptions.
// Channels returned by Subscribe are closed by Unsubscribe.
type Bus interface {
	Publisher
	Subscribe() chan Event
	Unsubscribe(chan Event)
}

// Upstream is a Bus that broadcasts across process instances.
type Upstream = Bus

// PubSub is the in-process bus, optionally bridged to an Upstream.
type PubSub struct {
	local    *fanout
	upstream Upstream
	bridge   chan Event
}

// New creates a new PubSub instance
func New() *PubSub {
	return &PubSub{local: newFanout(10)}
}

// NewWithUpstream creates a PubSub whose publishes go to upstream.
// Events arriving from upstream, including our own, are delivered to local subscribers.
func NewWithUpstream(upstream Upstream) *PubSub {
	ps := &PubSub{
		local:    newFanout(10),
		upstream: upstream,
		bridge:   upstream.Subscribe(),
	}

	go func() {
		logger.Debug("PubSub: bridged to upstream")
		for event := range ps.bridge {
			ps.local.broadcast(event)
		}
		logger.Debug("PubSub: upstream channel closed")
	}()

	return ps
}

// Subscribe adds a new subscriber and returns a channel for receiving events
func (ps *PubSub) Subscribe() chan Event {
	ch := ps.local.add()
	logger.Debug("PubSub: subscriber added", "totalSubscribers", ps.local.count())
	return ch
}

// Unsubscribe removes a subscriber and closes its channel
func (ps *PubSub) Unsubscribe(ch chan Event) {
	ps.local.remove(ch)
}

// Publish sends an event upstream when bridged, otherwise to local subscribers.
func (ps *PubSub) Publish(event Event) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}

	if ps.upstream != nil {
		logger.Debug("PubSub: forwarding to upstream", "type", event.Type)
		ps.upstream.Publish(event)
		return
	}

	if dropped := ps.local.broadcast(event); dropped > 0 {
		logger.Debug("PubSub: dropped event for slow subscribers", "type", event.Type, "dropped", dropped)
	}
}

// SubscriberCount reports the number of local subscribers.
func (ps *PubSub) SubscriberCount() int {
	return ps.local.count()
}

// Close detaches from upstream and closes every local subscription.
func (ps *PubSub) Close() {
	if ps.upstream != nil && ps.bridge != nil {
		ps.upstream.Unsubscribe(ps.bridge)
	}
	ps.local.closeAll()
}
