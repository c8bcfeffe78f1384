package pubsub

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/Billy-Davies-2/pricing-game/internal/logger"
	"github.com/nats-io/nats.go"
)

// jetStreamBus is the shared core of the NATS-backed buses. Publishes are
// persisted to a JetStream stream; a core subscription on the same subject
// feeds local subscribers so events from every instance fan in here.
type jetStreamBus struct {
	nc      *nats.Conn
	js      nats.JetStreamContext
	subject string
	local   *fanout

	mu       sync.Mutex
	fanIn    *nats.Subscription
	durables []*nats.Subscription
}

func newJetStreamBus(nc *nats.Conn, subject, stream string, storage nats.StorageType) (*jetStreamBus, error) {
	js, err := nc.JetStream()
	if err != nil {
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	if _, err := js.StreamInfo(stream); err != nil {
		cfg := &nats.StreamConfig{
			Name:     stream,
			Subjects: []string{subject},
			Storage:  storage,
		}
		if _, err := js.AddStream(cfg); err != nil {
			return nil, fmt.Errorf("failed to create stream %s: %w", stream, err)
		}
		logger.Info("JetStream stream created", "stream", stream, "subject", subject)
	}

	b := &jetStreamBus{
		nc:      nc,
		js:      js,
		subject: subject,
		local:   newFanout(100),
	}

	sub, err := nc.Subscribe(subject, b.deliver)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", subject, err)
	}
	b.fanIn = sub

	return b, nil
}

func (b *jetStreamBus) deliver(msg *nats.Msg) {
	var event Event
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		logger.Error("Failed to unmarshal event from NATS", "error", err)
		return
	}
	if dropped := b.local.broadcast(event); dropped > 0 {
		logger.Warn("NATS: skipping slow subscribers", "event_type", event.Type, "dropped", dropped)
	}
}

// Publish persists the event to the stream.
func (b *jetStreamBus) Publish(event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		logger.Error("Failed to marshal event", "error", err, "event_type", event.Type)
		return
	}

	if _, err := b.js.Publish(b.subject, data); err != nil {
		logger.Error("Failed to publish to NATS", "error", err, "subject", b.subject, "event_type", event.Type)
		return
	}

	logger.Debug("Published event to NATS", "event_type", event.Type, "subject", b.subject)
}

// Subscribe creates a subscription channel for events
func (b *jetStreamBus) Subscribe() chan Event {
	return b.local.add()
}

// Unsubscribe removes a subscription channel
func (b *jetStreamBus) Unsubscribe(ch chan Event) {
	b.local.remove(ch)
}

// SubscribeJetStream attaches a durable consumer so work is resumed across restarts.
// The handler's error decides between Ack and Nak.
func (b *jetStreamBus) SubscribeJetStream(consumerName string, handler func(Event) error) error {
	sub, err := b.js.Subscribe(b.subject, func(msg *nats.Msg) {
		var event Event
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			logger.Error("Failed to unmarshal durable event", "error", err, "consumer", consumerName)
			_ = msg.Term()
			return
		}

		if err := handler(event); err != nil {
			logger.Warn("Durable consumer failed, redelivering", "consumer", consumerName, "error", err)
			_ = msg.Nak()
			return
		}
		_ = msg.Ack()
	}, nats.Durable(consumerName), nats.ManualAck())
	if err != nil {
		return err
	}

	b.mu.Lock()
	b.durables = append(b.durables, sub)
	b.mu.Unlock()
	return nil
}

// SubscriberCount returns the number of active local subscribers
func (b *jetStreamBus) SubscriberCount() int {
	return b.local.count()
}

func (b *jetStreamBus) close() {
	b.mu.Lock()
	if b.fanIn != nil {
		_ = b.fanIn.Unsubscribe()
	}
	for _, sub := range b.durables {
		_ = sub.Unsubscribe()
	}
	b.durables = nil
	b.mu.Unlock()

	b.local.closeAll()

	if b.nc != nil {
		b.nc.Close()
	}
}
