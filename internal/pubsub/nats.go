package pubsub

import (
	"fmt"

	"github.com/nats-io/nats.go"
)

// DefaultNATSSubject and DefaultStreamName are used when configuration leaves them empty.
const (
	DefaultNATSSubject = "pricing.events"
	DefaultStreamName  = "PRICING_EVENTS"
)

// NATSPubSub is a Bus on an external NATS server with JetStream enabled.
type NATSPubSub struct {
	*jetStreamBus
}

// NewNATSPubSub connects to natsURL and ensures the event stream exists.
func NewNATSPubSub(natsURL, subject string) (*NATSPubSub, error) {
	if subject == "" {
		subject = DefaultNATSSubject
	}

	nc, err := nats.Connect(natsURL, nats.Name("pricing-game"), nats.MaxReconnects(-1))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	bus, err := newJetStreamBus(nc, subject, DefaultStreamName, nats.FileStorage)
	if err != nil {
		nc.Close()
		return nil, err
	}

	return &NATSPubSub{jetStreamBus: bus}, nil
}

// Close closes the NATS connection
func (p *NATSPubSub) Close() {
	p.close()
}
