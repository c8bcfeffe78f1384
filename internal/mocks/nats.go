package mocks

import (
	"github.com/Billy-Davies-2/pricing-game/internal/logger"
	"github.com/Billy-Davies-2/pricing-game/internal/pubsub"
)

// MockNATSPubSub stands in for NATS with the in-process bus
type MockNATSPubSub struct {
	*pubsub.PubSub
}

// NewMockNATSPubSub creates an in-process bus for local development
func NewMockNATSPubSub() *MockNATSPubSub {
	logger.Info("Using MOCK NATS/JetStream (in-memory pub/sub) for local development")
	return &MockNATSPubSub{PubSub: pubsub.New()}
}

// SubscribeJetStream mimics a durable consumer on the local bus. Failed
// events are not redelivered.
func (m *MockNATSPubSub) SubscribeJetStream(consumerName string, handler func(pubsub.Event) error) error {
	ch := m.Subscribe()
	go func() {
		for ev := range ch {
			if err := handler(ev); err != nil {
				logger.Warn("Mock durable consumer failed", "consumer", consumerName, "error", err)
			}
		}
	}()
	return nil
}
