package pubsub

import (
	"fmt"
	"time"

	"github.com/Billy-Davies-2/pricing-game/internal/logger"
	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
)

// EmbeddedNATSPubSub runs a NATS server in-process, for development
// without external infrastructure.
type EmbeddedNATSPubSub struct {
	*jetStreamBus
	server *server.Server
}

// EmbeddedNATSOptions configures the embedded NATS server
type EmbeddedNATSOptions struct {
	Port       int // 0 or -1 picks a random free port
	Subject    string
	StreamName string
	StoreDir   string // empty keeps JetStream in memory
}

// DefaultEmbeddedNATSOptions returns sensible defaults for development
func DefaultEmbeddedNATSOptions() EmbeddedNATSOptions {
	return EmbeddedNATSOptions{
		Port:       -1,
		Subject:    DefaultNATSSubject,
		StreamName: DefaultStreamName,
	}
}

// NewEmbeddedNATSPubSub starts the embedded server and connects a bus to it.
func NewEmbeddedNATSPubSub(opts EmbeddedNATSOptions) (*EmbeddedNATSPubSub, error) {
	port := opts.Port
	if port == 0 {
		port = -1
	}
	if opts.Subject == "" {
		opts.Subject = DefaultNATSSubject
	}
	if opts.StreamName == "" {
		opts.StreamName = DefaultStreamName
	}

	serverOpts := &server.Options{
		Port:      port,
		JetStream: true,
		NoSigs:    true,
		StoreDir:  opts.StoreDir,
	}

	ns, err := server.NewServer(serverOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedded NATS server: %w", err)
	}
	ns.SetLogger(&natsLogger{}, false, false)

	go ns.Start()

	if !ns.ReadyForConnections(10 * time.Second) {
		ns.Shutdown()
		return nil, fmt.Errorf("embedded NATS server failed to start within timeout")
	}

	clientURL := ns.ClientURL()
	logger.Info("Embedded NATS server started", "url", clientURL)

	nc, err := nats.Connect(clientURL)
	if err != nil {
		ns.Shutdown()
		return nil, fmt.Errorf("failed to connect to embedded NATS: %w", err)
	}

	storage := nats.MemoryStorage
	if opts.StoreDir != "" {
		storage = nats.FileStorage
	}

	bus, err := newJetStreamBus(nc, opts.Subject, opts.StreamName, storage)
	if err != nil {
		nc.Close()
		ns.Shutdown()
		return nil, err
	}

	// Flush so the fan-in subscription is registered before the first publish.
	if err := nc.Flush(); err != nil {
		bus.close()
		ns.Shutdown()
		return nil, fmt.Errorf("failed to flush embedded NATS connection: %w", err)
	}

	return &EmbeddedNATSPubSub{jetStreamBus: bus, server: ns}, nil
}

// Close shuts down the embedded NATS server
func (p *EmbeddedNATSPubSub) Close() {
	logger.Info("Shutting down embedded NATS server")

	p.close()

	if p.server != nil {
		p.server.Shutdown()
		p.server.WaitForShutdown()
	}
}

// ServerURL returns the client URL of the embedded server.
func (p *EmbeddedNATSPubSub) ServerURL() string {
	return p.server.ClientURL()
}

// natsLogger routes NATS server logs through our logger
type natsLogger struct{}

func (l *natsLogger) Noticef(format string, v ...interface{}) {
	logger.Debug(fmt.Sprintf("[NATS] "+format, v...))
}

func (l *natsLogger) Warnf(format string, v ...interface{}) {
	logger.Warn(fmt.Sprintf("[NATS] "+format, v...))
}

func (l *natsLogger) Fatalf(format string, v ...interface{}) {
	logger.Error(fmt.Sprintf("[NATS] "+format, v...))
}

func (l *natsLogger) Errorf(format string, v ...interface{}) {
	logger.Error(fmt.Sprintf("[NATS] "+format, v...))
}

func (l *natsLogger) Debugf(format string, v ...interface{}) {
	logger.Debug(fmt.Sprintf("[NATS] "+format, v...))
}

func (l *natsLogger) Tracef(format string, v ...interface{}) {
	logger.Debug(fmt.Sprintf("[NATS TRACE] "+format, v...))
}
