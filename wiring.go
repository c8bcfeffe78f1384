package main

import (
	"context"
	"fmt"

	"github.com/Billy-Davies-2/pricing-game/internal/analytics"
	"github.com/Billy-Davies-2/pricing-game/internal/auth"
	"github.com/Billy-Davies-2/pricing-game/internal/clickhouse"
	"github.com/Billy-Davies-2/pricing-game/internal/config"
	"github.com/Billy-Davies-2/pricing-game/internal/dal"
	"github.com/Billy-Davies-2/pricing-game/internal/logger"
	"github.com/Billy-Davies-2/pricing-game/internal/mocks"
	"github.com/Billy-Davies-2/pricing-game/internal/pubsub"
)

// openStore builds the session store named by DB_DRIVER.
func openStore(ctx context.Context, cfg *config.Config) (dal.SessionDAL, error) {
	switch cfg.DBDriver {
	case "memory":
		logger.Info("Using in-memory session store")
		return dal.NewMemoryDAL(), nil
	case "sqlite":
		store, err := dal.NewSQLiteDAL(cfg.SQLiteFile)
		if err != nil {
			return nil, fmt.Errorf("initialize SQLite: %w", err)
		}
		logger.Info("Connected to SQLite database", "file", cfg.SQLiteFile)
		return store, nil
	case "mock-postgres":
		store, err := mocks.NewMockPostgresDAL(cfg.SQLiteFile)
		if err != nil {
			return nil, fmt.Errorf("initialize mock Postgres: %w", err)
		}
		return store, nil
	case "postgres":
		store, err := dal.NewPostgresDAL(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("initialize Postgres: %w", err)
		}
		logger.Info("Connected to Postgres database")
		return store, nil
	case "mongo":
		store, err := dal.NewMongoDAL(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, fmt.Errorf("initialize MongoDB: %w", err)
		}
		logger.Info("Connected to MongoDB", "database", cfg.MongoDatabase)
		return store, nil
	default:
		return nil, fmt.Errorf("unknown DB_DRIVER: %s", cfg.DBDriver)
	}
}

// durableSubscriber is implemented by buses that can redeliver failed events.
type durableSubscriber interface {
	SubscribeJetStream(consumerName string, handler func(pubsub.Event) error) error
}

// eventBus is the process bus plus the upstream it is bridged to.
type eventBus struct {
	*pubsub.PubSub
	durable durableSubscriber
	close   func()
}

func (b *eventBus) Close() {
	b.PubSub.Close()
	b.close()
}

// openBus connects the upstream named by PUBSUB_DRIVER and bridges a local bus to it.
func openBus(cfg *config.Config) (*eventBus, error) {
	switch cfg.PubSubDriver {
	case "embedded":
		opts := pubsub.DefaultEmbeddedNATSOptions()
		opts.Subject = cfg.NATSSubject
		emb, err := pubsub.NewEmbeddedNATSPubSub(opts)
		if err != nil {
			return nil, fmt.Errorf("initialize embedded NATS: %w", err)
		}
		logger.Info("Embedded NATS server ready", "url", emb.ServerURL())
		return &eventBus{PubSub: pubsub.NewWithUpstream(emb), durable: emb, close: emb.Close}, nil
	case "nats":
		nc, err := pubsub.NewNATSPubSub(cfg.NATSURL, cfg.NATSSubject)
		if err != nil {
			return nil, fmt.Errorf("initialize NATS: %w", err)
		}
		logger.Info("Connected to NATS", "url", cfg.NATSURL)
		return &eventBus{PubSub: pubsub.NewWithUpstream(nc), durable: nc, close: nc.Close}, nil
	case "memory":
		mock := mocks.NewMockNATSPubSub()
		return &eventBus{PubSub: pubsub.NewWithUpstream(mock), durable: mock, close: mock.Close}, nil
	default:
		return nil, fmt.Errorf("unknown PUBSUB_DRIVER: %s", cfg.PubSubDriver)
	}
}

// openSink connects ClickHouse when an address is configured.
func openSink(cfg *config.Config) (analytics.Sink, error) {
	if cfg.ClickHouseAddr == "" {
		return mocks.NewMockClickHouseClient(), nil
	}
	client, err := clickhouse.NewClient(cfg.ClickHouseAddr, cfg.ClickHouseDatabase, cfg.ClickHouseUser, cfg.ClickHousePassword)
	if err != nil {
		return nil, fmt.Errorf("initialize ClickHouse: %w", err)
	}
	logger.Info("Connected to ClickHouse", "address", cfg.ClickHouseAddr, "database", cfg.ClickHouseDatabase)
	return client, nil
}

func openAuth(cfg *config.Config) auth.AuthProvider {
	switch cfg.AuthMode {
	case "authentik":
		logger.Info("Instructor routes gated by Authentik", "url", cfg.AuthentikURL, "group", cfg.InstructorGroup)
		return auth.NewAuthentikAuth(&auth.AuthentikConfig{
			BaseURL:         cfg.AuthentikURL,
			ClientID:        cfg.AuthentikClientID,
			ClientSecret:    cfg.AuthentikClientSecret,
			RedirectURL:     cfg.AuthentikRedirectURL,
			InstructorGroup: cfg.InstructorGroup,
		})
	case "mock":
		logger.Info("Using mock authentication for local development (no Authentik server required)")
		return auth.NewMockAuth(cfg.InstructorGroup)
	default:
		logger.Warn("Instructor routes are open (AUTH_MODE=none)")
		return auth.NoAuth{}
	}
}
