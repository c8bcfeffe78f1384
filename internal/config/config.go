// Package config resolves runtime settings from flags, the environment and
// an optional .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Config holds every runtime setting of the server.
type Config struct {
	Environment string
	Port        int
	GRPCPort    int

	DBDriver      string
	SQLiteFile    string
	DatabaseURL   string
	MongoURI      string
	MongoDatabase string

	PubSubDriver string
	NATSURL      string
	NATSSubject  string

	ClickHouseAddr     string
	ClickHouseDatabase string
	ClickHouseUser     string
	ClickHousePassword string

	AuthMode              string
	AuthentikURL          string
	AuthentikClientID     string
	AuthentikClientSecret string
	AuthentikRedirectURL  string
	InstructorGroup       string

	PublicURL    string
	DefaultsFile string
	LogLevel     string
	LogFormat    string
}

// IsProduction reports whether the server runs with production guards.
func (c *Config) IsProduction() bool {
	return c.Environment == EnvProduction
}

type setting struct {
	name  string
	def   string
	usage string
}

// Flag names map onto environment names by upper-casing and swapping - for _.
var settings = []setting{
	{"environment", EnvDevelopment, "development or production"},
	{"db-driver", "memory", "session store: memory, sqlite, postgres, mock-postgres or mongo"},
	{"sqlite-file", "dev.sqlite", "SQLite database file"},
	{"database-url", "", "Postgres connection string"},
	{"mongodb-uri", "", "MongoDB connection URI"},
	{"mongodb-database", "pricing_game", "MongoDB database name"},
	{"pubsub-driver", "", "event bus: embedded, nats or memory (default embedded in development, nats in production)"},
	{"nats-url", "nats://localhost:4222", "NATS server URL"},
	{"nats-subject", "pricing.events", "NATS subject for game events"},
	{"clickhouse-addr", "", "ClickHouse address; empty uses the in-memory analytics sink"},
	{"clickhouse-database", "default", "ClickHouse database"},
	{"clickhouse-user", "default", "ClickHouse user"},
	{"clickhouse-password", "", "ClickHouse password"},
	{"auth-mode", "", "instructor gate: none, mock or authentik (default mock in development, authentik in production)"},
	{"authentik-url", "", "Authentik base URL"},
	{"authentik-client-id", "", "Authentik OAuth2 client ID"},
	{"authentik-client-secret", "", "Authentik OAuth2 client secret"},
	{"authentik-redirect-url", "http://localhost:3000/auth/callback", "OAuth2 redirect URL"},
	{"instructor-group", "instructors", "group required for instructor routes; empty allows any signed-in user"},
	{"public-url", "http://localhost:3000", "URL teams open to join, encoded in the join QR code"},
	{"defaults-file", "", "YAML file with reset defaults"},
	{"log-level", "info", "debug, info, warn or error"},
	{"log-format", "json", "json or text"},
}

// RegisterFlags declares every setting on fs.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.IntP("port", "p", 3000, "HTTP port (env: PORT)")
	fs.Int("grpc-port", 50051, "gRPC port (env: GRPC_PORT)")
	fs.String("env-file", ".env", "dotenv file loaded when present")
	for _, s := range settings {
		fs.String(s.name, s.def, fmt.Sprintf("%s (env: %s)", s.usage, envName(s.name)))
	}
}

func envName(flag string) string {
	return strings.ToUpper(strings.ReplaceAll(flag, "-", "_"))
}

// Load resolves the configuration. Precedence is explicit flag, then
// environment (including the .env file), then flag default. A nil fs
// loads from the environment alone.
func Load(fs *pflag.FlagSet) (*Config, error) {
	if fs == nil {
		fs = pflag.NewFlagSet("pricing-game", pflag.ContinueOnError)
		RegisterFlags(fs)
	}

	envFile := ".env"
	if f := fs.Lookup("env-file"); f != nil {
		envFile = f.Value.String()
	}
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	var bindErr error
	fs.VisitAll(func(f *pflag.Flag) {
		if err := v.BindPFlag(f.Name, f); err != nil && bindErr == nil {
			bindErr = err
		}
	})
	if bindErr != nil {
		return nil, bindErr
	}

	cfg := &Config{
		Environment: strings.ToLower(v.GetString("environment")),
		Port:        v.GetInt("port"),
		GRPCPort:    v.GetInt("grpc-port"),

		DBDriver:      strings.ToLower(v.GetString("db-driver")),
		SQLiteFile:    v.GetString("sqlite-file"),
		DatabaseURL:   v.GetString("database-url"),
		MongoURI:      v.GetString("mongodb-uri"),
		MongoDatabase: v.GetString("mongodb-database"),

		PubSubDriver: strings.ToLower(v.GetString("pubsub-driver")),
		NATSURL:      v.GetString("nats-url"),
		NATSSubject:  v.GetString("nats-subject"),

		ClickHouseAddr:     v.GetString("clickhouse-addr"),
		ClickHouseDatabase: v.GetString("clickhouse-database"),
		ClickHouseUser:     v.GetString("clickhouse-user"),
		ClickHousePassword: v.GetString("clickhouse-password"),

		AuthMode:              strings.ToLower(v.GetString("auth-mode")),
		AuthentikURL:          strings.TrimSuffix(v.GetString("authentik-url"), "/"),
		AuthentikClientID:     v.GetString("authentik-client-id"),
		AuthentikClientSecret: v.GetString("authentik-client-secret"),
		AuthentikRedirectURL:  v.GetString("authentik-redirect-url"),
		InstructorGroup:       v.GetString("instructor-group"),

		PublicURL:    v.GetString("public-url"),
		DefaultsFile: v.GetString("defaults-file"),
		LogLevel:     v.GetString("log-level"),
		LogFormat:    v.GetString("log-format"),
	}
	if cfg.Environment == "" {
		cfg.Environment = EnvDevelopment
	}
	if cfg.PubSubDriver == "" {
		cfg.PubSubDriver = "embedded"
		if cfg.IsProduction() {
			cfg.PubSubDriver = "nats"
		}
	}
	if cfg.AuthMode == "" {
		cfg.AuthMode = "mock"
		if cfg.IsProduction() {
			cfg.AuthMode = "authentik"
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func oneOf(value string, allowed ...string) bool {
	for _, a := range allowed {
		if value == a {
			return true
		}
	}
	return false
}

// Validate rejects unknown drivers, incomplete connection settings and
// development-only backends in production.
func (c *Config) Validate() error {
	if !oneOf(c.Environment, EnvDevelopment, EnvProduction) {
		return fmt.Errorf("invalid ENVIRONMENT %q (valid: development, production)", c.Environment)
	}
	for name, port := range map[string]int{"PORT": c.Port, "GRPC_PORT": c.GRPCPort} {
		if port < 1 || port > 65535 {
			return fmt.Errorf("invalid %s (must be between 1-65535 inclusive): %d", name, port)
		}
	}

	switch c.DBDriver {
	case "memory", "sqlite", "mock-postgres":
	case "postgres":
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required for the postgres driver")
		}
	case "mongo":
		if c.MongoURI == "" {
			return errors.New("MONGODB_URI is required for the mongo driver")
		}
	default:
		return fmt.Errorf("unknown DB_DRIVER %q (valid: memory, sqlite, postgres, mock-postgres, mongo)", c.DBDriver)
	}

	if !oneOf(c.PubSubDriver, "embedded", "nats", "memory") {
		return fmt.Errorf("unknown PUBSUB_DRIVER %q (valid: embedded, nats, memory)", c.PubSubDriver)
	}

	switch c.AuthMode {
	case "none", "mock":
	case "authentik":
		if c.AuthentikURL == "" || c.AuthentikClientID == "" || c.AuthentikClientSecret == "" {
			return errors.New("AUTHENTIK_URL, AUTHENTIK_CLIENT_ID and AUTHENTIK_CLIENT_SECRET are required for authentik auth")
		}
	default:
		return fmt.Errorf("unknown AUTH_MODE %q (valid: none, mock, authentik)", c.AuthMode)
	}

	if c.IsProduction() {
		if c.PubSubDriver == "memory" {
			return errors.New("PUBSUB_DRIVER=memory cannot fan out across instances and is refused in production")
		}
		if c.DBDriver == "mock-postgres" {
			return errors.New("DB_DRIVER=mock-postgres is for local development only")
		}
	}
	return nil
}
