package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/pflag"

	"github.com/Billy-Davies-2/pricing-game/internal/logger"
)

func init() {
	logger.Init()
}

func newFlags(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs)
	if err := fs.Parse(args); err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	return fs
}

func TestLoadDevelopmentDefaults(t *testing.T) {
	cfg, err := Load(newFlags(t, "--env-file", ""))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Environment != EnvDevelopment || cfg.Port != 3000 || cfg.GRPCPort != 50051 {
		t.Errorf("unexpected base settings: %+v", cfg)
	}
	if cfg.DBDriver != "memory" || cfg.PubSubDriver != "embedded" || cfg.AuthMode != "mock" {
		t.Errorf("unexpected development drivers: db=%s pubsub=%s auth=%s", cfg.DBDriver, cfg.PubSubDriver, cfg.AuthMode)
	}
}

func TestLoadProductionPicksNetworkedDefaults(t *testing.T) {
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("DB_DRIVER", "postgres")
	t.Setenv("DATABASE_URL", "postgres://localhost/pricing")
	t.Setenv("AUTHENTIK_URL", "https://auth.example.com/")
	t.Setenv("AUTHENTIK_CLIENT_ID", "id")
	t.Setenv("AUTHENTIK_CLIENT_SECRET", "secret")

	cfg, err := Load(newFlags(t, "--env-file", ""))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.PubSubDriver != "nats" || cfg.AuthMode != "authentik" {
		t.Errorf("production should default to nats and authentik, got %s and %s", cfg.PubSubDriver, cfg.AuthMode)
	}
	if cfg.AuthentikURL != "https://auth.example.com" {
		t.Errorf("trailing slash should be trimmed, got %q", cfg.AuthentikURL)
	}
}

func TestFlagOverridesEnvironment(t *testing.T) {
	t.Setenv("PORT", "4000")
	t.Setenv("DB_DRIVER", "sqlite")

	cfg, err := Load(newFlags(t, "--env-file", "", "--port", "5000"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != 5000 {
		t.Errorf("explicit flag should win, got port %d", cfg.Port)
	}
	if cfg.DBDriver != "sqlite" {
		t.Errorf("environment should beat flag default, got %s", cfg.DBDriver)
	}
}

func TestLoadReadsEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	if err := os.WriteFile(path, []byte("PRICING_TEST_UNUSED=1\nSQLITE_FILE=from-dotenv.db\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		os.Unsetenv("SQLITE_FILE")
		os.Unsetenv("PRICING_TEST_UNUSED")
	})

	cfg, err := Load(newFlags(t, "--env-file", path))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.SQLiteFile != "from-dotenv.db" {
		t.Errorf("expected SQLITE_FILE from dotenv, got %q", cfg.SQLiteFile)
	}
}

func TestLoadMissingEnvFileIsFine(t *testing.T) {
	if _, err := Load(newFlags(t, "--env-file", filepath.Join(t.TempDir(), "absent.env"))); err != nil {
		t.Fatalf("missing env file should be ignored: %v", err)
	}
}

func TestValidateRejections(t *testing.T) {
	base := func() Config {
		return Config{
			Environment:  EnvDevelopment,
			Port:         3000,
			GRPCPort:     50051,
			DBDriver:     "memory",
			PubSubDriver: "embedded",
			AuthMode:     "none",
		}
	}

	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"bad environment", func(c *Config) { c.Environment = "staging" }, "ENVIRONMENT"},
		{"bad port", func(c *Config) { c.Port = 0 }, "PORT"},
		{"unknown db", func(c *Config) { c.DBDriver = "redis" }, "DB_DRIVER"},
		{"postgres without url", func(c *Config) { c.DBDriver = "postgres" }, "DATABASE_URL"},
		{"mongo without uri", func(c *Config) { c.DBDriver = "mongo" }, "MONGODB_URI"},
		{"unknown pubsub", func(c *Config) { c.PubSubDriver = "kafka" }, "PUBSUB_DRIVER"},
		{"unknown auth", func(c *Config) { c.AuthMode = "ldap" }, "AUTH_MODE"},
		{"authentik incomplete", func(c *Config) { c.AuthMode = "authentik" }, "AUTHENTIK_URL"},
		{"memory bus in production", func(c *Config) {
			c.Environment = EnvProduction
			c.PubSubDriver = "memory"
		}, "refused in production"},
		{"mock postgres in production", func(c *Config) {
			c.Environment = EnvProduction
			c.PubSubDriver = "nats"
			c.DBDriver = "mock-postgres"
		}, "local development only"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := base()
			tc.mutate(&c)
			err := c.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("error %q should mention %q", err, tc.want)
			}
		})
	}

	ok := base()
	if err := ok.Validate(); err != nil {
		t.Errorf("base config should validate: %v", err)
	}
}
