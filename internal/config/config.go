// Package config loads the importer configuration from the environment.
//
// Values come from process environment variables, optionally seeded from
// .env and .env.local in the working directory. Process variables win over
// file values.
package config

import (
	"fmt"
	"net/url"
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"tsmximport/internal/storage"
)

// DefaultEnvFiles are loaded by Load when they exist.
var DefaultEnvFiles = []string{".env", ".env.local"}

type DatabaseOptions struct {
	Kind     string `env:"DB_KIND" envDefault:"postgres"`
	Host     string `env:"DB_HOST" envDefault:"localhost"`
	Port     string `env:"DB_PORT"`
	Name     string `env:"DB_NAME" envDefault:"tsmx"`
	User     string `env:"DB_USER" envDefault:"postgres"`
	Password string `env:"DB_PASSWORD"`
	SSLMode  string `env:"DB_SSLMODE" envDefault:"disable"`

	// DSN overrides every other field when set.
	DSN string `env:"DB_DSN"`
}

// ConnectionString builds the driver DSN for Kind.
//
// Edge cases:
//   - sqlite uses Name as the database file path.
//   - Port falls back to 5432 (postgres) or 1433 (sqlserver).
func (d DatabaseOptions) ConnectionString() string {
	if d.DSN != "" {
		return d.DSN
	}
	switch d.Kind {
	case "sqlite":
		return d.Name
	case "sqlserver":
		port := d.Port
		if port == "" {
			port = "1433"
		}
		u := url.URL{
			Scheme:   "sqlserver",
			User:     url.UserPassword(d.User, d.Password),
			Host:     d.Host + ":" + port,
			RawQuery: url.Values{"database": {d.Name}}.Encode(),
		}
		return u.String()
	default:
		port := d.Port
		if port == "" {
			port = "5432"
		}
		return fmt.Sprintf(
			"host=%s port=%s user=%s dbname=%s password=%s sslmode=%s",
			d.Host, port, d.User, d.Name, d.Password, d.SSLMode,
		)
	}
}

// Storage returns the storage.Config for these options.
func (d DatabaseOptions) Storage() storage.Config {
	return storage.Config{Kind: d.Kind, DSN: d.ConnectionString()}
}

type ImportOptions struct {
	Job              string `env:"IMPORT_JOB" envDefault:"tsmx_import"`
	Sheet            string `env:"IMPORT_SHEET"`
	PlanConflict     string `env:"IMPORT_PLAN_CONFLICT" envDefault:"refresh"`
	ContactPolicy    string `env:"IMPORT_CONTACT_POLICY" envDefault:"bulk"`
	StatusFallbackID int64  `env:"IMPORT_STATUS_FALLBACK_ID" envDefault:"1"`
}

type LogOptions struct {
	Dir   string `env:"LOG_DIR" envDefault:"."`
	Level string `env:"LOG_LEVEL" envDefault:"info"`
}

type MetricsOptions struct {
	Backend        string `env:"METRICS_BACKEND" envDefault:"none"`
	PushgatewayURL string `env:"PUSHGATEWAY_URL" envDefault:"http://localhost:9091"`
	Tags           string `env:"METRICS_TAGS"`
}

type S3Options struct {
	Region    string `env:"S3_REGION"`
	Endpoint  string `env:"S3_ENDPOINT"`
	PathStyle bool   `env:"S3_PATH_STYLE" envDefault:"false"`
}

type Config struct {
	DB      DatabaseOptions
	Import  ImportOptions
	Log     LogOptions
	Metrics MetricsOptions
	S3      S3Options
}

// LoadEnv loads the env files that exist and returns how many were loaded.
func LoadEnv(envFiles []string) (int, error) {
	existing := make([]string, 0, len(envFiles))
	for _, f := range envFiles {
		if _, err := os.Stat(f); err == nil {
			existing = append(existing, f)
		}
	}
	if len(existing) == 0 {
		return 0, nil
	}
	return len(existing), godotenv.Load(existing...)
}

// Load reads envFiles (when present) and then the process environment.
func Load(envFiles []string) (*Config, error) {
	if _, err := LoadEnv(envFiles); err != nil {
		return nil, fmt.Errorf("config: load env files: %w", err)
	}
	return parse(env.Options{})
}

// FromMap parses configuration from environ only, ignoring the process
// environment.
func FromMap(environ map[string]string) (*Config, error) {
	return parse(env.Options{Environment: environ})
}

func parse(opts env.Options) (*Config, error) {
	c := &Config{}
	if err := env.ParseWithOptions(c, opts); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate rejects unknown enum values.
func (c *Config) Validate() error {
	switch c.DB.Kind {
	case "postgres", "sqlite", "sqlserver":
	default:
		return fmt.Errorf("config: DB_KIND must be postgres, sqlite or sqlserver, got %q", c.DB.Kind)
	}
	if c.DB.Kind == "sqlite" && c.DB.ConnectionString() == "" {
		return fmt.Errorf("config: DB_NAME or DB_DSN is required for sqlite")
	}
	switch c.Import.PlanConflict {
	case "refresh", "keep":
	default:
		return fmt.Errorf("config: IMPORT_PLAN_CONFLICT must be refresh or keep, got %q", c.Import.PlanConflict)
	}
	switch c.Import.ContactPolicy {
	case "bulk", "per_row":
	default:
		return fmt.Errorf("config: IMPORT_CONTACT_POLICY must be bulk or per_row, got %q", c.Import.ContactPolicy)
	}
	if c.Import.StatusFallbackID < 0 {
		return fmt.Errorf("config: IMPORT_STATUS_FALLBACK_ID must be >= 0, got %d", c.Import.StatusFallbackID)
	}
	switch c.Metrics.Backend {
	case "", "none", "datadog", "pushgateway":
	default:
		return fmt.Errorf("config: METRICS_BACKEND must be none, datadog or pushgateway, got %q", c.Metrics.Backend)
	}
	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("config: LOG_LEVEL: %w", err)
	}
	return nil
}

// LogrusLevel returns the configured log level, defaulting to info.
func (c *Config) LogrusLevel() logrus.Level {
	lvl, err := logrus.ParseLevel(c.Log.Level)
	if err != nil {
		return logrus.InfoLevel
	}
	return lvl
}
