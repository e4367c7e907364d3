package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/refinery-db/refinery/internal/history"
)

// Default values for configuration fields.
const (
	DefaultMigrationsDir = "./migrations"
	DefaultTableName     = history.DefaultTableName
)

// Config holds the application configuration loaded from file, environment,
// and flags.
type Config struct {
	Driver         string
	DatabaseURL    string
	MigrationsDir  string
	TableName      string
	Grouped        bool
	AbortDivergent bool
	AbortMissing   bool
	WideVersions   bool
}

// yamlConfig is the raw YAML file representation. Booleans are pointers so
// absent keys keep their defaults.
type yamlConfig struct {
	Driver         string `yaml:"driver"`
	DatabaseURL    string `yaml:"database_url"`
	MigrationsDir  string `yaml:"migrations_dir"`
	TableName      string `yaml:"table_name"`
	Grouped        *bool  `yaml:"grouped"`
	AbortDivergent *bool  `yaml:"abort_divergent"`
	AbortMissing   *bool  `yaml:"abort_missing"`
	WideVersions   *bool  `yaml:"wide_versions"`
}

// New returns a Config populated with default values.
func New() *Config {
	return &Config{
		MigrationsDir:  DefaultMigrationsDir,
		TableName:      DefaultTableName,
		AbortDivergent: true,
		AbortMissing:   true,
	}
}

// Load reads a YAML configuration file and returns a Config.
// If allowMissing is true and the file does not exist, defaults are returned.
func Load(path string, allowMissing bool) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && allowMissing {
			return New(), nil
		}

		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}

	var raw yamlConfig
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	return fromYAML(&raw), nil
}

// fromYAML converts the raw YAML representation to a Config with defaults
// applied.
func fromYAML(raw *yamlConfig) *Config {
	cfg := New()

	if raw.Driver != "" {
		cfg.Driver = raw.Driver
	}

	if raw.DatabaseURL != "" {
		cfg.DatabaseURL = raw.DatabaseURL
	}

	if raw.MigrationsDir != "" {
		cfg.MigrationsDir = raw.MigrationsDir
	}

	if raw.TableName != "" {
		cfg.TableName = raw.TableName
	}

	if raw.Grouped != nil {
		cfg.Grouped = *raw.Grouped
	}

	if raw.AbortDivergent != nil {
		cfg.AbortDivergent = *raw.AbortDivergent
	}

	if raw.AbortMissing != nil {
		cfg.AbortMissing = *raw.AbortMissing
	}

	if raw.WideVersions != nil {
		cfg.WideVersions = *raw.WideVersions
	}

	return cfg
}

// MergeEnv overrides config fields from REFINERY_* environment variables.
func MergeEnv(cfg *Config) {
	if v := os.Getenv("REFINERY_DRIVER"); v != "" {
		cfg.Driver = v
	}

	if v := os.Getenv("REFINERY_DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}

	if v := os.Getenv("REFINERY_MIGRATIONS_DIR"); v != "" {
		cfg.MigrationsDir = v
	}

	if v := os.Getenv("REFINERY_TABLE_NAME"); v != "" {
		cfg.TableName = v
	}
}

// ResolveDriver returns the configured driver name, inferring it from the
// database URL scheme when unset.
func (c *Config) ResolveDriver() string {
	if c.Driver != "" {
		return c.Driver
	}

	switch {
	case strings.HasPrefix(c.DatabaseURL, "postgres://"),
		strings.HasPrefix(c.DatabaseURL, "postgresql://"):
		return "postgres"
	case strings.HasPrefix(c.DatabaseURL, "mysql://"):
		return "mysql"
	case strings.HasPrefix(c.DatabaseURL, "sqlserver://"),
		strings.HasPrefix(c.DatabaseURL, "mssql://"):
		return "mssql"
	case strings.HasSuffix(c.DatabaseURL, ".db"),
		strings.HasSuffix(c.DatabaseURL, ".sqlite"),
		strings.HasSuffix(c.DatabaseURL, ".sqlite3"):
		return "sqlite"
	default:
		return ""
	}
}
