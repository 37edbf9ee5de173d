/*
Package config loads runtime configuration.

SOURCES (later wins):
  1. defaults (setDefaults)
  2. optional config file (--config, any format viper reads)
  3. .env file in the working directory (loaded into the environment)
  4. environment variables prefixed ENROLL_, e.g. ENROLL_STORE_PATH
  5. command-line flags bound by the caller with BindPFlag

KEYS:
  ENV             development | production
  PORT            HTTP port for cmd/server
  STORE_DRIVER    csv | sqlite | memory
  STORE_PATH      registry file or database path
  CATALOG_PATH    catalog JSON; empty uses the built-in catalog
  NAME_SCRIPT     any | georgian
  ALLOWED_ORIGINS comma separated CORS origins
  LOG_LEVEL       debug | info | warn | error
  LOG_FORMAT      console | json
*/
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"

	EnvPrefix = "ENROLL"
)

const (
	DriverCSV    = "csv"
	DriverSQLite = "sqlite"
	DriverMemory = "memory"
)

type Config struct {
	Env            string
	Port           int
	Store          StoreConfig
	CatalogPath    string
	NameScript     string
	AllowedOrigins []string
	Log            LogConfig
}

type StoreConfig struct {
	Driver string
	Path   string
}

type LogConfig struct {
	Level  string
	Format string
}

// NewViper returns a viper instance with defaults, the .env file and
// ENROLL_ environment variables wired in. Callers may bind flags on it
// before calling FromViper.
func NewViper() *viper.Viper {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

// Load reads configuration from defaults, .env and the environment.
func Load() (*Config, error) {
	return FromViper(NewViper(), "")
}

// FromViper builds a Config. When file is non-empty it is read first.
func FromViper(v *viper.Viper, file string) (*Config, error) {
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{
		Env:  v.GetString("ENV"),
		Port: v.GetInt("PORT"),
		Store: StoreConfig{
			Driver: strings.ToLower(v.GetString("STORE_DRIVER")),
			Path:   v.GetString("STORE_PATH"),
		},
		CatalogPath:    v.GetString("CATALOG_PATH"),
		NameScript:     v.GetString("NAME_SCRIPT"),
		AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS")),
		Log: LogConfig{
			Level:  v.GetString("LOG_LEVEL"),
			Format: v.GetString("LOG_FORMAT"),
		},
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail late.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case DriverCSV, DriverSQLite:
		if c.Store.Path == "" {
			return errors.New("STORE_PATH is required for the " + c.Store.Driver + " driver")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.Store.Driver)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid PORT %d", c.Port)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("STORE_DRIVER", DriverCSV)
	v.SetDefault("STORE_PATH", "students_registry.csv")
	v.SetDefault("CATALOG_PATH", "")
	v.SetDefault("NAME_SCRIPT", "any")
	v.SetDefault("ALLOWED_ORIGINS", "http://localhost:5173,http://localhost:8080")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "console")
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
