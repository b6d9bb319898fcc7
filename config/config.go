/*
Package config loads server configuration.

SOURCES (later wins):
  1. Defaults below
  2. .env file in the working directory (or KINDER_ENV_FILE), if present
  3. Environment variables with the KINDER_ prefix, dots as underscores
     (e.g. KINDER_STORE_DRIVER=mongo, KINDER_AUTH_SECRET=...)
  4. Command-line flags, applied by cmd/server after Load

SEE ALSO:
  - cmd/server/main.go: Flag overrides and wiring
*/
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/tungphan2823/Kindergarten-Activity-Tracking-Application/generic"
)

const envPrefix = "KINDER"

type Config struct {
	Port     int
	LogLevel string

	StoreDriver string // sqlite, mongo, memory
	SQLitePath  string
	MongoURI    string
	MongoDB     string

	AuthEnabled bool
	AuthSecret  string

	Location       *time.Location
	LateAfter      time.Duration
	SerializeChain bool

	CORSOrigins []string

	RollbarToken string
	RollbarEnv   string
}

func defaults(v *viper.Viper) {
	v.SetDefault("http.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.sqlite.path", "kindergarten.db")
	v.SetDefault("store.mongo.uri", "mongodb://localhost:27017")
	v.SetDefault("store.mongo.database", "kindergarten")
	v.SetDefault("auth.enabled", true)
	v.SetDefault("auth.secret", "")
	v.SetDefault("attendance.timezone", "Local")
	v.SetDefault("attendance.late_after", "08:00")
	v.SetDefault("attendance.serialize_chain", true)
	v.SetDefault("cors.origins", []string{"http://localhost:5173", "http://localhost:8080"})
	v.SetDefault("rollbar.token", "")
	v.SetDefault("rollbar.environment", "development")
}

// Load reads defaults, the optional .env file and the environment.
func Load() (*Config, error) {
	envFile := os.Getenv(envPrefix + "_ENV_FILE")
	if envFile == "" {
		envFile = ".env"
	}
	if _, err := os.Stat(envFile); err == nil {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("config: loading %s: %w", envFile, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("config: stat %s: %w", envFile, err)
	}

	v := viper.New()
	defaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	loc, err := loadLocation(v.GetString("attendance.timezone"))
	if err != nil {
		return nil, err
	}
	lateAfter, err := generic.ParseClock(v.GetString("attendance.late_after"))
	if err != nil {
		return nil, fmt.Errorf("config: attendance.late_after: %w", err)
	}

	c := &Config{
		Port:           v.GetInt("http.port"),
		LogLevel:       v.GetString("log.level"),
		StoreDriver:    strings.ToLower(v.GetString("store.driver")),
		SQLitePath:     v.GetString("store.sqlite.path"),
		MongoURI:       v.GetString("store.mongo.uri"),
		MongoDB:        v.GetString("store.mongo.database"),
		AuthEnabled:    v.GetBool("auth.enabled"),
		AuthSecret:     v.GetString("auth.secret"),
		Location:       loc,
		LateAfter:      lateAfter,
		SerializeChain: v.GetBool("attendance.serialize_chain"),
		CORSOrigins:    v.GetStringSlice("cors.origins"),
		RollbarToken:   v.GetString("rollbar.token"),
		RollbarEnv:     v.GetString("rollbar.environment"),
	}
	return c, c.Validate()
}

// Validate rejects combinations the server cannot start with.
func (c *Config) Validate() error {
	switch c.StoreDriver {
	case "sqlite", "mongo", "memory":
	default:
		return fmt.Errorf("config: unknown store.driver %q", c.StoreDriver)
	}
	if c.AuthEnabled && c.AuthSecret == "" {
		return fmt.Errorf("config: auth.secret is required when auth.enabled is true")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("config: invalid http.port %d", c.Port)
	}
	return nil
}

func loadLocation(name string) (*time.Location, error) {
	if name == "" || strings.EqualFold(name, "local") {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("config: attendance.timezone: %w", err)
	}
	return loc, nil
}
