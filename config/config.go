/*
Package config loads the bot's runtime configuration.

PURPOSE:
  One Config value is built at startup and handed to every component.
  Sources are applied in order, later ones winning:
    1. Defaults()
    2. an optional YAML file (--config)
    3. environment variables
    4. command-line flags (applied by the cli package)

ENVIRONMENT:
  PORT                     HTTP port
  LOG_MODE                 dev | prod
  LOG_HASH_SALT            salt for hashed log fields
  STORE_DRIVER             memory | sqlite | sheets
  SQLITE_PATH              SQLite database path
  GOOGLE_CREDENTIALS_JSON  service-account key (may embed "sheetId")
  SHEET_ID                 spreadsheet ID, overrides the embedded one
  STORE_TIMEOUT            per-call deadline for the row store
  REDIS_ADDR               enables the Redis identity lock when set
  LOCK_TTL                 Redis lock expiry
  IDENTITY_MODE            cpf | email
  RELOAD_INTERVAL          periodic directory reload, 0 disables
  SESSION_TTL              idle conversation expiry, 0 disables
  TIMEZONE                 IANA zone for order ids and receipts

SEE ALSO:
  - cli/root.go: flag overrides
*/
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"gopkg.in/yaml.v3"

	"github.com/warp/rewards-bot/sanitize"
)

// Store drivers.
const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
	DriverSheets = "sheets"
)

type Config struct {
	Port        int    `yaml:"port"`
	LogMode     string `yaml:"log_mode"`
	LogHashSalt string `yaml:"log_hash_salt"`

	StoreDriver     string        `yaml:"store_driver"`
	SQLitePath      string        `yaml:"sqlite_path"`
	CredentialsJSON string        `yaml:"google_credentials_json"`
	SheetID         string        `yaml:"sheet_id"`
	StoreTimeout    time.Duration `yaml:"store_timeout"`

	RedisAddr string        `yaml:"redis_addr"`
	LockTTL   time.Duration `yaml:"lock_ttl"`

	IdentityMode   sanitize.IdentityMode `yaml:"identity_mode"`
	ReloadInterval time.Duration         `yaml:"reload_interval"`
	SessionTTL     time.Duration         `yaml:"session_ttl"`
	Timezone       string                `yaml:"timezone"`
}

// Defaults returns the configuration used when nothing is set.
func Defaults() Config {
	return Config{
		Port:           3000,
		LogMode:        "dev",
		StoreDriver:    DriverSQLite,
		SQLitePath:     "rewards.db",
		StoreTimeout:   10 * time.Second,
		LockTTL:        30 * time.Second,
		IdentityMode:   sanitize.IdentityCPF,
		ReloadInterval: 5 * time.Minute,
		SessionTTL:     30 * time.Minute,
		Timezone:       "America/Sao_Paulo",
	}
}

// Load builds a Config from defaults, the YAML file at path (skipped when
// path is empty) and the process environment.
func Load(path string) (Config, error) {
	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("reading config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parsing config: %w", err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	dur := func(key string, dst *time.Duration) error {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return nil
		}
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = d
		return nil
	}

	if v, ok := lookup("PORT"); ok && strings.TrimSpace(v) != "" {
		port, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("PORT: %w", err)
		}
		c.Port = port
	}
	str("LOG_MODE", &c.LogMode)
	str("LOG_HASH_SALT", &c.LogHashSalt)
	str("STORE_DRIVER", &c.StoreDriver)
	str("SQLITE_PATH", &c.SQLitePath)
	str("GOOGLE_CREDENTIALS_JSON", &c.CredentialsJSON)
	str("SHEET_ID", &c.SheetID)
	str("REDIS_ADDR", &c.RedisAddr)
	str("TIMEZONE", &c.Timezone)

	var mode string
	str("IDENTITY_MODE", &mode)
	if mode != "" {
		c.IdentityMode = sanitize.IdentityMode(strings.ToLower(mode))
	}

	for key, dst := range map[string]*time.Duration{
		"STORE_TIMEOUT":   &c.StoreTimeout,
		"LOCK_TTL":        &c.LockTTL,
		"RELOAD_INTERVAL": &c.ReloadInterval,
		"SESSION_TTL":     &c.SessionTTL,
	} {
		if err := dur(key, dst); err != nil {
			return err
		}
	}
	return nil
}

// Validate reports every problem with c at once.
func (c Config) Validate() error {
	var errs []error
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	switch c.StoreDriver {
	case DriverMemory:
	case DriverSQLite:
		if c.SQLitePath == "" {
			errs = append(errs, errors.New("sqlite driver requires sqlite_path"))
		}
	case DriverSheets:
		if c.CredentialsJSON == "" {
			errs = append(errs, errors.New("sheets driver requires GOOGLE_CREDENTIALS_JSON"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store driver %q", c.StoreDriver))
	}
	if !c.IdentityMode.Valid() {
		errs = append(errs, fmt.Errorf("unknown identity mode %q", c.IdentityMode))
	}
	if c.StoreTimeout < 0 || c.ReloadInterval < 0 || c.SessionTTL < 0 || c.LockTTL < 0 {
		errs = append(errs, errors.New("durations must not be negative"))
	}
	if c.RedisAddr != "" {
		// The lock is held across one fetch and one write, each bounded by
		// StoreTimeout.
		if c.LockTTL <= 2*c.StoreTimeout {
			errs = append(errs, fmt.Errorf("lock_ttl %s must exceed twice store_timeout %s", c.LockTTL, c.StoreTimeout))
		}
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("timezone: %w", err))
	}
	return errors.Join(errs...)
}

// Location returns the configured time zone, UTC when it cannot be loaded.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Addr returns the HTTP listen address.
func (c Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}
