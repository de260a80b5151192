// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tourbook Contributors

// Package config loads the server configuration.
//
// Values are layered, later sources winning: built-in defaults, an optional
// YAML file, TOURBOOK_* environment variables, then command-line flags.
// A .env or config.env file in the working directory is read into the
// environment first without overriding variables that are already set.
package config

import (
	"errors"
	"io/fs"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"
)

// EnvPrefix is the prefix of every environment variable read by Load.
const EnvPrefix = "TOURBOOK_"

// DotEnvFiles are loaded into the process environment before Load reads it.
var DotEnvFiles = []string{".env", "config.env"}

// Config is the complete server configuration.
type Config struct {
	Environment      string `koanf:"environment"`
	PublicURL        string `koanf:"public_url"`
	ExposeResetToken bool   `koanf:"expose_reset_token"`

	API      APIConfig      `koanf:"api"`
	Metrics  MetricsConfig  `koanf:"metrics"`
	Database DatabaseConfig `koanf:"database"`
	JWT      JWTConfig      `koanf:"jwt"`
	Reset    ResetConfig    `koanf:"reset"`
	Hasher   HasherConfig   `koanf:"hasher"`
	Mail     MailConfig     `koanf:"mail"`
	Log      LogConfig      `koanf:"log"`
}

// APIConfig configures the public HTTP listener.
type APIConfig struct {
	Addr              string        `koanf:"addr"`
	ReadHeaderTimeout time.Duration `koanf:"read_header_timeout"`
	ReadTimeout       time.Duration `koanf:"read_timeout"`
	WriteTimeout      time.Duration `koanf:"write_timeout"`
	IdleTimeout       time.Duration `koanf:"idle_timeout"`
	RequestTimeout    time.Duration `koanf:"request_timeout"`
	TrustedProxies    []string      `koanf:"trusted_proxies"`
}

// MetricsConfig configures the observability listener. An empty Addr disables it.
type MetricsConfig struct {
	Addr string `koanf:"addr"`
}

// DatabaseConfig configures the PostgreSQL pool.
type DatabaseConfig struct {
	URL            string `koanf:"url"`
	MaxConns       int32  `koanf:"max_conns"`
	ConnectRetries uint64 `koanf:"connect_retries"`
	AutoMigrate    bool   `koanf:"auto_migrate"`
}

// JWTConfig configures session tokens.
type JWTConfig struct {
	Secret    string        `koanf:"secret"`
	TTL       time.Duration `koanf:"ttl"`
	CookieTTL time.Duration `koanf:"cookie_ttl"`
}

// ResetConfig configures the password reset handshake.
type ResetConfig struct {
	Window        time.Duration `koanf:"window"`
	SweepInterval time.Duration `koanf:"sweep_interval"`
}

// HasherConfig is the argon2id work factor.
type HasherConfig struct {
	Time        uint32 `koanf:"time"`
	MemoryKiB   uint32 `koanf:"memory_kib"`
	Threads     uint8  `koanf:"threads"`
	Concurrency int    `koanf:"concurrency"`
}

// MailConfig configures outgoing mail. Without an SMTP host, mail is written
// to standard output.
type MailConfig struct {
	From    string     `koanf:"from"`
	Retries uint64     `koanf:"retries"`
	SMTP    SMTPConfig `koanf:"smtp"`
}

// SMTPConfig configures the SMTP relay.
type SMTPConfig struct {
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	Username string `koanf:"username"`
	Password string `koanf:"password"`
}

// LogConfig configures logging.
type LogConfig struct {
	Format string `koanf:"format"`
	Level  string `koanf:"level"`
}

// defaults returns the built-in values keyed by their dotted koanf path.
func defaults() map[string]any {
	return map[string]any{
		"environment":              "development",
		"public_url":               "",
		"expose_reset_token":       false,
		"api.addr":                 ":8080",
		"api.read_header_timeout":  5 * time.Second,
		"api.read_timeout":         15 * time.Second,
		"api.write_timeout":        15 * time.Second,
		"api.idle_timeout":         60 * time.Second,
		"api.request_timeout":      30 * time.Second,
		"api.trusted_proxies":      []string{},
		"metrics.addr":             "127.0.0.1:9100",
		"database.url":             "",
		"database.max_conns":       10,
		"database.connect_retries": 5,
		"database.auto_migrate":    false,
		"jwt.secret":               "",
		"jwt.ttl":                  90 * 24 * time.Hour,
		"jwt.cookie_ttl":           time.Duration(0),
		"reset.window":             10 * time.Minute,
		"reset.sweep_interval":     time.Hour,
		"hasher.time":              1,
		"hasher.memory_kib":        64 * 1024,
		"hasher.threads":           4,
		"hasher.concurrency":       0,
		"mail.from":                "Tourbook <noreply@tourbook.local>",
		"mail.retries":             3,
		"mail.smtp.host":           "",
		"mail.smtp.port":           587,
		"mail.smtp.username":       "",
		"mail.smtp.password":       "",
		"log.format":               "json",
		"log.level":                "info",
	}
}

// listKeys are split on commas when read from the environment.
var listKeys = map[string]bool{"api.trusted_proxies": true}

// EnvName returns the environment variable that sets key.
func EnvName(key string) string {
	return EnvPrefix + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// Keys returns every known configuration key in sorted order.
func Keys() []string {
	d := defaults()
	keys := make([]string, 0, len(d))
	for k := range d {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// RegisterFlags adds the flags Load understands to fs.
func RegisterFlags(flags *pflag.FlagSet) {
	d := Default()
	flags.String(flagName("environment"), d.Environment, "runtime environment (development or production)")
	flags.String(flagName("public_url"), d.PublicURL, "public origin used in emailed links")
	flags.String(flagName("api.addr"), d.API.Addr, "API listen address")
	flags.String(flagName("metrics.addr"), d.Metrics.Addr, "metrics and health listen address (empty disables)")
	flags.String(flagName("database.url"), d.Database.URL, "PostgreSQL connection URL")
	flags.Bool(flagName("database.auto_migrate"), d.Database.AutoMigrate, "apply pending migrations at startup")
	flags.String(flagName("log.format"), d.Log.Format, "log format (json or text)")
	flags.String(flagName("log.level"), d.Log.Level, "log level (debug, info, warn, error)")
}

// flagName turns a dotted key into a flag name, e.g. database.auto_migrate
// becomes database-auto-migrate.
func flagName(key string) string {
	return strings.NewReplacer(".", "-", "_", "-").Replace(key)
}

// Default returns the built-in configuration.
func Default() *Config {
	k := koanf.New(".")
	for key, val := range defaults() {
		_ = k.Set(key, val)
	}
	cfg := &Config{}
	_ = k.Unmarshal("", cfg)
	return cfg
}

// Load builds the configuration. path names an optional YAML file; flags may
// be nil.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	if err := LoadDotEnv(DotEnvFiles...); err != nil {
		return nil, err
	}

	k := koanf.New(".")
	known := defaults()
	for key, val := range known {
		if err := k.Set(key, val); err != nil {
			return nil, oops.Code("CONFIG_DEFAULTS").With("key", key).Wrap(err)
		}
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, oops.Code("CONFIG_FILE").With("path", path).Wrap(err)
		}
	}

	byEnv := make(map[string]string, len(known))
	for key := range known {
		byEnv[EnvName(key)] = key
	}
	envProvider := env.ProviderWithValue(EnvPrefix, ".", func(name, value string) (string, any) {
		key, ok := byEnv[name]
		if !ok {
			return "", nil
		}
		if listKeys[key] {
			return key, splitList(value)
		}
		return key, value
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, oops.Code("CONFIG_ENV").Wrap(err)
	}

	if flags != nil {
		byFlag := make(map[string]string, len(known))
		for key := range known {
			byFlag[flagName(key)] = key
		}
		flagProvider := posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
			key, ok := byFlag[f.Name]
			if !ok {
				return "", nil
			}
			return key, posflag.FlagVal(flags, f)
		})
		if err := k.Load(flagProvider, nil); err != nil {
			return nil, oops.Code("CONFIG_FLAGS").Wrap(err)
		}
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, oops.Code("CONFIG_DECODE").Wrap(err)
	}
	return cfg, nil
}

// LoadDotEnv reads each file that exists into the process environment.
// Variables that are already set keep their value.
func LoadDotEnv(files ...string) error {
	for _, name := range files {
		if _, err := os.Stat(name); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(name); err != nil {
			return oops.Code("CONFIG_DOTENV").With("file", name).Wrap(err)
		}
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
