// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tourbook Contributors

package config

import (
	"github.com/samber/oops"

	"github.com/tourbook/tourbook/internal/auth"
	"github.com/tourbook/tourbook/internal/logging"
	"github.com/tourbook/tourbook/internal/web"
)

func invalid(key string) oops.OopsErrorBuilder {
	return oops.Code("CONFIG_INVALID").With("key", key).With("env", EnvName(key))
}

// Validate checks the settings needed to serve requests.
func (c *Config) Validate() error {
	switch c.Environment {
	case web.EnvDevelopment, web.EnvProduction:
	default:
		return invalid("environment").Errorf("environment must be %q or %q, got %q",
			web.EnvDevelopment, web.EnvProduction, c.Environment)
	}

	if c.Log.Format != "json" && c.Log.Format != "text" {
		return invalid("log.format").Errorf("log format must be 'json' or 'text', got %q", c.Log.Format)
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return invalid("log.level").Errorf("unknown log level %q", c.Log.Level)
	}

	if c.API.Addr == "" {
		return invalid("api.addr").Errorf("api address is required")
	}
	if c.Database.URL == "" {
		return invalid("database.url").Errorf("database url is required")
	}

	if c.JWT.Secret == "" {
		return invalid("jwt.secret").Errorf("jwt secret is required")
	}
	if c.Environment == web.EnvProduction && len(c.JWT.Secret) < auth.MinSecretLength {
		return invalid("jwt.secret").Errorf("jwt secret must be at least %d bytes in production", auth.MinSecretLength)
	}
	if c.JWT.TTL <= 0 {
		return invalid("jwt.ttl").Errorf("jwt ttl must be positive")
	}
	if c.JWT.CookieTTL < 0 {
		return invalid("jwt.cookie_ttl").Errorf("cookie ttl cannot be negative")
	}

	if c.Reset.Window <= 0 {
		return invalid("reset.window").Errorf("reset window must be positive")
	}
	if c.Hasher.Time == 0 || c.Hasher.MemoryKiB == 0 || c.Hasher.Threads == 0 {
		return invalid("hasher").Errorf("argon2id parameters must be positive")
	}

	if c.Mail.From == "" {
		return invalid("mail.from").Errorf("mail sender address is required")
	}
	if c.ExposeResetToken && c.Environment == web.EnvProduction {
		return invalid("expose_reset_token").Errorf("reset tokens cannot be exposed in production")
	}
	return nil
}
