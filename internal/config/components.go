// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tourbook Contributors

package config

import (
	"time"

	"github.com/tourbook/tourbook/internal/auth"
	"github.com/tourbook/tourbook/internal/logging"
	"github.com/tourbook/tourbook/internal/mail"
	"github.com/tourbook/tourbook/internal/store"
	"github.com/tourbook/tourbook/internal/web"
)

// Logging returns the logger options for service at version.
func (c *Config) Logging(service, version string) logging.Options {
	return logging.Options{
		Service: service,
		Version: version,
		Format:  c.Log.Format,
		Level:   c.Log.Level,
	}
}

// Pool returns the database pool settings.
func (c *Config) Pool() store.PoolConfig {
	return store.PoolConfig{
		URL:            c.Database.URL,
		MaxConns:       c.Database.MaxConns,
		ConnectRetries: c.Database.ConnectRetries,
	}
}

// Token returns the session token settings.
func (c *Config) Token() auth.TokenConfig {
	return auth.TokenConfig{
		Secret: []byte(c.JWT.Secret),
		TTL:    c.JWT.TTL,
	}
}

// PasswordReset returns the reset handshake settings.
func (c *Config) PasswordReset() auth.ResetConfig {
	return auth.ResetConfig{Window: c.Reset.Window}
}

// PasswordHasher returns the argon2id settings.
func (c *Config) PasswordHasher() auth.HasherConfig {
	return auth.HasherConfig{
		Time:        c.Hasher.Time,
		MemoryKiB:   c.Hasher.MemoryKiB,
		Threads:     c.Hasher.Threads,
		Concurrency: c.Hasher.Concurrency,
	}
}

// Mailer returns the mail composition settings.
func (c *Config) Mailer() mail.Config {
	return mail.Config{
		From:        c.Mail.From,
		ResetWindow: c.Reset.Window,
		Retries:     c.Mail.Retries,
		RetryBase:   500 * time.Millisecond,
	}
}

// SMTP returns the relay settings and whether a relay is configured.
func (c *Config) SMTP() (mail.SMTPConfig, bool) {
	return mail.SMTPConfig{
		Host:     c.Mail.SMTP.Host,
		Port:     c.Mail.SMTP.Port,
		Username: c.Mail.SMTP.Username,
		Password: c.Mail.SMTP.Password,
	}, c.Mail.SMTP.Host != ""
}

// Web returns the HTTP layer settings.
func (c *Config) Web() web.Config {
	return web.Config{
		Environment:      c.Environment,
		PublicURL:        c.PublicURL,
		RequestTimeout:   c.API.RequestTimeout,
		CookieTTL:        c.JWT.CookieTTL,
		ExposeResetToken: c.ExposeResetToken,
		TrustedProxies:   c.API.TrustedProxies,
	}
}

// Server returns the API listener settings.
func (c *Config) Server() web.ServerConfig {
	return web.ServerConfig{
		Addr:              c.API.Addr,
		ReadHeaderTimeout: c.API.ReadHeaderTimeout,
		ReadTimeout:       c.API.ReadTimeout,
		WriteTimeout:      c.API.WriteTimeout,
		IdleTimeout:       c.API.IdleTimeout,
	}
}
