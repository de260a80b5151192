// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tourbook Contributors

package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/samber/oops"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"golang.org/x/sync/errgroup"

	"github.com/tourbook/tourbook/internal/auth"
	"github.com/tourbook/tourbook/internal/auth/postgres"
	"github.com/tourbook/tourbook/internal/config"
	"github.com/tourbook/tourbook/internal/logging"
	"github.com/tourbook/tourbook/internal/mail"
	"github.com/tourbook/tourbook/internal/observability"
	"github.com/tourbook/tourbook/internal/store"
	"github.com/tourbook/tourbook/internal/web"
)

const (
	serviceName     = "tourbook"
	shutdownTimeout = 10 * time.Second
)

// Pool is the database handle the server runs on.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// ServeDeps contains injectable dependencies for the serve command.
// All fields with nil values will use their default implementations.
type ServeDeps struct {
	// PoolConnector opens the database pool.
	// Default: store.Connect
	PoolConnector func(ctx context.Context, cfg store.PoolConfig, logger *slog.Logger) (Pool, error)

	// MigratorFactory creates the migrator used when auto-migrate is enabled.
	// Default: store.NewMigrator
	MigratorFactory MigratorFactory

	// MailOut receives rendered mail when no SMTP relay is configured.
	// Default: os.Stdout
	MailOut io.Writer

	// LogOut receives log records.
	// Default: os.Stderr
	LogOut io.Writer
}

func (d ServeDeps) withDefaults() ServeDeps {
	if d.PoolConnector == nil {
		d.PoolConnector = func(ctx context.Context, cfg store.PoolConfig, logger *slog.Logger) (Pool, error) {
			pool, err := store.Connect(ctx, cfg, logger)
			if err != nil {
				return nil, err
			}
			return pool, nil
		}
	}
	if d.MigratorFactory == nil {
		d.MigratorFactory = defaultMigratorFactory
	}
	if d.MailOut == nil {
		d.MailOut = os.Stdout
	}
	if d.LogOut == nil {
		d.LogOut = os.Stderr
	}
	return d
}

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the user API server",
		Long: `Start the HTTP API together with the metrics and health listener.
The server stops gracefully on SIGINT or SIGTERM.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg, ServeDeps{}, version)
		},
	}
}

// runServe runs the server until ctx ends or a listener fails.
func runServe(ctx context.Context, cfg *config.Config, deps ServeDeps, buildVersion string) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	deps = deps.withDefaults()

	logger, err := logging.New(cfg.Logging(serviceName, buildVersion), deps.LogOut)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	tp := sdktrace.NewTracerProvider(sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.AlwaysSample())))
	otel.SetTracerProvider(tp)
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := tp.Shutdown(sctx); err != nil {
			logger.Warn("tracer provider shutdown failed", "error", err)
		}
	}()

	logger.Info("starting tourbook",
		"environment", cfg.Environment,
		"api_addr", cfg.API.Addr,
		"metrics_addr", cfg.Metrics.Addr,
	)

	pool, err := deps.PoolConnector(ctx, cfg.Pool(), logger)
	if err != nil {
		return oops.Code("DB_CONNECT_FAILED").With("operation", "connect to database").Wrap(err)
	}
	defer pool.Close()
	logger.Info("connected to database")

	if cfg.Database.AutoMigrate {
		if err := autoMigrate(cfg.Database.URL, deps.MigratorFactory, logger); err != nil {
			return err
		}
	}

	obs := observability.NewServer(cfg.Metrics.Addr, pool.Ping, logger)
	metrics := obs.Metrics()

	svc, reset, err := buildServices(cfg, pool, metrics, logger, deps.MailOut)
	if err != nil {
		return err
	}

	api, err := web.NewAPI(cfg.Web(), svc, reset,
		web.WithLogger(logger),
		web.WithObserver(metrics),
		web.WithTracer(tp.Tracer("github.com/tourbook/tourbook/internal/web")),
	)
	if err != nil {
		return err
	}
	handler, err := api.Handler()
	if err != nil {
		return err
	}

	apiServer := web.NewServer(cfg.Server(), handler, logger)
	apiErrs, err := apiServer.Start()
	if err != nil {
		return err
	}

	var obsErrs <-chan error
	if cfg.Metrics.Addr != "" {
		obsErrs, err = obs.Start()
		if err != nil {
			stopServer(logger, "api", apiServer.Stop)
			return err
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		reset.RunSweeper(gctx, cfg.Reset.SweepInterval)
		return nil
	})
	g.Go(func() error { return watchServer(gctx, apiErrs, "api") })
	if obsErrs != nil {
		g.Go(func() error { return watchServer(gctx, obsErrs, "observability") })
	}

	logger.Info("tourbook ready", "api_addr", apiServer.Addr(), "metrics_addr", obs.Addr())

	<-gctx.Done()
	logger.Info("shutting down...")

	stopServer(logger, "api", apiServer.Stop)
	if obsErrs != nil {
		stopServer(logger, "observability", obs.Stop)
	}

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("shutdown complete")
	return nil
}

// buildServices wires the authentication services onto pool.
func buildServices(
	cfg *config.Config,
	pool Pool,
	recorder auth.Recorder,
	logger *slog.Logger,
	mailOut io.Writer,
) (*auth.Service, *auth.PasswordResetService, error) {
	hasher, err := auth.NewArgon2idHasher(cfg.PasswordHasher())
	if err != nil {
		return nil, nil, err
	}
	creds, err := auth.NewCredentialStore(postgres.NewUserRepository(pool), hasher, auth.WithStoreLogger(logger))
	if err != nil {
		return nil, nil, err
	}
	issuer, err := auth.NewTokenIssuer(cfg.Token(), nil)
	if err != nil {
		return nil, nil, err
	}
	mailer, err := newMailer(cfg, logger, mailOut)
	if err != nil {
		return nil, nil, err
	}

	opts := []auth.ServiceOption{auth.WithLogger(logger), auth.WithRecorder(recorder)}
	svc, err := auth.NewAuthService(creds, issuer, mailer, opts...)
	if err != nil {
		return nil, nil, err
	}
	reset, err := auth.NewPasswordResetService(creds, issuer, mailer, cfg.PasswordReset(), opts...)
	if err != nil {
		return nil, nil, err
	}
	return svc, reset, nil
}

// newMailer delivers through SMTP when a relay is configured and writes mail
// to out otherwise.
func newMailer(cfg *config.Config, logger *slog.Logger, out io.Writer) (*mail.Mailer, error) {
	var sender mail.Sender
	if smtpCfg, ok := cfg.SMTP(); ok {
		s, err := mail.NewSMTPSender(smtpCfg)
		if err != nil {
			return nil, err
		}
		sender = s
	} else {
		logger.Warn("no SMTP relay configured, mail is written to stdout")
		sender = mail.NewLogSender(out, logger)
	}
	return mail.New(sender, cfg.Mailer(), logger)
}

// autoMigrate applies pending migrations before the server starts.
func autoMigrate(databaseURL string, factory MigratorFactory, logger *slog.Logger) error {
	m, err := factory(databaseURL)
	if err != nil {
		return oops.Code("MIGRATION_FAILED").With("operation", "open migrator").Wrap(err)
	}
	defer func() {
		if closeErr := m.Close(); closeErr != nil {
			logger.Warn("failed to close migrator", "error", closeErr)
		}
	}()

	if err := m.Up(); err != nil {
		return oops.Code("MIGRATION_FAILED").With("operation", "run migrations").Wrap(err)
	}
	logger.Info("database migrations applied")
	return nil
}

// watchServer returns an error when a listener fails before ctx ends.
func watchServer(ctx context.Context, errCh <-chan error, name string) error {
	select {
	case err, ok := <-errCh:
		if !ok || err == nil {
			return nil
		}
		return oops.Code("SERVER_FAILED").With("server", name).Wrap(err)
	case <-ctx.Done():
		return nil
	}
}

func stopServer(logger *slog.Logger, name string, stop func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := stop(ctx); err != nil {
		logger.Warn("error stopping server", "server", name, "error", err)
	}
}
