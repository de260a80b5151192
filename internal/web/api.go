// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tourbook Contributors

package web

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/tourbook/tourbook/internal/auth"
)

// Environments recognised by the HTTP layer.
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// BasePath is the prefix of every user route.
const BasePath = "/api/v1/users"

// Config configures the HTTP layer.
type Config struct {
	// Environment selects error rendering and cookie security.
	Environment string
	// PublicURL is the externally visible origin used in emailed links.
	// Empty means derive it from the request.
	PublicURL string
	// RequestTimeout bounds the context of every request. Zero disables it.
	RequestTimeout time.Duration
	// CookieTTL overrides the session cookie lifetime. Zero follows the token.
	CookieTTL time.Duration
	// ExposeResetToken returns the reset secret in the forgotPassword response.
	ExposeResetToken bool
	// TrustedProxies is passed to gin; nil trusts no proxy.
	TrustedProxies []string
}

func (c Config) development() bool {
	return c.Environment == EnvDevelopment
}

func (c Config) production() bool {
	return c.Environment == EnvProduction
}

// Authenticator resolves a session token to its user.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*auth.User, error)
}

// RequestObserver records served requests, typically as metrics.
type RequestObserver interface {
	ObserveRequest(method, route string, status int, elapsed time.Duration)
}

// API holds the HTTP handlers and middleware.
type API struct {
	cfg      Config
	sessions Authenticator
	auth     *auth.Service
	reset    *auth.PasswordResetService
	logger   *slog.Logger
	observer RequestObserver
	tracer   trace.Tracer
	now      func() time.Time
}

// Option configures an API.
type Option func(*API)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *API) { a.logger = logger }
}

// WithObserver records every request with o.
func WithObserver(o RequestObserver) Option {
	return func(a *API) { a.observer = o }
}

// WithTracer overrides the tracer used for request spans.
func WithTracer(t trace.Tracer) Option {
	return func(a *API) { a.tracer = t }
}

// WithClock overrides the time source used for cookies.
func WithClock(now func() time.Time) Option {
	return func(a *API) { a.now = now }
}

// NewAPI creates an API.
func NewAPI(cfg Config, svc *auth.Service, reset *auth.PasswordResetService, opts ...Option) (*API, error) {
	if svc == nil {
		return nil, oops.Errorf("auth service is required")
	}
	if reset == nil {
		return nil, oops.Errorf("password reset service is required")
	}
	switch cfg.Environment {
	case "":
		cfg.Environment = EnvDevelopment
	case EnvDevelopment, EnvProduction:
	default:
		return nil, oops.Code("WEB_CONFIG").With("environment", cfg.Environment).Errorf("unknown environment")
	}
	cfg.PublicURL = strings.TrimSuffix(cfg.PublicURL, "/")

	a := &API{
		cfg:      cfg,
		sessions: svc,
		auth:     svc,
		reset:    reset,
		logger:   slog.Default(),
		tracer:   otel.Tracer("github.com/tourbook/tourbook/internal/web"),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Handler builds the gin engine with all routes.
func (a *API) Handler() (*gin.Engine, error) {
	r := gin.New()
	if err := r.SetTrustedProxies(a.cfg.TrustedProxies); err != nil {
		return nil, oops.Code("WEB_CONFIG").Wrap(err)
	}
	r.Use(a.recovery(), a.tracing(), a.requestLog(), a.timeout())
	r.NoRoute(func(c *gin.Context) {
		a.abort(c, notFound(c))
	})

	users := r.Group(BasePath)
	users.POST("/signup", a.signup)
	users.POST("/login", a.login)
	users.GET("/logout", a.logout)
	users.POST("/forgotPassword", a.forgotPassword)
	users.POST("/forgetPassword", a.forgotPassword)
	users.PATCH("/resetPassword/:token", a.resetPassword)
	users.GET("/session", a.IsLoggedIn(), a.session)

	protected := users.Group("", a.Protect())
	protected.PATCH("/updatePassword", a.updatePassword)
	protected.GET("/me", a.me)
	protected.PATCH("/updateMe", a.updateMe)
	protected.DELETE("/deleteMe", a.deleteMe)

	admin := protected.Group("", a.RestrictTo(auth.RoleAdmin))
	admin.GET("/:id", a.getUser)

	return r, nil
}

func notFound(c *gin.Context) error {
	return auth.NotFound("Can't find " + c.Request.URL.Path + " on this server")
}
