// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tourbook Contributors

package web

import (
	"context"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/samber/oops"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tourbook/tourbook/internal/auth"
)

// Protect requires a valid session. The token comes from the Authorization
// bearer header, or the jwt cookie when no header is sent.
func (a *API) Protect() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c.Request)
		if token == "" {
			token = cookieToken(c.Request)
		}

		user, err := a.sessions.Authenticate(c.Request.Context(), token)
		if err != nil {
			a.abort(c, err)
			return
		}
		attachUser(c, user)
		c.Next()
	}
}

// IsLoggedIn attaches the user behind the jwt cookie when there is one.
// It never rejects a request.
func (a *API) IsLoggedIn() gin.HandlerFunc {
	return func(c *gin.Context) {
		if token := cookieToken(c.Request); token != "" {
			if user, err := a.sessions.Authenticate(c.Request.Context(), token); err == nil {
				attachUser(c, user)
			}
		}
		c.Next()
	}
}

// RestrictTo admits users holding one of roles. It must run after Protect.
func (a *API) RestrictTo(roles ...auth.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := auth.Restrict(CurrentUser(c), roles...); err != nil {
			a.abort(c, err)
			return
		}
		c.Next()
	}
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

func (a *API) recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if p := recover(); p != nil {
				a.logger.ErrorContext(c.Request.Context(), "request panic",
					slog.Group("http", "method", c.Request.Method, "path", c.Request.URL.Path),
					slog.Group("error", "panic", p, "stack", string(debug.Stack())))
				a.abort(c, oops.Code("REQUEST_PANIC").Errorf("panic: %v", p))
			}
		}()
		c.Next()
	}
}

func (a *API) tracing() gin.HandlerFunc {
	return func(c *gin.Context) {
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		ctx, span := a.tracer.Start(c.Request.Context(), c.Request.Method+" "+route,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.request.method", c.Request.Method),
				attribute.String("http.route", route),
			))
		defer span.End()

		c.Request = c.Request.WithContext(ctx)
		c.Next()

		status := c.Writer.Status()
		span.SetAttributes(attribute.Int("http.response.status_code", status))
		if status >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(status))
		}
		if user := CurrentUser(c); user != nil {
			span.SetAttributes(attribute.String("enduser.id", user.ID.String()))
		}
	}
}

func (a *API) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := a.now()
		c.Next()
		elapsed := a.now().Sub(start)

		status := c.Writer.Status()
		level := slog.LevelInfo
		switch {
		case status >= http.StatusInternalServerError:
			level = slog.LevelError
		case status >= http.StatusBadRequest:
			level = slog.LevelWarn
		}

		a.logger.Log(c.Request.Context(), level, "request",
			slog.Group("http",
				"method", c.Request.Method,
				"path", c.Request.URL.Path,
				"route", c.FullPath(),
				"status", status,
				"bytes_sent", c.Writer.Size(),
				"duration_ms", elapsed.Milliseconds(),
			))

		if a.observer != nil {
			a.observer.ObserveRequest(c.Request.Method, c.FullPath(), status, elapsed)
		}
	}
}

func (a *API) timeout() gin.HandlerFunc {
	return func(c *gin.Context) {
		if a.cfg.RequestTimeout <= 0 {
			c.Next()
			return
		}
		ctx, cancel := context.WithTimeout(c.Request.Context(), a.cfg.RequestTimeout)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
