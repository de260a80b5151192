// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tourbook Contributors

package web

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tourbook/tourbook/internal/auth"
)

// Session cookie.
const (
	CookieName      = "jwt"
	LoggedOutValue  = "logged out"
	loggedOutMaxAge = 10 * time.Second
)

func cookieToken(r *http.Request) string {
	cookie, err := r.Cookie(CookieName)
	if err != nil || cookie.Value == LoggedOutValue {
		return ""
	}
	return cookie.Value
}

// secure reports whether cookies for this request need the Secure flag.
func (a *API) secure(c *gin.Context) bool {
	return a.cfg.production() || overHTTPS(c)
}

func overHTTPS(c *gin.Context) bool {
	return c.Request.TLS != nil || strings.EqualFold(c.GetHeader("X-Forwarded-Proto"), "https")
}

func (a *API) setSessionCookie(c *gin.Context, tok auth.Token) {
	expires := tok.ExpiresAt
	if a.cfg.CookieTTL > 0 {
		expires = tok.IssuedAt.Add(a.cfg.CookieTTL)
	}
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     CookieName,
		Value:    tok.Value,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   a.secure(c),
		SameSite: http.SameSiteLaxMode,
	})
}

func (a *API) setLoggedOutCookie(c *gin.Context) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     CookieName,
		Value:    LoggedOutValue,
		Path:     "/",
		Expires:  a.now().Add(loggedOutMaxAge),
		HttpOnly: true,
		Secure:   a.secure(c),
		SameSite: http.SameSiteLaxMode,
	})
}
