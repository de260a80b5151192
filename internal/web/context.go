// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tourbook Contributors

package web

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/tourbook/tourbook/internal/auth"
)

type userCtxKey struct{}

// ginUserKey is where the resolved user is stored on the gin context.
const ginUserKey = "tourbook.user"

// WithUser returns a copy of ctx carrying user.
func WithUser(ctx context.Context, user *auth.User) context.Context {
	return context.WithValue(ctx, userCtxKey{}, user)
}

// UserFromContext returns the user attached by Protect or IsLoggedIn.
func UserFromContext(ctx context.Context) (*auth.User, bool) {
	user, ok := ctx.Value(userCtxKey{}).(*auth.User)
	return user, ok && user != nil
}

// CurrentUser returns the user attached to the gin context, or nil.
func CurrentUser(c *gin.Context) *auth.User {
	v, ok := c.Get(ginUserKey)
	if !ok {
		return nil
	}
	user, _ := v.(*auth.User)
	return user
}

func attachUser(c *gin.Context, user *auth.User) {
	c.Set(ginUserKey, user)
	c.Request = c.Request.WithContext(WithUser(c.Request.Context(), user))
}
