// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tourbook Contributors

// Package web exposes the authentication services over HTTP with gin.
//
// Routes live under /api/v1/users. Protect, IsLoggedIn and RestrictTo are gin
// middleware that resolve the session token and gate handlers on the caller's
// role. Errors are rendered from their auth.Kind: operational errors carry
// their message to the client, everything else becomes a generic 500.
package web
