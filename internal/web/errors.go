// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tourbook Contributors

package web

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tourbook/tourbook/internal/auth"
	"github.com/tourbook/tourbook/pkg/errutil"
)

// genericMessage replaces the message of non-operational errors.
const genericMessage = "Something went very wrong"

// StatusFor maps an error kind to its HTTP status.
func StatusFor(kind auth.Kind) int {
	switch kind {
	case auth.KindValidation:
		return http.StatusBadRequest
	case auth.KindUnauthenticated:
		return http.StatusUnauthorized
	case auth.KindForbidden:
		return http.StatusForbidden
	case auth.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// abort renders err and stops the handler chain.
func (a *API) abort(c *gin.Context, err error) {
	kind := auth.KindOf(err)
	status := StatusFor(kind)

	body := gin.H{"status": "fail"}
	if status >= http.StatusInternalServerError {
		body["status"] = "error"
		errutil.LogErrorContext(c.Request.Context(), a.logger, "request failed", err)
	}

	if kind.Operational() {
		body["message"] = auth.PublicMessage(err)
	} else {
		body["message"] = genericMessage
	}

	if a.cfg.development() {
		body["kind"] = kind.String()
		if code := auth.ErrorCode(err); code != "" {
			body["code"] = code
		}
	}

	_ = c.Error(err)
	c.AbortWithStatusJSON(status, body)
}
