// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tourbook Contributors

package errutil_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tourbook/tourbook/pkg/errutil"
)

func TestLogError_WithOopsError(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	err := oops.Code("RESET_CLEAR_FAILED").
		With("user_id", "01HZX").
		Errorf("something failed")

	errutil.LogError(logger, "operation failed", err)

	var logEntry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &logEntry))
	assert.Equal(t, "ERROR", logEntry["level"])
	assert.Equal(t, "operation failed", logEntry["msg"])
	assert.Equal(t, "RESET_CLEAR_FAILED", logEntry["code"])
	assert.Equal(t, map[string]any{"user_id": "01HZX"}, logEntry["context"])
}

func TestLogError_WithStandardError(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	errutil.LogError(logger, "operation failed", errors.New("standard error"))

	var logEntry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &logEntry))
	assert.Equal(t, "ERROR", logEntry["level"])
	assert.Contains(t, logEntry["error"], "standard error")
	assert.NotContains(t, logEntry, "code")
}

type ctxKey struct{}

type ctxHandler struct {
	slog.Handler
	seen *any
}

func (h ctxHandler) Handle(ctx context.Context, r slog.Record) error {
	*h.seen = ctx.Value(ctxKey{})
	return h.Handler.Handle(ctx, r)
}

func TestLogErrorContext_PassesContext(t *testing.T) {
	var buf bytes.Buffer
	var seen any
	logger := slog.New(ctxHandler{Handler: slog.NewJSONHandler(&buf, nil), seen: &seen})

	ctx := context.WithValue(context.Background(), ctxKey{}, "request-42")
	errutil.LogErrorContext(ctx, logger, "failed", errors.New("x"))

	assert.Equal(t, "request-42", seen)
}
