// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tourbook Contributors

package mail

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/samber/oops"
)

// LogSender writes messages to an outbox writer instead of delivering them.
// The structured log only records recipient and subject; the body, which may
// carry a reset link, goes to out alone.
type LogSender struct {
	mu     sync.Mutex
	out    io.Writer
	logger *slog.Logger
}

// NewLogSender creates a LogSender writing to out.
func NewLogSender(out io.Writer, logger *slog.Logger) *LogSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSender{out: out, logger: logger}
}

// Send implements Sender.
func (s *LogSender) Send(ctx context.Context, msg Message) error {
	s.mu.Lock()
	_, err := fmt.Fprintf(s.out, "----- mail -----\nFrom: %s\nTo: %s\nSubject: %s\n\n%s\n----------------\n",
		msg.From, msg.To, msg.Subject, msg.Body)
	s.mu.Unlock()
	if err != nil {
		return oops.Code("MAIL_OUTBOX_WRITE_FAILED").Wrap(err)
	}
	s.logger.InfoContext(ctx, "mail written to outbox", "to", msg.To, "subject", msg.Subject)
	return nil
}
