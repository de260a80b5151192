// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tourbook Contributors

package mail_test

import (
	"context"
	"errors"
	"net/textproto"
	"sync"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tourbook/tourbook/internal/auth"
	"github.com/tourbook/tourbook/internal/mail"
	"github.com/tourbook/tourbook/pkg/errutil"
)

type scriptedSender struct {
	mu   sync.Mutex
	errs []error
	sent []mail.Message
}

func (s *scriptedSender) Send(_ context.Context, msg mail.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, msg)
	if len(s.errs) == 0 {
		return nil
	}
	err := s.errs[0]
	s.errs = s.errs[1:]
	return err
}

func (s *scriptedSender) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

func newMailer(t *testing.T, sender mail.Sender) *mail.Mailer {
	t.Helper()
	m, err := mail.New(sender, mail.Config{
		From:        "Tourbook <hello@tourbook.test>",
		ResetWindow: 10 * time.Minute,
		Retries:     2,
		RetryBase:   time.Millisecond,
	}, nil)
	require.NoError(t, err)
	return m
}

func testUser() *auth.User {
	return &auth.User{ID: ulid.Make(), Name: "Leo Gillespie", Email: "leo@example.com"}
}

func TestNew_RequiresSenderAndFrom(t *testing.T) {
	_, err := mail.New(nil, mail.Config{From: "a@b.c"}, nil)
	require.Error(t, err)

	_, err = mail.New(&scriptedSender{}, mail.Config{}, nil)
	errutil.AssertErrorCode(t, err, "MAIL_CONFIG")
}

func TestMailer_SendPasswordReset(t *testing.T) {
	sender := &scriptedSender{}
	m := newMailer(t, sender)

	url := "https://tourbook.test/api/v1/users/resetPassword/abc123"
	require.NoError(t, m.SendPasswordReset(context.Background(), testUser(), url))

	require.Len(t, sender.sent, 1)
	msg := sender.sent[0]
	assert.Equal(t, "leo@example.com", msg.To)
	assert.Equal(t, "Tourbook <hello@tourbook.test>", msg.From)
	assert.Equal(t, "Your password reset token (valid for 10 min)", msg.Subject)
	assert.Contains(t, msg.Body, "Hi Leo,")
	assert.Contains(t, msg.Body, url)
	assert.Contains(t, msg.Body, "valid for 10 minutes")
}

func TestMailer_SendWelcome(t *testing.T) {
	sender := &scriptedSender{}
	m := newMailer(t, sender)

	require.NoError(t, m.SendWelcome(context.Background(), testUser(), "https://tourbook.test/me"))

	require.Len(t, sender.sent, 1)
	assert.Equal(t, "Welcome to the Tourbook family!", sender.sent[0].Subject)
	assert.Contains(t, sender.sent[0].Body, "https://tourbook.test/me")
}

func TestMailer_Retries(t *testing.T) {
	transient := &textproto.Error{Code: 451, Msg: "try again later"}
	permanent := &textproto.Error{Code: 550, Msg: "mailbox unavailable"}

	tests := []struct {
		name      string
		errs      []error
		wantErr   bool
		wantCalls int
	}{
		{name: "recovers from a transient failure", errs: []error{transient}, wantCalls: 2},
		{name: "gives up after the retry budget", errs: []error{transient, transient, transient}, wantErr: true, wantCalls: 3},
		{name: "permanent failure is not retried", errs: []error{permanent}, wantErr: true, wantCalls: 1},
		{name: "unclassified failure is not retried", errs: []error{errors.New("boom")}, wantErr: true, wantCalls: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sender := &scriptedSender{errs: tt.errs}
			err := newMailer(t, sender).SendPasswordReset(context.Background(), testUser(), "https://x/y")
			if tt.wantErr {
				errutil.AssertErrorCode(t, err, "MAIL_SEND_FAILED")
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.wantCalls, sender.calls())
		})
	}
}

func TestMailer_RejectsMissingRecipient(t *testing.T) {
	m := newMailer(t, &scriptedSender{})
	err := m.SendWelcome(context.Background(), &auth.User{ID: ulid.Make()}, "https://x")
	errutil.AssertErrorCode(t, err, "MAIL_NO_RECIPIENT")
}

func TestIsTransient(t *testing.T) {
	assert.True(t, mail.IsTransient(&textproto.Error{Code: 421}))
	assert.False(t, mail.IsTransient(&textproto.Error{Code: 554}))
	assert.False(t, mail.IsTransient(context.Canceled))
	assert.False(t, mail.IsTransient(nil))
}
