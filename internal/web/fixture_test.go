// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tourbook Contributors

package web_test

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tourbook/tourbook/internal/auth"
	"github.com/tourbook/tourbook/internal/auth/authtest"
	"github.com/tourbook/tourbook/internal/web"
)

const (
	joEmail    = "jo@example.com"
	joPassword = "secret123"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	repo    *authtest.MemoryRepository
	mailer  *authtest.RecordingMailer
	clock   *clock
	svc     *auth.Service
	handler http.Handler
}

type fixtureOption func(*fixtureConfig)

type fixtureConfig struct {
	web  web.Config
	repo auth.UserRepository
	opts []web.Option
}

func withConfig(cfg web.Config) fixtureOption {
	return func(f *fixtureConfig) { f.web = cfg }
}

func withRepository(repo auth.UserRepository) fixtureOption {
	return func(f *fixtureConfig) { f.repo = repo }
}

func withAPIOptions(opts ...web.Option) fixtureOption {
	return func(f *fixtureConfig) { f.opts = append(f.opts, opts...) }
}

func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()

	fc := fixtureConfig{web: web.Config{Environment: web.EnvDevelopment, ExposeResetToken: true}}
	for _, opt := range opts {
		opt(&fc)
	}

	f := &fixture{
		repo:   authtest.NewMemoryRepository(),
		mailer: &authtest.RecordingMailer{},
		clock:  &clock{now: time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)},
	}
	repo := fc.repo
	if repo == nil {
		repo = f.repo
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	hasher, err := auth.NewArgon2idHasher(auth.HasherConfig{Time: 1, MemoryKiB: 1024, Threads: 1, Concurrency: 4})
	require.NoError(t, err)
	store, err := auth.NewCredentialStore(repo, hasher, auth.WithStoreClock(f.clock.Now), auth.WithStoreLogger(logger))
	require.NoError(t, err)
	issuer, err := auth.NewTokenIssuer(auth.TokenConfig{
		Secret: []byte("a-test-signing-secret-of-32-bytes!"),
		TTL:    time.Hour,
	}, f.clock.Now)
	require.NoError(t, err)

	svcOpts := []auth.ServiceOption{auth.WithLogger(logger), auth.WithClock(f.clock.Now)}
	f.svc, err = auth.NewAuthService(store, issuer, f.mailer, svcOpts...)
	require.NoError(t, err)
	reset, err := auth.NewPasswordResetService(store, issuer, f.mailer, auth.ResetConfig{Window: 10 * time.Minute}, svcOpts...)
	require.NoError(t, err)

	apiOpts := append([]web.Option{web.WithLogger(logger), web.WithClock(f.clock.Now)}, fc.opts...)
	api, err := web.NewAPI(fc.web, f.svc, reset, apiOpts...)
	require.NoError(t, err)
	f.handler, err = api.Handler()
	require.NoError(t, err)
	return f
}

type request struct {
	method  string
	path    string
	body    any
	token   string
	cookie  string
	headers map[string]string
}

func (f *fixture) do(t *testing.T, r request) *httptest.ResponseRecorder {
	t.Helper()
	var body io.Reader
	if r.body != nil {
		buf, err := json.Marshal(r.body)
		require.NoError(t, err)
		body = bytes.NewReader(buf)
	}
	req := httptest.NewRequest(r.method, web.BasePath+r.path, body)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if r.token != "" {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}
	if r.cookie != "" {
		req.AddCookie(&http.Cookie{Name: web.CookieName, Value: r.cookie})
	}
	for k, v := range r.headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

// signup registers jo and returns the session token.
func (f *fixture) signup(t *testing.T) string {
	t.Helper()
	rec := f.do(t, request{method: http.MethodPost, path: "/signup", body: map[string]string{
		"name":            "Jo Public",
		"email":           joEmail,
		"password":        joPassword,
		"passwordConfirm": joPassword,
	}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return decode(t, rec)["token"].(string)
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body
}

func sessionCookie(rec *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == web.CookieName {
			return c
		}
	}
	return nil
}
