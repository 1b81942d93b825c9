package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"kis-trader/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func paperConfig(t *testing.T, baseURL string) *config.Config {
	t.Helper()
	cfg := &config.Config{
		Mode:        "paper",
		OrderBudget: 100_000,
		TokenDir:    t.TempDir(),
	}
	cfg.Account.Number = "12345678"
	cfg.Account.ProductCode = "01"
	cfg.Paper.AppKey = "PS-test-key"
	cfg.Paper.AppSecret = "test-secret"
	cfg.Paper.BaseURL = baseURL
	cfg.Paper.WSURL = "ws://example.invalid:31000"
	return cfg
}

func tokenServer(t *testing.T, count *int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != tokenEndpointPath {
			http.NotFound(w, r)
			return
		}
		atomic.AddInt32(count, 1)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"tok-1","expires_in":86400}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func fastRetry() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
		MaxDelay:    time.Millisecond,
		sleep:       func(ctx context.Context, d time.Duration) error { return nil },
	}
}

func TestSessionIssuesToken(t *testing.T) {
	var count int32
	srv := tokenServer(t, &count)
	cfg := paperConfig(t, srv.URL)

	s := NewSession(cfg)
	env, err := s.Authenticate(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "tok-1", env.Token)
	assert.Equal(t, "Bearer tok-1", env.BearerHeader())
	assert.Equal(t, "12345678", env.AccountNo)
	assert.Equal(t, srv.URL, env.BaseURL)
	assert.EqualValues(t, 1, atomic.LoadInt32(&count))
}

func TestSessionReusesStoredTokenAcrossProcesses(t *testing.T) {
	var count int32
	srv := tokenServer(t, &count)
	cfg := paperConfig(t, srv.URL)

	_, err := NewSession(cfg).Authenticate(context.Background())
	require.NoError(t, err)

	// A second session over the same token dir must reuse the persisted
	// token instead of hitting the endpoint again.
	env, err := NewSession(cfg).Authenticate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-1", env.Token)
	assert.EqualValues(t, 1, atomic.LoadInt32(&count))
}

func TestSessionEnsureFreshSkipsRenewalInsideMargin(t *testing.T) {
	var count int32
	srv := tokenServer(t, &count)
	cfg := paperConfig(t, srv.URL)

	s := NewSession(cfg)
	first, err := s.EnsureFresh(context.Background())
	require.NoError(t, err)

	second, err := s.EnsureFresh(context.Background())
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.EqualValues(t, 1, atomic.LoadInt32(&count))
}

func TestSessionEnsureFreshRenewsPastMargin(t *testing.T) {
	var count int32
	srv := tokenServer(t, &count)
	cfg := paperConfig(t, srv.URL)

	s := NewSession(cfg)
	_, err := s.EnsureFresh(context.Background())
	require.NoError(t, err)

	s.now = func() time.Time { return time.Now().Add(renewMargin + time.Minute) }
	_, err = s.EnsureFresh(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 2, atomic.LoadInt32(&count), "a renewal past the margin must request a fresh token")
}

func TestSessionSkipsNearExpiryStoredToken(t *testing.T) {
	var count int32
	srv := tokenServer(t, &count)
	cfg := paperConfig(t, srv.URL)

	// A token persisted by an earlier process with 30 minutes of life left
	// passes the store's expiry check but must not be inherited.
	require.NoError(t, NewTokenStore(cfg.TokenDir).Save("tok-stale", time.Now().Add(30*time.Minute)))

	env, err := NewSession(cfg).Authenticate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-1", env.Token)
	assert.EqualValues(t, 1, atomic.LoadInt32(&count))
}

func TestSessionRenewsInheritedTokenBeforeExpiry(t *testing.T) {
	var count int32
	srv := tokenServer(t, &count)
	cfg := paperConfig(t, srv.URL)

	require.NoError(t, NewTokenStore(cfg.TokenDir).Save("tok-inherit", time.Now().Add(2*time.Hour)))

	s := NewSession(cfg)
	env, err := s.Authenticate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-inherit", env.Token)
	assert.EqualValues(t, 0, atomic.LoadInt32(&count))

	// 90 minutes later the inherited token has 30 minutes left; EnsureFresh
	// must renew instead of trusting it for a full renewal cycle.
	s.now = func() time.Time { return time.Now().Add(90 * time.Minute) }
	env, err = s.EnsureFresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-1", env.Token)
	assert.EqualValues(t, 1, atomic.LoadInt32(&count))
}

func TestSessionCredentialMismatchBlocksNetwork(t *testing.T) {
	var count int32
	srv := tokenServer(t, &count)
	cfg := paperConfig(t, srv.URL)
	cfg.Paper.AppKey = "live-looking-key"

	_, err := NewSession(cfg).Authenticate(context.Background())
	var mismatch *CredentialMismatchError
	require.True(t, errors.As(err, &mismatch), "expected CredentialMismatchError, got %v", err)
	assert.EqualValues(t, 0, atomic.LoadInt32(&count), "no network call may happen on a credential mismatch")
}

func TestSessionDoesNotRetryRejection(t *testing.T) {
	var count int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&count, 1)
		http.Error(w, `{"error_code":"EGW00103"}`, http.StatusUnauthorized)
	}))
	t.Cleanup(srv.Close)

	s := NewSession(paperConfig(t, srv.URL))
	s.retry = fastRetry()

	_, err := s.Authenticate(context.Background())
	var reqErr *TokenRequestError
	require.True(t, errors.As(err, &reqErr), "expected TokenRequestError, got %v", err)
	assert.Equal(t, http.StatusUnauthorized, reqErr.StatusCode)
	assert.EqualValues(t, 1, atomic.LoadInt32(&count), "a 401 must not be retried")
}

func TestSessionRetriesServerErrors(t *testing.T) {
	var count int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&count, 1)
		if n < 3 {
			http.Error(w, "gateway busy", http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"access_token":"tok-retry","expires_in":86400}`))
	}))
	t.Cleanup(srv.Close)

	s := NewSession(paperConfig(t, srv.URL))
	s.retry = fastRetry()

	env, err := s.Authenticate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-retry", env.Token)
	assert.EqualValues(t, 3, atomic.LoadInt32(&count))
}

func TestParseExpiry(t *testing.T) {
	s := NewSession(paperConfig(t, "http://example.invalid"))
	now := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	// The broker's timestamp wins over expires_in.
	got := s.parseExpiry(tokenResponse{ExpiredAt: "2026-02-02 09:00:00", ExpiresIn: 60})
	want := time.Date(2026, 2, 2, 9, 0, 0, 0, kst)
	assert.True(t, got.Equal(want), "got %v, want %v", got, want)

	got = s.parseExpiry(tokenResponse{ExpiresIn: 3600})
	assert.True(t, got.Equal(now.Add(time.Hour)))

	got = s.parseExpiry(tokenResponse{})
	assert.True(t, got.Equal(now.Add(defaultTokenLifetime)))
}
