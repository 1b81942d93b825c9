package kis

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"kis-trader/internal/auth"
	"kis-trader/internal/config"
	"kis-trader/internal/types"

	"golang.org/x/time/rate"
)

// newBrokerServer wires a fake broker gateway that always issues a token
// and signs hashkeys, delegating everything else to mux.
func newBrokerServer(t *testing.T, mux *http.ServeMux) *httptest.Server {
	t.Helper()
	mux.HandleFunc("/oauth2/tokenP", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"access_token":"tok-test","expires_in":86400}`))
	})
	mux.HandleFunc(hashkeyPath, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"HASH":"hash-test"}`))
	})
	return newBrokerServerBare(t, mux)
}

// newBrokerServerBare serves mux as-is; the caller wires the auth routes.
func newBrokerServerBare(t *testing.T, mux *http.ServeMux) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

// newTestClient builds a Client against the fake gateway with the rate
// limiter opened up so tests run at full speed.
func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	cfg := &config.Config{
		Mode:        string(types.ModePaper),
		OrderBudget: 100_000,
		TokenDir:    t.TempDir(),
	}
	cfg.Account.Number = "12345678"
	cfg.Account.ProductCode = "01"
	cfg.Paper.AppKey = "PS-test-key"
	cfg.Paper.AppSecret = "test-secret"
	cfg.Paper.BaseURL = baseURL
	cfg.Paper.WSURL = "ws://example.invalid:31000"

	return &Client{
		session: auth.NewSession(cfg),
		httpc:   &http.Client{Timeout: 15 * time.Second},
		limiter: rate.NewLimiter(rate.Inf, 1),
	}
}
