package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"kis-trader/internal/config"
	"kis-trader/internal/logger"
	"kis-trader/internal/types"
)

const (
	tokenEndpointPath = "/oauth2/tokenP"

	// Tokens live for 24h; renewing at 23h guarantees no request is ever
	// attempted with a token that expires mid-flight.
	renewMargin = 23 * time.Hour

	defaultTokenLifetime = 24 * time.Hour

	// minRemaining is how much life a token must have left to be trusted
	// without renewal. Renewing a 24h token at the 23h mark leaves exactly
	// this margin, and it applies equally to tokens inherited from an
	// earlier process, which may already be close to expiry.
	minRemaining = defaultTokenLifetime - renewMargin
)

var kst = time.FixedZone("KST", 9*3600)

// Environment is the immutable per-session trading context handed to the
// broker client. It is rebuilt whenever the token is renewed.
type Environment struct {
	Mode               types.Mode
	AppKey             string
	AppSecret          string
	AccountNo          string
	AccountProductCode string
	BaseURL            string
	BaseWSURL          string
	Token              string
}

// BearerHeader returns the authorization header value for REST calls.
func (e *Environment) BearerHeader() string {
	return "Bearer " + e.Token
}

// Session owns authentication: credential validation, token reuse or
// renewal, and construction of the Environment. Build one per process and
// inject it into every dependent component.
type Session struct {
	cfg   *config.Config
	store *TokenStore
	retry RetryPolicy
	httpc *http.Client

	mu        sync.Mutex
	env       *Environment
	expiresAt time.Time

	now func() time.Time
}

func NewSession(cfg *config.Config) *Session {
	return &Session{
		cfg:   cfg,
		store: NewTokenStore(cfg.TokenDir),
		retry: DefaultRetryPolicy(),
		httpc: &http.Client{Timeout: 15 * time.Second},
		now:   time.Now,
	}
}

// Authenticate runs the full transition: validate credentials, reuse a
// stored token when one is still valid, otherwise request a new one with
// retry and persist it.
func (s *Session) Authenticate(ctx context.Context) (*Environment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.authenticate(ctx, false)
}

// EnsureFresh returns the current environment, re-authenticating when the
// token is within the safety margin of its expiry.
func (s *Session) EnsureFresh(ctx context.Context) (*Environment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.env != nil && s.expiresAt.Sub(s.now()) > minRemaining {
		return s.env, nil
	}
	// Inside the margin the stored token is too close to expiry to trust,
	// so force a fresh request instead of reusing it.
	return s.authenticate(ctx, s.env != nil)
}

func (s *Session) authenticate(ctx context.Context, force bool) (*Environment, error) {
	mode := s.cfg.TradingMode()
	appKey, appSecret := s.cfg.ActiveCredentials()

	if err := ValidateCredentials(appKey, mode); err != nil {
		return nil, err
	}

	baseURL, wsURL := s.cfg.ActiveEndpoints()

	var token string
	var expiresAt time.Time
	if !force {
		// A stored token inside the safety margin is not worth inheriting;
		// it would be renewed on the next EnsureFresh anyway.
		if rec := s.store.Load(); rec != nil && rec.ExpiresAt.Sub(s.now()) > minRemaining {
			logger.Debug(ctx, "Reusing stored access token", "expires_at", rec.ExpiresAt)
			token, expiresAt = rec.Token, rec.ExpiresAt
		}
	}

	if token == "" {
		err := s.retry.Do(ctx, func() error {
			t, exp, err := s.requestToken(ctx, baseURL, appKey, appSecret)
			if err != nil {
				return err
			}
			token, expiresAt = t, exp
			return nil
		})
		if err != nil {
			return nil, err
		}
		if err := s.store.Save(token, expiresAt); err != nil {
			return nil, err
		}
		logger.Info(ctx, "Issued new access token", "mode", mode, "expires_at", expiresAt)
	}

	s.env = &Environment{
		Mode:               mode,
		AppKey:             appKey,
		AppSecret:          appSecret,
		AccountNo:          s.cfg.Account.Number,
		AccountProductCode: s.cfg.Account.ProductCode,
		BaseURL:            baseURL,
		BaseWSURL:          wsURL,
		Token:              token,
	}
	s.expiresAt = expiresAt
	return s.env, nil
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
	ExpiredAt   string `json:"access_token_token_expired"` // "2006-01-02 15:04:05" KST
}

// requestToken calls the broker's token endpoint once. 4xx responses come
// back as TokenRequestError (non-retryable); transport failures and 5xx
// come back as plain errors so the retry policy can re-attempt them.
func (s *Session) requestToken(ctx context.Context, baseURL, appKey, appSecret string) (string, time.Time, error) {
	payload, _ := json.Marshal(map[string]string{
		"grant_type": "client_credentials",
		"appkey":     appKey,
		"appsecret":  appSecret,
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+tokenEndpointPath, bytes.NewReader(payload))
	if err != nil {
		return "", time.Time{}, err
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")

	resp, err := s.httpc.Do(req)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("token endpoint unreachable: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("read token response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		// fall through to decode
	case resp.StatusCode >= 500:
		return "", time.Time{}, fmt.Errorf("token endpoint returned %d: %s", resp.StatusCode, body)
	default:
		return "", time.Time{}, &TokenRequestError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return "", time.Time{}, fmt.Errorf("decode token response: %w", err)
	}
	if tr.AccessToken == "" {
		return "", time.Time{}, fmt.Errorf("token endpoint returned an empty access token")
	}

	return tr.AccessToken, s.parseExpiry(tr), nil
}

func (s *Session) parseExpiry(tr tokenResponse) time.Time {
	if tr.ExpiredAt != "" {
		if t, err := time.ParseInLocation("2006-01-02 15:04:05", tr.ExpiredAt, kst); err == nil {
			return t
		}
	}
	if tr.ExpiresIn > 0 {
		return s.now().Add(time.Duration(tr.ExpiresIn) * time.Second)
	}
	return s.now().Add(defaultTokenLifetime)
}
