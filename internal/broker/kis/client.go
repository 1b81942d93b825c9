package kis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"kis-trader/internal/auth"
	"kis-trader/internal/logger"
	"kis-trader/internal/types"

	"golang.org/x/time/rate"
)

const (
	hashkeyPath = "/uapi/hashkey"

	liveCallInterval  = 100 * time.Millisecond
	paperCallInterval = 500 * time.Millisecond
)

// Client issues signed REST calls against the broker. Every call carries a
// transaction ID header selecting the operation; paper-mode IDs are the
// live IDs with the leading letter swapped. Calls are paced through a rate
// limiter sized to the per-environment request quota.
type Client struct {
	session *auth.Session
	httpc   *http.Client
	limiter *rate.Limiter
}

func NewClient(session *auth.Session, mode types.Mode) *Client {
	// The paper gateway throttles harder than the live one.
	interval := liveCallInterval
	if mode == types.ModePaper {
		interval = paperCallInterval
	}
	return &Client{
		session: session,
		httpc:   &http.Client{Timeout: 15 * time.Second},
		limiter: rate.NewLimiter(rate.Every(interval), 1),
	}
}

// paperTRID maps a live transaction ID to its paper-mode equivalent.
func paperTRID(trID string) string {
	if trID == "" {
		return trID
	}
	switch trID[0] {
	case 'T', 'J':
		return "V" + trID[1:]
	}
	return trID
}

// Get issues a query call.
func (c *Client) Get(ctx context.Context, path, trID string, query map[string]string) (*Response, error) {
	return c.call(ctx, http.MethodGet, path, trID, query, nil)
}

// Post issues an order or mutation call.
func (c *Client) Post(ctx context.Context, path, trID string, body map[string]string) (*Response, error) {
	return c.call(ctx, http.MethodPost, path, trID, nil, body)
}

func (c *Client) call(ctx context.Context, method, path, trID string, query, body map[string]string) (*Response, error) {
	env, err := c.session.EnsureFresh(ctx)
	if err != nil {
		return nil, err
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	if env.Mode == types.ModePaper {
		trID = paperTRID(trID)
	}

	u := env.BaseURL + path
	if len(query) > 0 {
		q := url.Values{}
		for k, v := range query {
			q.Set(k, v)
		}
		u += "?" + q.Encode()
	}

	var payload []byte
	var reader io.Reader
	if body != nil {
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Authorization", env.BearerHeader())
	req.Header.Set("appkey", env.AppKey)
	req.Header.Set("appsecret", env.AppSecret)
	req.Header.Set("tr_id", trID)
	req.Header.Set("custtype", "P")

	if method == http.MethodPost && payload != nil {
		// Hashkey signing is optional; a failed hashkey call downgrades to
		// an unsigned request rather than failing the order.
		if hash, err := c.hashkey(ctx, env, payload); err != nil {
			logger.Warn(ctx, "Hashkey request failed, sending unsigned", "error", err)
		} else {
			req.Header.Set("hashkey", hash)
		}
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("broker call %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read broker response: %w", err)
	}

	r := newResponse(resp.StatusCode, raw)
	if !r.IsOK() {
		logger.Debug(ctx, "Broker call rejected", "path", path, "tr_id", trID, "status", r.StatusCode, "code", r.ErrorCode(), "message", r.ErrorMessage())
	}
	return r, nil
}

type hashkeyResponse struct {
	Hash string `json:"HASH"`
}

func (c *Client) hashkey(ctx context.Context, env *auth.Environment, payload []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, env.BaseURL+hashkeyPath, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("appkey", env.AppKey)
	req.Header.Set("appsecret", env.AppSecret)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("hashkey endpoint returned %d", resp.StatusCode)
	}

	var hr hashkeyResponse
	if err := json.NewDecoder(resp.Body).Decode(&hr); err != nil {
		return "", err
	}
	if hr.Hash == "" {
		return "", fmt.Errorf("hashkey endpoint returned an empty hash")
	}
	return hr.Hash, nil
}
