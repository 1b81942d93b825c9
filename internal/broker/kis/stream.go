package kis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"kis-trader/internal/auth"
	"kis-trader/internal/interfaces"
	"kis-trader/internal/logger"

	"github.com/gorilla/websocket"
)

const (
	approvalPath = "/oauth2/Approval"

	// The broker rejects connections carrying more than this many live
	// subscriptions, so registration past the cap fails before connecting.
	maxSubscriptions = 40
)

type subscription struct {
	trID string
	keys []string
}

// trMeta is populated from the server's first control frame for a
// transaction and consulted on every subsequent data frame.
type trMeta struct {
	key string
	iv  string
}

// Stream is the WebSocket quote feed. It authenticates separately from the
// REST layer via an approval key, replays all registered subscriptions on
// every (re)connect, and decrypts data frames the server marks encrypted.
type Stream struct {
	session *auth.Session
	httpc   *http.Client
	dialer  *websocket.Dialer

	maxReconnects  int
	reconnectDelay time.Duration

	mu       sync.Mutex
	subs     []subscription
	subCount int
	colmap   map[string]trMeta
}

var _ interfaces.MarketStream = (*Stream)(nil)

func NewStream(session *auth.Session, maxReconnects int, reconnectDelay time.Duration) *Stream {
	return &Stream{
		session:        session,
		httpc:          &http.Client{Timeout: 15 * time.Second},
		dialer:         websocket.DefaultDialer,
		maxReconnects:  maxReconnects,
		reconnectDelay: reconnectDelay,
		colmap:         make(map[string]trMeta),
	}
}

// Register adds a subscription for a transaction and its keys (symbols).
// Exceeding the broker's cap is a configuration error.
func (s *Stream) Register(trID string, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.subCount+len(keys) > maxSubscriptions {
		return fmt.Errorf("subscription cap exceeded: %d registered, %d requested, max %d",
			s.subCount, len(keys), maxSubscriptions)
	}
	s.subs = append(s.subs, subscription{trID: trID, keys: keys})
	s.subCount += len(keys)
	return nil
}

// Run connects and dispatches ticks until ctx is cancelled. Connection
// loss is retried up to the configured attempt cap with a fixed delay
// before the failure is surfaced to the owning process.
func (s *Stream) Run(ctx context.Context, onTick func(interfaces.Tick)) error {
	attempts := 0
	for {
		err := s.runOnce(ctx, onTick)
		if ctx.Err() != nil {
			return nil
		}

		attempts++
		if attempts > s.maxReconnects {
			return fmt.Errorf("market data stream: giving up after %d reconnect attempts: %w", s.maxReconnects, err)
		}
		logger.Warn(ctx, "Market data stream disconnected, reconnecting", "attempt", attempts, "delay", s.reconnectDelay, "error", err)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(s.reconnectDelay):
		}
	}
}

func (s *Stream) runOnce(ctx context.Context, onTick func(interfaces.Tick)) error {
	env, err := s.session.EnsureFresh(ctx)
	if err != nil {
		return err
	}

	approvalKey, err := s.approvalKey(ctx, env)
	if err != nil {
		return err
	}

	conn, _, err := s.dialer.DialContext(ctx, env.BaseWSURL, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", env.BaseWSURL, err)
	}
	defer conn.Close()

	// Unblock the read loop when the context is cancelled.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	if err := s.replaySubscriptions(conn, approvalKey); err != nil {
		return err
	}
	logger.Info(ctx, "Market data stream connected", "subscriptions", s.subCount)

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		s.handleFrame(ctx, conn, msg, onTick)
	}
}

func (s *Stream) replaySubscriptions(conn *websocket.Conn, approvalKey string) error {
	s.mu.Lock()
	subs := make([]subscription, len(s.subs))
	copy(subs, s.subs)
	s.mu.Unlock()

	for _, sub := range subs {
		for _, key := range sub.keys {
			msg := map[string]any{
				"header": map[string]string{
					"approval_key": approvalKey,
					"custtype":     "P",
					"tr_type":      "1",
					"content-type": "utf-8",
				},
				"body": map[string]any{
					"input": map[string]string{
						"tr_id":  sub.trID,
						"tr_key": key,
					},
				},
			}
			if err := conn.WriteJSON(msg); err != nil {
				return fmt.Errorf("subscribe %s/%s: %w", sub.trID, key, err)
			}
		}
	}
	return nil
}

// Data frames are pipe-delimited and start with '0' (plain) or '1'
// (encrypted); everything else is a JSON control frame.
func (s *Stream) handleFrame(ctx context.Context, conn *websocket.Conn, msg []byte, onTick func(interfaces.Tick)) {
	if len(msg) == 0 {
		return
	}
	if msg[0] == '0' || msg[0] == '1' {
		s.handleDataFrame(ctx, msg, onTick)
		return
	}
	s.handleControlFrame(ctx, conn, msg)
}

func (s *Stream) handleDataFrame(ctx context.Context, msg []byte, onTick func(interfaces.Tick)) {
	parts := strings.SplitN(string(msg), "|", 4)
	if len(parts) < 4 {
		logger.Debug(ctx, "Dropping malformed data frame", "frame", string(msg))
		return
	}
	encrypted := parts[0] == "1"
	trID := parts[1]
	payload := parts[3]

	if encrypted {
		s.mu.Lock()
		meta, ok := s.colmap[trID]
		s.mu.Unlock()
		if !ok {
			logger.Warn(ctx, "Encrypted frame before key exchange, dropping", "tr_id", trID)
			return
		}
		plain, err := decryptAESCBC(meta.key, meta.iv, payload)
		if err != nil {
			logger.ErrorWithErr(ctx, "Failed to decrypt data frame", err, "tr_id", trID)
			return
		}
		payload = plain
	}

	fields := strings.Split(payload, "^")
	tick := interfaces.Tick{TrID: trID, Fields: fields}
	if len(fields) > 0 {
		tick.Key = fields[0]
	}
	onTick(tick)
}

type controlFrame struct {
	Header struct {
		TrID  string `json:"tr_id"`
		TrKey string `json:"tr_key"`
	} `json:"header"`
	Body struct {
		RtCd   string `json:"rt_cd"`
		Msg1   string `json:"msg1"`
		Output struct {
			Key string `json:"key"`
			IV  string `json:"iv"`
		} `json:"output"`
	} `json:"body"`
}

func (s *Stream) handleControlFrame(ctx context.Context, conn *websocket.Conn, msg []byte) {
	var cf controlFrame
	if err := json.Unmarshal(msg, &cf); err != nil {
		logger.Debug(ctx, "Dropping unreadable control frame", "frame", string(msg))
		return
	}

	if cf.Header.TrID == "PINGPONG" {
		// The server expects the ping frame echoed back verbatim.
		_ = conn.WriteMessage(websocket.TextMessage, msg)
		return
	}

	if cf.Body.Output.Key != "" {
		s.mu.Lock()
		s.colmap[cf.Header.TrID] = trMeta{key: cf.Body.Output.Key, iv: cf.Body.Output.IV}
		s.mu.Unlock()
	}
	logger.Debug(ctx, "Subscription control frame", "tr_id", cf.Header.TrID, "tr_key", cf.Header.TrKey, "rt_cd", cf.Body.RtCd, "message", cf.Body.Msg1)
}

type approvalResponse struct {
	ApprovalKey string `json:"approval_key"`
}

// approvalKey performs the WebSocket handshake; the approval key is a
// separate credential from the REST bearer token.
func (s *Stream) approvalKey(ctx context.Context, env *auth.Environment) (string, error) {
	payload, _ := json.Marshal(map[string]string{
		"grant_type": "client_credentials",
		"appkey":     env.AppKey,
		"secretkey":  env.AppSecret,
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, env.BaseURL+approvalPath, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")

	resp, err := s.httpc.Do(req)
	if err != nil {
		return "", fmt.Errorf("approval endpoint unreachable: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("approval endpoint returned %d: %s", resp.StatusCode, body)
	}

	var ar approvalResponse
	if err := json.Unmarshal(body, &ar); err != nil {
		return "", fmt.Errorf("decode approval response: %w", err)
	}
	if ar.ApprovalKey == "" {
		return "", fmt.Errorf("approval endpoint returned an empty key")
	}
	return ar.ApprovalKey, nil
}
