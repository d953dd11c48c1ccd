package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	apperrors "github.com/Prefeitura-de-CorumbaMS/WhatsApp-Dispara/internal/errors"
)

// Gateway is an HTTP client for the browser-automation WhatsApp bridge. It
// is an explicit connection handle passed into the dispatcher, replacing the
// process-wide connected flag the bridge itself keeps.
type Gateway struct {
	baseURL string
	client  *http.Client
	log     zerolog.Logger

	mu         sync.Mutex
	lastStatus Status
	checkedAt  time.Time
}

// statusTTL bounds how stale a cached readiness answer may be before
// IsReady asks the bridge again.
const statusTTL = 5 * time.Second

// NewGateway builds a Gateway for the bridge at baseURL.
func NewGateway(baseURL string, log zerolog.Logger) *Gateway {
	return &Gateway{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 30 * time.Second},
		log:     log.With().Str("component", "gateway").Logger(),
	}
}

type sendRequest struct {
	Phone         string `json:"phone"`
	Body          string `json:"body"`
	Kind          string `json:"kind,omitempty"`
	MediaURL      string `json:"media_url,omitempty"`
	MediaFilename string `json:"media_filename,omitempty"`
}

type sendResponse struct {
	Success   bool      `json:"success"`
	Message   string    `json:"message"`
	MessageID string    `json:"message_id"`
	Timestamp time.Time `json:"timestamp"`
}

// Send posts one message to the bridge. A 503 from the bridge means the
// WhatsApp session is down and maps to ErrNotConnected so the dispatcher can
// stop the whole run instead of burning retries per recipient.
func (g *Gateway) Send(ctx context.Context, phone, body string, opts *SendOptions) (*Delivery, error) {
	payload := sendRequest{Phone: phone, Body: body}
	if opts != nil {
		payload.Kind = opts.Kind
		payload.MediaURL = opts.MediaURL
		payload.MediaFilename = opts.MediaFilename
	}

	buf, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/send", bytes.NewReader(buf))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gateway send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusServiceUnavailable {
		return nil, apperrors.ErrNotConnected
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("gateway send: read response: %w", err)
	}

	var out sendResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("gateway send: decode response: %w", err)
	}
	if resp.StatusCode != http.StatusOK || !out.Success {
		msg := out.Message
		if msg == "" {
			msg = fmt.Sprintf("gateway returned status %d", resp.StatusCode)
		}
		return nil, fmt.Errorf("gateway send to %s: %s", phone, msg)
	}

	ts := out.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	return &Delivery{MessageID: out.MessageID, Timestamp: ts}, nil
}

// Status fetches the bridge session state and refreshes the readiness cache.
func (g *Gateway) Status(ctx context.Context) (*Status, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/status", nil)
	if err != nil {
		return nil, err
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gateway status: %w", err)
	}
	defer resp.Body.Close()

	var st Status
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return nil, fmt.Errorf("gateway status: decode: %w", err)
	}

	g.mu.Lock()
	g.lastStatus = st
	g.checkedAt = time.Now()
	g.mu.Unlock()

	return &st, nil
}

// IsReady reports whether the bridge session is connected, reusing the last
// answer for a few seconds so a dispatch loop does not hammer the bridge.
func (g *Gateway) IsReady() bool {
	g.mu.Lock()
	fresh := time.Since(g.checkedAt) < statusTTL
	connected := g.lastStatus.IsConnected
	g.mu.Unlock()
	if fresh {
		return connected
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	st, err := g.Status(ctx)
	if err != nil {
		g.log.Warn().Err(err).Msg("gateway status check failed")
		return false
	}
	return st.IsConnected
}

var _ Sender = (*Gateway)(nil)
