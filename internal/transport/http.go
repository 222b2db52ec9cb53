package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/nerrad567/cloud4rpi-go/internal/infrastructure/config"
)

const (
	defaultHTTPTimeout = 30 * time.Second

	// maxResponseSize bounds the commands response body.
	maxResponseSize = 1 << 20
)

// HTTP is a Conn talking to the cloud4rpi REST API.
//
// Config is posted as a bare list, data and diagnostics wrapped in the
// envelope. Commands are not pushed: call PollOnce or PollCommands.
type HTTP struct {
	baseURL string
	token   string
	client  *http.Client

	mu      sync.RWMutex
	handler func(cmd map[string]any)

	logger Logger
}

var _ Conn = (*HTTP)(nil)

// NewHTTP validates token and builds an HTTP conn. No request is made.
func NewHTTP(cfg config.HTTPConfig, token string, logger Logger) (*HTTP, error) {
	if err := ValidateToken(token); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = noopLogger{}
	}

	timeout := defaultHTTPTimeout
	if cfg.Timeout > 0 {
		timeout = time.Duration(cfg.Timeout) * time.Second
	}

	return &HTTP{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}, nil
}

func (h *HTTP) url(suffix string) string {
	return fmt.Sprintf("%s/devices/%s%s", h.baseURL, h.token, suffix)
}

// redactedPath names an endpoint in errors and logs without the token.
func redactedPath(suffix string) string {
	return "/devices/<token>" + suffix
}

// Send implements Conn.
func (h *HTTP) Send(ctx context.Context, msg Message) error {
	var (
		body []byte
		err  error
	)
	switch msg.Kind {
	case KindConfig:
		body, err = msg.PayloadJSON()
	case KindData, KindDiagnostics:
		body, err = msg.Envelope()
	default:
		return fmt.Errorf("%w: %q", ErrUnknownKind, msg.Kind)
	}
	if err != nil {
		return err
	}

	h.logger.Info("sending", "kind", msg.Kind)
	resp, err := h.do(ctx, http.MethodPost, "/"+string(msg.Kind), body)
	if err != nil {
		return fmt.Errorf("posting %s: %w", msg.Kind, err)
	}
	resp.Body.Close()
	return nil
}

// FetchCommands returns the latest commands in server order.
// Entries that are not JSON objects are logged and skipped.
func (h *HTTP) FetchCommands(ctx context.Context) ([]map[string]any, error) {
	h.logger.Debug("fetching latest commands")

	resp, err := h.do(ctx, http.MethodGet, "/commands/latest", nil)
	if err != nil {
		return nil, fmt.Errorf("fetching commands: %w", err)
	}
	defer resp.Body.Close()

	var raw []json.RawMessage
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseSize)).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decoding commands: %w", err)
	}

	cmds := make([]map[string]any, 0, len(raw))
	for _, r := range raw {
		cmd, err := decodeCommand(r)
		if err != nil {
			h.logger.Warn("skipping command", "error", err)
			continue
		}
		cmds = append(cmds, cmd)
	}
	return cmds, nil
}

// PollOnce fetches the latest commands and dispatches them in order.
// It returns the number of commands dispatched.
func (h *HTTP) PollOnce(ctx context.Context) (int, error) {
	cmds, err := h.FetchCommands(ctx)
	if err != nil {
		return 0, err
	}

	h.mu.RLock()
	handler := h.handler
	h.mu.RUnlock()

	if handler == nil {
		return 0, nil
	}
	for _, cmd := range cmds {
		handler(cmd)
	}
	return len(cmds), nil
}

// PollCommands polls every interval until ctx is cancelled. Fetch errors
// are logged and polling continues.
func (h *HTTP) PollCommands(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := h.PollOnce(ctx); err != nil && ctx.Err() == nil {
			h.logger.Warn("polling commands failed", "error", err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// OnCommand implements Conn.
func (h *HTTP) OnCommand(handler func(cmd map[string]any)) {
	h.mu.Lock()
	h.handler = handler
	h.mu.Unlock()
}

// Close implements Conn.
func (h *HTTP) Close() error {
	h.client.CloseIdleConnections()
	return nil
}

// do sends one request to the device endpoint at suffix. Errors name the
// endpoint with the token redacted.
func (h *HTTP) do(ctx context.Context, method, suffix string, body []byte) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	path := redactedPath(suffix)

	req, err := http.NewRequestWithContext(ctx, method, h.url(suffix), reader)
	if err != nil {
		return nil, fmt.Errorf("building request for %s: %w", path, unwrapURLError(err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, unwrapURLError(err))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, fmt.Errorf("%w: %s %s returned %d", ErrUnexpectedStatus, method, path, resp.StatusCode)
	}
	return resp, nil
}

// unwrapURLError drops the *url.Error layer, whose text carries the full
// URL and with it the token.
func unwrapURLError(err error) error {
	var ue *url.Error
	if errors.As(err, &ue) {
		return ue.Err
	}
	return err
}
