// Package apiclient is the typed HTTP client for the finsync wire contracts.
// Transport failures go through a circuit breaker so a server that stays
// unreachable is reported as ErrNetwork without waiting on every call.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"finsync/domain/core/aggregates"
	apperrors "finsync/pkg/errors"
)

const apiPrefix = "/api/v1"

var (
	// ErrUnauthorized is returned for any 401; the caller must re-authenticate
	ErrUnauthorized = errors.New("unauthorized")
	// ErrNetwork covers transport failures and an open circuit
	ErrNetwork = errors.New("network unavailable")
)

// ConflictError is returned when a push was rejected because the server holds
// a newer version.
type ConflictError struct {
	ServerVersion int64
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("version conflict: server is at %d", e.ServerVersion)
}

// ServerError is any other non-2xx answer
type ServerError struct {
	Status  int
	Type    string
	Code    string
	Message string
}

func (e *ServerError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("server error %d (%s): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("server error %d: %s", e.Status, e.Message)
}

// AsConflict unwraps a ConflictError
func AsConflict(err error) (*ConflictError, bool) {
	var c *ConflictError
	if errors.As(err, &c) {
		return c, true
	}
	return nil, false
}

// AsServerError unwraps a ServerError
func AsServerError(err error) (*ServerError, bool) {
	var s *ServerError
	if errors.As(err, &s) {
		return s, true
	}
	return nil, false
}

// BreakerConfig tunes the transport circuit breaker
type BreakerConfig struct {
	Name                string
	MaxRequests         uint32
	Interval            time.Duration
	Timeout             time.Duration
	ConsecutiveFailures uint32
}

// DefaultBreakerConfig trips after three transport failures in a row and
// tries again after 30 seconds.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		Name:                "finsync-api",
		MaxRequests:         1,
		Interval:            time.Minute,
		Timeout:             30 * time.Second,
		ConsecutiveFailures: 3,
	}
}

// Option customizes a Client
type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

func WithBreaker(cfg BreakerConfig) Option {
	return func(c *Client) { c.breakerCfg = cfg }
}

// Client talks to one finsync server. It is safe for concurrent use.
type Client struct {
	baseURL    string
	http       *http.Client
	logger     *zap.Logger
	breakerCfg BreakerConfig
	breaker    *gobreaker.CircuitBreaker

	mu    sync.RWMutex
	token string
}

// NewClient creates a client for baseURL (scheme and host, no /api/v1 suffix)
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		http:       &http.Client{Timeout: 20 * time.Second},
		logger:     zap.NewNop(),
		breakerCfg: DefaultBreakerConfig(),
	}
	for _, opt := range opts {
		opt(c)
	}

	cfg := c.breakerCfg
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.ConsecutiveFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Info("Circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
		// Only transport failures count; HTTP error answers prove the server is reachable.
		IsSuccessful: func(err error) bool {
			return err == nil || !errors.Is(err, ErrNetwork)
		},
	})
	return c
}

// SetToken sets the bearer token used on authenticated calls
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// BreakerState exposes the circuit state for status output
func (c *Client) BreakerState() gobreaker.State {
	return c.breaker.State()
}

// do sends one request and decodes a 2xx body into out. body may be nil.
func (c *Client) do(ctx context.Context, method, path string, body any, out any, authenticated bool) error {
	var payload []byte
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		payload = raw
	}

	result, err := c.breaker.Execute(func() (any, error) {
		return c.roundTrip(ctx, method, path, payload, authenticated)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return fmt.Errorf("%w: %v", ErrNetwork, err)
		}
		return err
	}

	respBody := result.([]byte)
	if out == nil || len(respBody) == 0 {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(respBody))
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("decode %s %s response: %w", method, path, err)
	}
	return nil
}

func (c *Client) roundTrip(ctx context.Context, method, path string, payload []byte, authenticated bool) ([]byte, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+apiPrefix+path, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if authenticated {
		if token := c.Token(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		c.logger.Debug("Request failed", zap.String("method", method), zap.String("path", path), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrNetwork, err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return respBody, nil
	}
	return nil, decodeError(resp.StatusCode, respBody)
}

func decodeError(status int, body []byte) error {
	if status == http.StatusUnauthorized {
		return ErrUnauthorized
	}

	if status == http.StatusConflict {
		var conflict struct {
			Conflict      bool  `json:"conflict"`
			ServerVersion int64 `json:"serverVersion"`
		}
		if err := json.Unmarshal(body, &conflict); err == nil && conflict.Conflict {
			return &ConflictError{ServerVersion: conflict.ServerVersion}
		}
	}

	var envelope apperrors.ErrorResponse
	if err := json.Unmarshal(body, &envelope); err != nil || envelope.Message == "" {
		return &ServerError{Status: status, Message: http.StatusText(status)}
	}
	return &ServerError{
		Status:  status,
		Type:    envelope.Type,
		Code:    envelope.Code,
		Message: envelope.Message,
	}
}

// parseTime accepts the server's RFC3339 timestamps; empty stays zero
func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// documentFromRaw turns a JSON state into a Document; null yields nil
func documentFromRaw(raw json.RawMessage) (aggregates.Document, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}
	return aggregates.DecodeDocument(trimmed)
}
