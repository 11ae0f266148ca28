package realtime

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/lexiqai/realtime-bridge/internal/config"
	"github.com/lexiqai/realtime-bridge/internal/observability"
	"github.com/lexiqai/realtime-bridge/internal/resilience"
	"github.com/lexiqai/realtime-bridge/internal/transport"
)

// ErrHandshakeRejected is returned when the engine answers the upgrade with a 4xx.
// It is not retried.
var ErrHandshakeRejected = errors.New("realtime: handshake rejected")

const breakerName = "realtime"

// Client dials engine sessions behind a circuit breaker
type Client struct {
	url          string
	header       http.Header
	dialer       *websocket.Dialer
	retry        *resilience.RetryConfig
	breaker      *resilience.CircuitBreaker
	writeTimeout time.Duration
	logger       zerolog.Logger
}

// NewClient creates an engine client from cfg
func NewClient(cfg *config.Config) (*Client, error) {
	endpoint, err := BuildURL(cfg.RealtimeURL, cfg.RealtimeModel)
	if err != nil {
		return nil, err
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+cfg.OpenAIAPIKey)
	header.Set("OpenAI-Beta", "realtime=v1")

	retry := resilience.DefaultRetryConfig()
	if cfg.RetryMaxAttempts > 0 {
		retry.MaxAttempts = cfg.RetryMaxAttempts
	}
	if cfg.RetryInitialBackoff > 0 {
		retry.InitialBackoff = time.Duration(cfg.RetryInitialBackoff) * time.Millisecond
	}

	breaker := resilience.NewCircuitBreaker(
		breakerName,
		cfg.CircuitBreakerMaxFailures,
		time.Duration(cfg.CircuitBreakerResetTimeout)*time.Second,
	)
	breaker.OnStateChange(func(name string, state resilience.CircuitState) {
		observability.UpdateCircuitBreakerState(name, int(state))
	})
	observability.UpdateCircuitBreakerState(breakerName, int(breaker.GetState()))

	return &Client{
		url:    endpoint,
		header: header,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: cfg.DialTimeout(),
		},
		retry:        retry,
		breaker:      breaker,
		writeTimeout: transport.DefaultWriteTimeout,
		logger:       observability.GetLogger().With().Str("component", "realtime").Logger(),
	}, nil
}

// BuildURL appends the model query parameter to the engine endpoint
func BuildURL(endpoint, model string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("invalid realtime url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return "", fmt.Errorf("invalid realtime url scheme %q", u.Scheme)
	}
	if model != "" {
		q := u.Query()
		q.Set("model", model)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// Connect opens one engine session. Transient failures are retried with
// backoff; a rejected handshake or an open breaker fails immediately.
func (c *Client) Connect(ctx context.Context) (*transport.Conn, error) {
	var conn *transport.Conn

	err := c.breaker.Call(func() error {
		return resilience.Retry(ctx, func(ctx context.Context) error {
			ws, err := c.dial(ctx)
			if err != nil {
				c.logger.Warn().Err(err).Msg("Realtime dial failed")
				return err
			}
			conn = transport.New(ws, c.writeTimeout)
			return nil
		}, c.retry, isRetryableDial)
	})
	if err != nil {
		if !errors.Is(err, resilience.ErrCircuitOpen) {
			observability.IncrementCircuitBreakerFailures(breakerName)
		}
		return nil, err
	}

	c.logger.Info().Msg("Connected to the OpenAI Realtime API")
	return conn, nil
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	ws, resp, err := c.dialer.DialContext(ctx, c.url, c.header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err == nil {
		return ws, nil
	}

	if resp != nil {
		switch {
		case resp.StatusCode >= 400 && resp.StatusCode < 500:
			return nil, fmt.Errorf("%w: status %d", ErrHandshakeRejected, resp.StatusCode)
		case resp.StatusCode >= 500:
			return nil, resilience.NewRetryableError(fmt.Errorf("realtime handshake: status %d: %w", resp.StatusCode, err))
		}
	}
	return nil, fmt.Errorf("realtime dial: %w", err)
}

func isRetryableDial(err error) bool {
	if errors.Is(err, ErrHandshakeRejected) {
		return false
	}
	return resilience.IsRetryableNetworkError(err)
}

// Ready reports whether new sessions are being admitted
func (c *Client) Ready(ctx context.Context) (bool, error) {
	state, requests, failures, rate := c.breaker.GetStats()
	if state == resilience.StateOpen {
		return false, fmt.Errorf("circuit breaker %s after %d failed of %d dials (%.0f%% failure rate)",
			state, failures, requests, rate)
	}
	return true, nil
}
