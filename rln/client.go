package rln

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kaleidoswap/desktop-app-sub002/build"
	"github.com/lightningnetwork/lnd/clock"
	"golang.org/x/time/rate"
)

const (
	// DefaultRequestTimeout bounds a single call to the node.
	DefaultRequestTimeout = 30 * time.Second

	// DefaultMaxRetries is how often a read-only call is retried after a
	// transport failure.
	DefaultMaxRetries = 2

	// DefaultRequestsPerSecond is the sustained call rate allowed.
	DefaultRequestsPerSecond = 10

	// DefaultBurst is the number of calls allowed at once.
	DefaultBurst = 5

	// DefaultMinRelayFee is the minimum relay fee in sat/vB assumed for
	// the node's mempool.
	DefaultMinRelayFee = 1.0
)

// Config holds the connection settings of a Client.
type Config struct {
	// URL is the base URL of the node API, e.g. http://localhost:3001.
	URL string

	// Token is the optional bearer token.
	Token string

	// RequestTimeout is the timeout of a single HTTP request.
	RequestTimeout time.Duration

	// MaxRetries is the number of retries of read-only calls.
	MaxRetries int

	// RequestsPerSecond and Burst configure the rate limiter.
	RequestsPerSecond float64
	Burst             int

	// MinRelayFee is reported as the minimum relay fee in sat/vB.
	MinRelayFee float64

	// MinConfirmations is required of the recipient of asset sends.
	MinConfirmations uint8

	// SkipSync skips the wallet sync before balance and send calls.
	SkipSync bool

	// LightningAddressURL builds the LNURL-pay endpoint of a Lightning
	// address. Defaults to the well-known https location.
	LightningAddressURL func(user, domain string) string

	// HTTPClient overrides the client used for all calls.
	HTTPClient *http.Client

	// Clock is the time source of balance snapshots.
	Clock clock.Clock
}

// Error is a failure reported by the node. Message is the node's text,
// unchanged.
type Error struct {
	// StatusCode is the HTTP status of the response.
	StatusCode int

	// Code and Name are the node's own error code and name, if sent.
	Code int
	Name string

	// Message is the node's error text.
	Message string
}

// Error returns the node's message verbatim.
func (e *Error) Error() string {
	return e.Message
}

// Client talks to an RGB Lightning Node over its JSON API.
type Client struct {
	cfg Config

	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewClient creates a client. Unset settings take their defaults.
func NewClient(cfg Config) *Client {
	cfg.URL = strings.TrimRight(cfg.URL, "/")
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.RequestsPerSecond == 0 {
		cfg.RequestsPerSecond = DefaultRequestsPerSecond
	}
	if cfg.Burst == 0 {
		cfg.Burst = DefaultBurst
	}
	if cfg.MinRelayFee == 0 {
		cfg.MinRelayFee = DefaultMinRelayFee
	}
	if cfg.LightningAddressURL == nil {
		cfg.LightningAddressURL = wellKnownLNURL
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.NewDefaultClock()
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout: cfg.RequestTimeout,
		}
	}

	return &Client{
		cfg:        cfg,
		httpClient: httpClient,
		limiter: rate.NewLimiter(
			rate.Limit(cfg.RequestsPerSecond), cfg.Burst,
		),
	}
}

// doRequest sends one request, retrying transport failures of idempotent
// calls.
func (c *Client) doRequest(ctx context.Context, method, url string,
	body []byte, idempotent bool) (*http.Response, error) {

	retries := 0
	if idempotent {
		retries = c.cfg.MaxRetries
	}

	var lastErr error
	for i := 0; i <= retries; i++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}

		req, err := http.NewRequestWithContext(ctx, method, url, reader)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}

		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		req.Header.Set("Accept", "application/json")
		if c.cfg.Token != "" {
			req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			if i < retries {
				log.Debugf("%s %s failed, retrying: %v", method,
					url, err)

				select {
				case <-time.After(time.Duration(i+1) *
					100 * time.Millisecond):

				case <-ctx.Done():
					return nil, ctx.Err()
				}
			}
			continue
		}

		return resp, nil
	}

	return nil, fmt.Errorf("request failed after %d attempts: %w",
		retries+1, lastErr)
}

// call performs a JSON call against the node. A nil in sends a GET.
func (c *Client) call(ctx context.Context, path string, in, out any,
	idempotent bool) error {

	method := http.MethodGet
	var body []byte
	if in != nil {
		method = http.MethodPost

		var err error
		body, err = json.Marshal(in)
		if err != nil {
			return fmt.Errorf("unable to encode %s request: %w",
				path, err)
		}
	}

	log.Tracef("%s %s: %v", method, path, build.SpewLogClosure(in))

	resp, err := c.doRequest(ctx, method, c.cfg.URL+path, body, idempotent)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s: failed to read response: %w", path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp.StatusCode, raw)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%s: unable to decode response: %w", path,
			err)
	}

	return nil
}

// decodeError turns a failed response into an *Error. Bodies that are not
// the node's error object are kept as the message.
func decodeError(status int, raw []byte) error {
	var body errorResponse
	if err := json.Unmarshal(raw, &body); err == nil && body.Error != "" {
		return &Error{
			StatusCode: status,
			Code:       body.Code,
			Name:       body.Name,
			Message:    body.Error,
		}
	}

	msg := strings.TrimSpace(string(raw))
	if msg == "" {
		msg = http.StatusText(status)
	}

	return &Error{
		StatusCode: status,
		Message:    msg,
	}
}

// IsNodeError reports whether err carries a message from the node.
func IsNodeError(err error) bool {
	var e *Error
	return errors.As(err, &e)
}
