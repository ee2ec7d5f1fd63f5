package ica

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"portkiller/internal/knowledge"
	"portkiller/internal/logging"
	"portkiller/internal/services"
	"portkiller/internal/textutil"
)

const (
	statelessPath         = "/api/v1/chat/stateless"
	defaultServiceName    = "portkiller"
	defaultHTTPTimeout    = 30 * time.Second
	defaultRetryBaseDelay = 1 * time.Second
	defaultRetryMaxDelay  = 10 * time.Second
	defaultRetryAttempts  = 1
)

// Config captures the runtime settings required to talk to ICA.
type Config struct {
	BaseURL        string
	ServiceName    string
	TimeoutSeconds int
}

// CredentialSource yields the service key sent with every request.
type CredentialSource interface {
	Credential(ctx context.Context) (string, error)
}

// Client calls the ICA stateless chat endpoint and turns its free-text reply
// into a classification.
type Client struct {
	cfg         Config
	credentials CredentialSource
	httpClient  *http.Client
	logger      *slog.Logger

	retryMaxAttempts int
	retryBaseDelay   time.Duration
	retryMaxDelay    time.Duration
	sleeper          func(time.Duration)
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithRetryMaxAttempts sets the total number of attempts (defaults to 1).
func WithRetryMaxAttempts(attempts int) Option {
	return func(c *Client) {
		c.retryMaxAttempts = attempts
	}
}

// WithRetryBackoff overrides the retry backoff delays.
func WithRetryBackoff(baseDelay, maxDelay time.Duration) Option {
	return func(c *Client) {
		c.retryBaseDelay = baseDelay
		c.retryMaxDelay = maxDelay
	}
}

// WithSleeper overrides how retry sleeps are performed (useful for tests).
func WithSleeper(sleeper func(time.Duration)) Option {
	return func(c *Client) {
		c.sleeper = sleeper
	}
}

// WithLogger sets the client logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logging.NewComponentLogger(logger, "ica")
		}
	}
}

// NewClient constructs an ICA client. credentials is consulted on every call;
// wrap it in secrets.Cached to fetch the key once.
func NewClient(cfg Config, credentials CredentialSource, opts ...Option) *Client {
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	client := &Client{
		cfg: Config{
			BaseURL:        strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
			ServiceName:    strings.TrimSpace(cfg.ServiceName),
			TimeoutSeconds: cfg.TimeoutSeconds,
		},
		credentials:      credentials,
		httpClient:       &http.Client{Timeout: timeout},
		logger:           logging.NewComponentLogger(logging.NewNop(), "ica"),
		retryMaxAttempts: defaultRetryAttempts,
		retryBaseDelay:   defaultRetryBaseDelay,
		retryMaxDelay:    defaultRetryMaxDelay,
	}
	for _, opt := range opts {
		opt(client)
	}
	if client.cfg.ServiceName == "" {
		client.cfg.ServiceName = defaultServiceName
	}
	return client
}

// IsAvailable reports whether a service key can be obtained. It never calls
// the classification endpoint.
func (c *Client) IsAvailable(ctx context.Context) bool {
	if c == nil || c.credentials == nil || c.cfg.BaseURL == "" {
		return false
	}
	_, err := c.credentials.Credential(ctx)
	return err == nil
}

// Analyze classifies a process from its context.
func (c *Client) Analyze(ctx context.Context, actx knowledge.AnalysisContext) (knowledge.AnalysisResponse, error) {
	var empty knowledge.AnalysisResponse
	reply, err := c.Chat(ctx, BuildPrompt(actx))
	if err != nil {
		return empty, err
	}
	resp, err := ParseResponse(reply)
	if err != nil {
		logging.WithContext(ctx, c.logger).Debug("unparseable ica reply",
			logging.String("reply_snippet", textutil.Snippet(reply)),
			logging.Error(err))
		return empty, services.Wrap(services.ErrValidation, "ica", "analyze", "parse reply", err)
	}
	return resp, nil
}

type statelessRequest struct {
	Message string `json:"message"`
}

type statelessResponse struct {
	Response  *string `json:"response"`
	SessionID string  `json:"sessionId"`
}

type httpStatusError struct {
	StatusCode int
	Body       string
	RetryAfter time.Duration
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("ica request: http %d: %s", e.StatusCode, textutil.Snippet(e.Body))
}

// Chat sends one stateless message and returns the reply text.
func (c *Client) Chat(ctx context.Context, message string) (string, error) {
	if c.cfg.BaseURL == "" {
		return "", services.Wrap(services.ErrConfiguration, "ica", "chat", "base url required", nil)
	}
	if c.credentials == nil {
		return "", services.Wrap(services.ErrUnavailable, "ica", "chat", "no credential source", nil)
	}
	key, err := c.credentials.Credential(ctx)
	if err != nil {
		return "", services.Wrap(services.ErrUnavailable, "ica", "chat", "service key", err)
	}

	attempts := c.retryAttempts()
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		reply, err := c.sendOnce(ctx, key, message)
		if err == nil {
			return reply, nil
		}
		lastErr = err
		if attempt == attempts || ctx.Err() != nil || !retryable(err) {
			break
		}
		delay := c.waitBefore(attempt, err)
		logging.WithContext(ctx, c.logger).Debug("retrying ica request",
			logging.Int("attempt", attempt),
			logging.Duration("delay", delay),
			logging.Error(err))
		if err := c.pause(ctx, delay); err != nil {
			lastErr = err
			break
		}
	}
	return "", classifyTransportError(lastErr, attempts)
}

func classifyTransportError(err error, attempts int) error {
	marker := services.ErrTransient
	if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
		marker = services.ErrTimeout
	}
	message := "request failed"
	if attempts > 1 {
		message = fmt.Sprintf("request failed after %d attempts", attempts)
	}
	return services.Wrap(marker, "ica", "chat", message, err)
}

func (c *Client) sendOnce(ctx context.Context, key, message string) (string, error) {
	endpoint, err := url.JoinPath(c.cfg.BaseURL, statelessPath)
	if err != nil {
		return "", fmt.Errorf("ica request: build url: %w", err)
	}
	encoded, err := json.Marshal(statelessRequest{Message: message})
	if err != nil {
		return "", fmt.Errorf("ica request: encode body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(encoded))
	if err != nil {
		return "", fmt.Errorf("ica request: new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-ICA-Service-Key", key)
	req.Header.Set("X-ICA-Service-Name", c.cfg.ServiceName)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("ica request: http error (timeout=%s): %w", c.timeoutDuration(), err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("ica request: read body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &httpStatusError{
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(body)),
			RetryAfter: retryAfter(resp.Header.Get("Retry-After"), time.Now()),
		}
	}
	var decoded statelessResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return "", fmt.Errorf("ica request: decode response (%s): %w", textutil.Snippet(string(body)), err)
	}
	if decoded.Response == nil {
		return "", fmt.Errorf("ica request: response field missing (%s)", textutil.Snippet(string(body)))
	}
	return *decoded.Response, nil
}

func (c *Client) timeoutDuration() time.Duration {
	if c.httpClient == nil || c.httpClient.Timeout <= 0 {
		return defaultHTTPTimeout
	}
	return c.httpClient.Timeout
}

func (c *Client) retryAttempts() int {
	if c.retryMaxAttempts <= 0 {
		return 1
	}
	return c.retryMaxAttempts
}

// retryable reports whether a failed attempt is worth repeating: server
// errors, throttling and request timeouts. Cancellation never is.
func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var statusErr *httpStatusError
	if errors.As(err, &statusErr) {
		code := statusErr.StatusCode
		return code == http.StatusRequestTimeout || code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
	}
	return isTimeout(err)
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// waitBefore returns the pause after a failed attempt. A Retry-After from the
// server wins over the doubling backoff; both are held to the configured
// ceiling.
func (c *Client) waitBefore(attempt int, err error) time.Duration {
	ceiling := c.retryMaxDelay
	if ceiling <= 0 {
		ceiling = defaultRetryMaxDelay
	}
	var statusErr *httpStatusError
	if errors.As(err, &statusErr) && statusErr.RetryAfter > 0 {
		return min(statusErr.RetryAfter, ceiling)
	}
	delay := max(c.retryBaseDelay, 0)
	for n := 1; n < attempt && delay < ceiling; n++ {
		delay *= 2
	}
	return min(delay, ceiling)
}

func (c *Client) pause(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	if c.sleeper != nil {
		c.sleeper(delay)
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// retryAfter reads a Retry-After header given in seconds or as an HTTP date.
// Anything unusable or already past yields zero.
func retryAfter(header string, now time.Time) time.Duration {
	header = strings.TrimSpace(header)
	if header == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(header); err == nil {
		return time.Duration(max(seconds, 0)) * time.Second
	}
	if when, err := http.ParseTime(header); err == nil && when.After(now) {
		return when.Sub(now)
	}
	return 0
}
