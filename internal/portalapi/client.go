package portalapi

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

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"ixora-billpay/internal/observability/metrics"
)

// Client is a minimal REST client for the portal backend.
type Client struct {
	baseURL string
	token   string
	client  *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger

	mu       sync.RWMutex
	language string
}

// Option configures the client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.client = hc
		}
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.client.Timeout = timeout
		}
	}
}

// WithRateLimit throttles outgoing requests. A non-positive rate disables it.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(c *Client) {
		if perSecond <= 0 {
			c.limiter = nil
			return
		}
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// WithLanguage sets the Accept-Language sent to the backend.
func WithLanguage(language string) Option {
	return func(c *Client) {
		c.language = language
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient constructs a portal backend client.
func NewClient(baseURL, token string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("portalapi: empty base url")
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: 10 * time.Second},
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BillQuery filters outstanding bills. IC is the identity card number;
// Reference is the module-specific account, rental or compound number.
type BillQuery struct {
	IC        string
	Reference string
}

// SetLanguage changes the Accept-Language for subsequent requests.
func (c *Client) SetLanguage(language string) {
	c.mu.Lock()
	c.language = language
	c.mu.Unlock()
}

// Language returns the current Accept-Language.
func (c *Client) Language() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.language
}

// OutstandingBills lists raw outstanding bill records for a billing module.
// Both a bare JSON array and a {"data": [...]} envelope are accepted.
func (c *Client) OutstandingBills(ctx context.Context, module string, q BillQuery) ([]json.RawMessage, error) {
	if module == "" {
		return nil, errors.New("portalapi: empty module")
	}
	if q.IC == "" && q.Reference == "" {
		return nil, errors.New("portalapi: ic or reference required")
	}
	params := url.Values{}
	if q.IC != "" {
		params.Set("ic", q.IC)
	}
	if q.Reference != "" {
		params.Set("ref", q.Reference)
	}
	path := fmt.Sprintf("/api/v1/%s/outstanding?%s", url.PathEscape(module), params.Encode())

	var raw json.RawMessage
	if err := c.doJSON(ctx, "bills."+module, http.MethodGet, path, nil, &raw); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return unwrapList(raw)
}

// PaymentStatus fetches the raw status document for a checkout reference.
func (c *Client) PaymentStatus(ctx context.Context, reference string) (json.RawMessage, error) {
	if reference == "" {
		return nil, errors.New("portalapi: empty reference")
	}
	var raw json.RawMessage
	path := "/api/v1/payments/" + url.PathEscape(reference) + "/status"
	if err := c.doJSON(ctx, "payment.status", http.MethodGet, path, nil, &raw); err != nil {
		return nil, err
	}
	return unwrapObject(raw), nil
}

// PaymentReceipt fetches the raw receipt document for a checkout reference.
func (c *Client) PaymentReceipt(ctx context.Context, reference string) (json.RawMessage, error) {
	if reference == "" {
		return nil, errors.New("portalapi: empty reference")
	}
	var raw json.RawMessage
	path := "/api/v1/payments/" + url.PathEscape(reference) + "/receipt"
	if err := c.doJSON(ctx, "payment.receipt", http.MethodGet, path, nil, &raw); err != nil {
		return nil, err
	}
	return unwrapObject(raw), nil
}

// ErrNotFound is returned for HTTP 404.
var ErrNotFound = errors.New("portalapi: not found")

// HTTPError reports a non-2xx backend response.
type HTTPError struct {
	Status int
	Body   string
}

func (e *HTTPError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("portalapi: http %d", e.Status)
	}
	return fmt.Sprintf("portalapi: http %d: %s", e.Status, e.Body)
}

type envelope struct {
	Data json.RawMessage `json:"data"`
}

func unwrapList(raw json.RawMessage) ([]json.RawMessage, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	if raw[0] == '{' {
		var env envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			return nil, err
		}
		raw = bytes.TrimSpace(env.Data)
		if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
			return nil, nil
		}
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("portalapi: expected list: %w", err)
	}
	return items, nil
}

func unwrapObject(raw json.RawMessage) json.RawMessage {
	var env envelope
	if err := json.Unmarshal(raw, &env); err == nil {
		data := bytes.TrimSpace(env.Data)
		if len(data) > 0 && data[0] == '{' {
			return data
		}
	}
	return raw
}

func (c *Client) doJSON(ctx context.Context, endpoint, method, path string, body any, out any) (err error) {
	start := time.Now()
	defer func() {
		result := metrics.ResultSuccess
		if err != nil {
			result = metrics.ResultError
		}
		metrics.ObserveBackend(endpoint, result, time.Since(start))
	}()

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	var reqBody io.Reader = http.NoBody
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return err
	}
	requestID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if lang := c.Language(); lang != "" {
		req.Header.Set("Accept-Language", lang)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	c.logger.Debug("portal request",
		zap.String("endpoint", endpoint),
		zap.String("request_id", requestID),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)))

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &HTTPError{Status: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
