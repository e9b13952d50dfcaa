package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"shopauth/internal/config"
	"shopauth/pkg/auth"
	"shopauth/pkg/logging"
	"shopauth/pkg/oauth"
)

const maxResponseSize = 10 << 20

// Session supplies bearer tokens. *session.Manager implements it.
type Session interface {
	// AccessToken returns the current bearer token, or "" when not signed in.
	AccessToken() string
	Refresh(ctx context.Context, force bool) (*auth.TokenPair, error)
}

// Response is a successful API response.
type Response struct {
	// Data is the decoded body: a JSON value, a string for text/* or raw bytes otherwise.
	Data       interface{}
	Body       []byte
	Status     int
	StatusText string
	Header     http.Header
	Success    bool
}

// Decode unmarshals the JSON body into v.
func (r *Response) Decode(v interface{}) error {
	return json.Unmarshal(r.Body, v)
}

// RequestOptions configures a single request.
type RequestOptions struct {
	Method      string
	Headers     http.Header
	Body        interface{}
	Timeout     time.Duration
	Retries     int
	RequireAuth bool
}

// RequestOption modifies RequestOptions.
type RequestOption func(*RequestOptions)

// WithMethod sets the HTTP method. The default is GET.
func WithMethod(method string) RequestOption {
	return func(o *RequestOptions) { o.Method = method }
}

// WithHeader sets a request header, overriding the client defaults.
func WithHeader(key, value string) RequestOption {
	return func(o *RequestOptions) { o.Headers.Set(key, value) }
}

// WithBody sets the request body. Strings and byte slices are sent as is,
// anything else is encoded as JSON. The body is ignored for GET.
func WithBody(body interface{}) RequestOption {
	return func(o *RequestOptions) { o.Body = body }
}

// WithTimeout overrides the per-attempt timeout.
func WithTimeout(d time.Duration) RequestOption {
	return func(o *RequestOptions) { o.Timeout = d }
}

// WithRetries overrides the number of retries after the first attempt.
func WithRetries(n int) RequestOption {
	return func(o *RequestOptions) { o.Retries = n }
}

// WithoutAuth sends the request without a bearer token.
func WithoutAuth() RequestOption {
	return func(o *RequestOptions) { o.RequireAuth = false }
}

// Client calls the storefront API with the current session's bearer token.
type Client struct {
	baseURL    string
	headers    http.Header
	timeout    time.Duration
	retries    int
	retryDelay time.Duration

	session    Session
	httpClient *http.Client
	registry   *Registry
	now        func() time.Time
	sleep      func(ctx context.Context, d time.Duration) error
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client used for API calls.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.httpClient = c }
}

// WithRegistry shares a loading registry between clients.
func WithRegistry(r *Registry) Option {
	return func(cl *Client) { cl.registry = r }
}

// WithClock overrides the time source for token expiry checks.
func WithClock(now func() time.Time) Option {
	return func(cl *Client) { cl.now = now }
}

// WithSleep overrides how the client waits between retries.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(cl *Client) { cl.sleep = sleep }
}

// New creates a Client. session may be nil for anonymous use.
func New(cfg config.APIConfig, session Session, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		headers:    DefaultHeaders(cfg.Version),
		timeout:    cfg.Timeout,
		retries:    cfg.Retries,
		retryDelay: cfg.RetryDelay,
		session:    session,
		httpClient: &http.Client{},
		now:        time.Now,
		sleep:      sleepContext,
	}
	if c.timeout <= 0 {
		c.timeout = config.DefaultAPITimeout
	}
	if c.retries < 0 {
		c.retries = 0
	}
	if c.retryDelay <= 0 {
		c.retryDelay = config.DefaultAPIRetryDelay
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.registry == nil {
		c.registry = NewRegistry()
	}
	return c
}

// DefaultHeaders returns the headers sent with every request.
func DefaultHeaders(apiVersion string) http.Header {
	h := http.Header{}
	h.Set("Content-Type", "application/json")
	h.Set("Accept", "application/json")
	h.Set("X-Requested-With", "XMLHttpRequest")
	if apiVersion != "" {
		h.Set("API-Version", apiVersion)
	}
	return h
}

// Registry returns the loading registry.
func (c *Client) Registry() *Registry {
	return c.registry
}

// LoadingState returns the aggregate loading state.
func (c *Client) LoadingState() LoadingState {
	return c.registry.State()
}

// Get performs a GET request.
func (c *Client) Get(ctx context.Context, endpoint string, opts ...RequestOption) (*Response, error) {
	return c.Request(ctx, endpoint, append([]RequestOption{WithMethod(http.MethodGet)}, opts...)...)
}

// Post performs a POST request with body.
func (c *Client) Post(ctx context.Context, endpoint string, body interface{}, opts ...RequestOption) (*Response, error) {
	return c.Request(ctx, endpoint, append([]RequestOption{WithMethod(http.MethodPost), WithBody(body)}, opts...)...)
}

// Put performs a PUT request with body.
func (c *Client) Put(ctx context.Context, endpoint string, body interface{}, opts ...RequestOption) (*Response, error) {
	return c.Request(ctx, endpoint, append([]RequestOption{WithMethod(http.MethodPut), WithBody(body)}, opts...)...)
}

// Patch performs a PATCH request with body.
func (c *Client) Patch(ctx context.Context, endpoint string, body interface{}, opts ...RequestOption) (*Response, error) {
	return c.Request(ctx, endpoint, append([]RequestOption{WithMethod(http.MethodPatch), WithBody(body)}, opts...)...)
}

// Delete performs a DELETE request.
func (c *Client) Delete(ctx context.Context, endpoint string, opts ...RequestOption) (*Response, error) {
	return c.Request(ctx, endpoint, append([]RequestOption{WithMethod(http.MethodDelete)}, opts...)...)
}

// Request sends a request to baseURL+endpoint. Authenticated requests carry
// the session's bearer token, renewed first when it is about to expire. A
// 401 triggers one forced refresh and one retry. 5xx responses and network
// failures are retried with exponential backoff; 4xx responses and
// cancelled requests are not.
func (c *Client) Request(ctx context.Context, endpoint string, opts ...RequestOption) (*Response, error) {
	o := RequestOptions{
		Method:      http.MethodGet,
		Headers:     http.Header{},
		Timeout:     c.timeout,
		Retries:     c.retries,
		RequireAuth: true,
	}
	for _, opt := range opts {
		opt(&o)
	}

	id := c.registry.Start(endpoint)
	defer c.registry.End(id)

	start := c.now()
	resp, err := c.request(ctx, endpoint, &o)
	requestDuration.WithLabelValues(o.Method).Observe(c.now().Sub(start).Seconds())
	requestsTotal.WithLabelValues(o.Method, outcome(err)).Inc()
	return resp, err
}

func (c *Client) request(ctx context.Context, endpoint string, o *RequestOptions) (*Response, error) {
	body, err := encodeBody(o.Method, o.Body)
	if err != nil {
		return nil, err
	}
	url := c.baseURL + endpoint

	var token string
	if o.RequireAuth {
		token = c.currentToken(ctx)
	}

	resp, err := c.executeWithRetry(ctx, o.Retries, func(ctx context.Context) (*Response, error) {
		return c.attempt(ctx, o, url, body, token)
	})

	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusUnauthorized || token == "" {
		return resp, err
	}

	if apiErr.Challenge != nil && apiErr.Challenge.Error != "" {
		logging.Debug("APIClient", "%s %s rejected: %s", o.Method, endpoint, apiErr.Challenge.Error)
	}
	refreshed := c.refreshToken(ctx, true, "unauthorized")
	if refreshed == "" {
		logging.Warn("APIClient", "Token refresh failed, %s %s fails with 401", o.Method, endpoint)
		return nil, err
	}
	return c.attempt(ctx, o, url, body, refreshed)
}

// currentToken returns the bearer token to send, renewing it first when it
// is missing an exp or close to expiry.
func (c *Client) currentToken(ctx context.Context) string {
	if c.session == nil {
		return ""
	}
	token := c.session.AccessToken()
	if token == "" {
		// authorization is enforced by the API
		return ""
	}
	if oauth.IsTokenValid(token, oauth.TokenRefreshThreshold, c.now()) {
		return token
	}
	if refreshed := c.refreshToken(ctx, false, "proactive"); refreshed != "" {
		return refreshed
	}
	return token
}

func (c *Client) refreshToken(ctx context.Context, force bool, reason string) string {
	tokens, err := c.session.Refresh(ctx, force)
	if err != nil || tokens.Bearer() == "" {
		tokenRefreshesTotal.WithLabelValues(reason, "failure").Inc()
		if err != nil {
			logging.Warn("APIClient", "Token refresh (%s) failed: %v", reason, err)
		}
		return ""
	}
	tokenRefreshesTotal.WithLabelValues(reason, "success").Inc()
	return tokens.Bearer()
}

func (c *Client) executeWithRetry(ctx context.Context, retries int, op func(context.Context) (*Response, error)) (*Response, error) {
	var lastErr error
	for attempt := 0; attempt <= retries; attempt++ {
		resp, err := op(ctx)
		if err == nil || !retryable(ctx, err) {
			return resp, err
		}
		lastErr = err

		if attempt < retries {
			delay := c.retryDelay * time.Duration(1<<attempt)
			logging.Debug("APIClient", "Attempt %d failed, retrying in %s: %v", attempt+1, delay, err)
			retriesTotal.Inc()
			if err := c.sleep(ctx, delay); err != nil {
				return nil, err
			}
		}
	}
	return nil, lastErr
}

func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status >= 500
	}
	return true
}

func (c *Client) attempt(ctx context.Context, o *RequestOptions, url string, body []byte, token string) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, o.Timeout)
	defer cancel()

	var reader io.Reader = http.NoBody
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, o.Method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("create %s request: %w", o.Method, err)
	}
	for key, values := range c.headers {
		req.Header[key] = append([]string(nil), values...)
	}
	for key, values := range o.Headers {
		req.Header[key] = values
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", o.Method, url, err)
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	data := decodeBody(httpResp.Header.Get("Content-Type"), raw)
	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		return nil, newAPIError(httpResp, data)
	}
	return &Response{
		Data:       data,
		Body:       raw,
		Status:     httpResp.StatusCode,
		StatusText: statusText(httpResp),
		Header:     httpResp.Header,
		Success:    true,
	}, nil
}

func encodeBody(method string, body interface{}) ([]byte, error) {
	if body == nil || method == http.MethodGet {
		return nil, nil
	}
	switch b := body.(type) {
	case string:
		return []byte(b), nil
	case []byte:
		return b, nil
	}
	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode request body: %w", err)
	}
	return encoded, nil
}

func decodeBody(contentType string, raw []byte) interface{} {
	mediaType, _, _ := mime.ParseMediaType(contentType)
	switch {
	case mediaType == "application/json" || strings.HasSuffix(mediaType, "+json"):
		if len(raw) == 0 {
			return nil
		}
		var v interface{}
		if err := json.Unmarshal(raw, &v); err != nil {
			return string(raw)
		}
		return v
	case strings.HasPrefix(mediaType, "text/"):
		return string(raw)
	default:
		return raw
	}
}

func statusText(resp *http.Response) string {
	if text := strings.TrimPrefix(resp.Status, strconv.Itoa(resp.StatusCode)+" "); text != "" && text != resp.Status {
		return text
	}
	return http.StatusText(resp.StatusCode)
}

func outcome(err error) string {
	var apiErr *APIError
	switch {
	case err == nil:
		return "success"
	case errors.As(err, &apiErr):
		return strconv.Itoa(apiErr.Status/100) + "xx"
	case errors.Is(err, context.Canceled):
		return "cancelled"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "network_error"
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
