package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/shoppingmall/mall/internal/logging"
)

const DefaultTimeout = 30 * time.Second

// Client performs single HTTP calls against the storefront backend.
// It never retries and never interprets status codes beyond the typed
// helpers below.
type Client struct {
	baseURL string
	client  *http.Client
	logger  *logging.Logger
}

type Option func(*Client)

// WithTimeout sets the request timeout; 0 disables it.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.client.Timeout = d
	}
}

func WithLogger(l *logging.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

func New(baseURL string, opts ...Option) *Client {
	jar, _ := cookiejar.New(nil)
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: DefaultTimeout, Jar: jar},
		logger:  logging.Discard(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

// Response is a raw backend response.
type Response struct {
	StatusCode int
	Body       []byte
}

// OK reports whether the status is 2xx.
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// HTTPError is a non-2xx response surfaced as an error.
type HTTPError struct {
	StatusCode int
	Body       []byte
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP error! status: %d", e.StatusCode)
}

// Do sends one request. body may be nil, []byte, json.RawMessage or any
// JSON-encodable value. accessToken, when set, is sent as a bearer credential.
// Any status code is returned as a Response; only transport and encoding
// failures are errors.
func (c *Client) Do(ctx context.Context, method, endpoint string, body any, accessToken string, header http.Header) (*Response, error) {
	reader, err := encodeBody(body)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, reader)
	if err != nil {
		return nil, err
	}

	requestID := logging.GetRequestID(ctx)
	if requestID == "" {
		ctx = logging.WithRequestID(ctx, "")
		requestID = logging.GetRequestID(ctx)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.DebugContext(ctx, "request failed",
			logging.Method(method), logging.Path(endpoint), logging.Error(err))
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	c.logger.DebugContext(ctx, "request completed",
		logging.Method(method),
		logging.Path(endpoint),
		logging.Status(resp.StatusCode),
		logging.Duration(time.Since(start).Milliseconds()),
	)

	return &Response{
		StatusCode: resp.StatusCode,
		Body:       data,
	}, nil
}

func encodeBody(body any) (io.Reader, error) {
	switch b := body.(type) {
	case nil:
		return http.NoBody, nil
	case []byte:
		return bytes.NewReader(b), nil
	case json.RawMessage:
		return bytes.NewReader(b), nil
	default:
		data, err := json.Marshal(b)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		return bytes.NewReader(data), nil
	}
}

// Login posts credentials. The response is returned whatever its status so
// the caller can surface field errors. A csrftoken cookie, when the jar holds
// one for the backend, is echoed in X-CSRFToken.
func (c *Client) Login(ctx context.Context, email, password string) (*Response, error) {
	var header http.Header
	if token := c.csrfToken(); token != "" {
		header = http.Header{"X-CSRFToken": []string{token}}
	}
	return c.Do(ctx, http.MethodPost, PathLogin, LoginRequest{Email: email, Password: password}, "", header)
}

// Register posts a new account. Like Login, any status is returned.
func (c *Client) Register(ctx context.Context, req RegisterRequest) (*Response, error) {
	return c.Do(ctx, http.MethodPost, PathRegister, req, "", nil)
}

// Refresh exchanges a refresh token for a new access token. A non-2xx answer
// is an *HTTPError; anything else is a transport failure.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*RefreshResponse, error) {
	resp, err := c.Do(ctx, http.MethodPost, PathRefresh, RefreshRequest{Refresh: refreshToken}, "", nil)
	if err != nil {
		return nil, err
	}

	if !resp.OK() {
		return nil, &HTTPError{StatusCode: resp.StatusCode, Body: resp.Body}
	}

	var refreshResp RefreshResponse
	if err := json.Unmarshal(resp.Body, &refreshResp); err != nil {
		return nil, fmt.Errorf("decode refresh response: %w", err)
	}
	if refreshResp.Access == "" {
		return nil, &HTTPError{StatusCode: resp.StatusCode, Body: resp.Body}
	}

	return &refreshResp, nil
}

// Logout asks the backend to blacklist the refresh token.
func (c *Client) Logout(ctx context.Context, accessToken, refreshToken string) error {
	resp, err := c.Do(ctx, http.MethodPost, PathLogout, RefreshRequest{Refresh: refreshToken}, accessToken, nil)
	if err != nil {
		return err
	}

	if !resp.OK() {
		return &HTTPError{StatusCode: resp.StatusCode, Body: resp.Body}
	}

	return nil
}

func (c *Client) csrfToken() string {
	if c.client.Jar == nil {
		return ""
	}

	u, err := url.Parse(c.baseURL)
	if err != nil {
		return ""
	}

	for _, cookie := range c.client.Jar.Cookies(u) {
		if cookie.Name == "csrftoken" {
			return cookie.Value
		}
	}
	return ""
}
