package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	apperrors "holdings-tracker/internal/errors"
	"holdings-tracker/internal/security"
)

// DefaultUserAgent is the user agent string used for HTTP requests.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

const (
	DefaultTimeout = 10 * time.Second
	maxBodyBytes   = 8 << 20
)

type clientOptions struct {
	baseURL           string
	timeout           time.Duration
	requestsPerSecond float64
	httpClient        *http.Client
}

// Option configures an HTTP-backed source.
type Option func(*clientOptions)

// WithBaseURL overrides the upstream base URL.
func WithBaseURL(baseURL string) Option {
	return func(o *clientOptions) {
		o.baseURL = baseURL
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(o *clientOptions) {
		o.timeout = timeout
	}
}

// WithRateLimit caps outbound requests per second. Zero disables limiting.
func WithRateLimit(requestsPerSecond float64) Option {
	return func(o *clientOptions) {
		o.requestsPerSecond = requestsPerSecond
	}
}

// WithHTTPClient supplies the underlying HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(o *clientOptions) {
		o.httpClient = c
	}
}

func buildOptions(defaultBaseURL string, defaultRPS float64, opts []Option) clientOptions {
	o := clientOptions{
		baseURL:           defaultBaseURL,
		timeout:           DefaultTimeout,
		requestsPerSecond: defaultRPS,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.httpClient == nil {
		o.httpClient = &http.Client{Timeout: o.timeout}
	}
	return o
}

// httpClient is the shared GET helper behind every HTTP source.
type httpClient struct {
	name    string
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
}

func newHTTPClient(name string, o clientOptions) *httpClient {
	var limiter *rate.Limiter
	if o.requestsPerSecond > 0 {
		burst := int(math.Ceil(o.requestsPerSecond))
		limiter = rate.NewLimiter(rate.Limit(o.requestsPerSecond), burst)
	}
	return &httpClient{
		name:    name,
		baseURL: o.baseURL,
		client:  o.httpClient,
		limiter: limiter,
	}
}

// get performs a rate-limited GET request. The caller closes the body.
func (h *httpClient) get(ctx context.Context, url string, headers map[string]string) (io.ReadCloser, error) {
	if h.limiter != nil {
		if err := h.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("User-Agent", DefaultUserAgent)
	req.Header.Set("Accept", "application/json, text/html, */*")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, apperrors.NewProviderError(h.name, 0, "request timed out", apperrors.ErrTimeout)
		}
		// *url.Error carries the full request URL, query keys included.
		return nil, apperrors.NewProviderError(h.name, 0, "request failed", security.RedactError(err))
	}

	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		cause := apperrors.ErrQuoteUnavailable
		if resp.StatusCode == http.StatusTooManyRequests {
			cause = apperrors.ErrRateLimited
		}
		return nil, apperrors.NewProviderError(h.name, resp.StatusCode, security.Redact(string(body)), cause)
	}

	return resp.Body, nil
}

// getJSON performs a GET and decodes the JSON body into v.
func (h *httpClient) getJSON(ctx context.Context, url string, v any) error {
	body, err := h.get(ctx, url, map[string]string{"Accept": "application/json"})
	if err != nil {
		return err
	}
	defer body.Close()

	if err := json.NewDecoder(io.LimitReader(body, maxBodyBytes)).Decode(v); err != nil {
		return apperrors.NewProviderError(h.name, 0, "decode response", fmt.Errorf("%w: %v", apperrors.ErrMalformedResponse, err))
	}
	return nil
}
