package fetcher

import (
	"compress/flate"
	"compress/gzip"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/andybalholm/brotli"

	"sitecloner/pkg/types"
)

// Fetcher retrieves a single resource for the crawler. The returned body is
// streamed; callers must close it.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (*types.Response, error)
}

// Options controls HTTP fetching behaviour.
type Options struct {
	UserAgent          string
	Headers            map[string]string
	Timeout            time.Duration
	ProxyURL           string
	Username           string
	Password           string
	InsecureSkipVerify bool

	MaxRetries   int
	RetryBackoff time.Duration
	MaxBackoff   time.Duration

	// RateLimit is a process-wide requests-per-second ceiling; zero disables it.
	RateLimit    float64
	PerHostDelay time.Duration
}

// HTTPFetcher implements Fetcher via the Go http.Client.
type HTTPFetcher struct {
	client       *http.Client
	userAgent    string
	extraHeaders map[string]string
	username     string
	password     string
	maxRetries   int
	backoff      time.Duration
	maxBackoff   time.Duration
	limiter      *Limiter
}

var retryStatuses = map[int]bool{
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

// NewHTTPFetcher constructs an HTTP fetcher using the provided options.
func NewHTTPFetcher(opts Options) (*HTTPFetcher, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = 500 * time.Millisecond
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = 30 * time.Second
	}

	transport := &http.Transport{
		DialContext:           (&net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   16,
		IdleConnTimeout:       90 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	if opts.InsecureSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opt-in via verify_ssl=false
	}

	if strings.TrimSpace(opts.ProxyURL) != "" {
		proxyURL, err := url.Parse(opts.ProxyURL)
		if err != nil {
			return nil, fmt.Errorf("parse proxy url: %w", err)
		}
		transport.Proxy = http.ProxyURL(proxyURL)
	}

	headers := make(map[string]string, len(opts.Headers))
	for k, v := range opts.Headers {
		headers[k] = v
	}

	return &HTTPFetcher{
		client: &http.Client{
			Timeout:   opts.Timeout,
			Transport: transport,
		},
		userAgent:    opts.UserAgent,
		extraHeaders: headers,
		username:     opts.Username,
		password:     opts.Password,
		maxRetries:   opts.MaxRetries,
		backoff:      opts.RetryBackoff,
		maxBackoff:   opts.MaxBackoff,
		limiter:      NewLimiter(opts.RateLimit, opts.PerHostDelay),
	}, nil
}

// Fetch downloads a single URL, retrying transient failures with exponential
// backoff. A successful response always carries a decoded body stream.
func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) (*types.Response, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return nil, &FatalError{URL: rawURL, Err: fmt.Errorf("invalid url: %w", errOrMissingHost(err))}
	}

	var lastErr error
	attempts := 0
	for attempt := 0; attempt <= f.maxRetries; attempt++ {
		if attempt > 0 {
			if err := sleepCtx(ctx, f.backoffFor(attempt)); err != nil {
				return nil, &FatalError{URL: rawURL, Err: err}
			}
		}
		if err := f.limiter.Wait(ctx, parsed.Host); err != nil {
			return nil, &FatalError{URL: rawURL, Err: err}
		}
		attempts++
		resp, retry, err := f.do(ctx, rawURL)
		if err == nil {
			return resp, nil
		}
		if !retry {
			return nil, &FatalError{URL: rawURL, StatusCode: statusOf(err), Err: err}
		}
		lastErr = err
	}
	return nil, &TransientError{URL: rawURL, Attempts: attempts, StatusCode: statusOf(lastErr), Err: lastErr}
}

// do performs one attempt. The boolean reports whether a failure may be retried.
func (f *HTTPFetcher) do(ctx context.Context, rawURL string) (*types.Response, bool, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, false, fmt.Errorf("build request: %w", err)
	}

	if f.userAgent != "" {
		httpReq.Header.Set("User-Agent", f.userAgent)
	}
	httpReq.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	httpReq.Header.Set("Accept-Language", "en-US,en;q=0.8")
	httpReq.Header.Set("Accept-Encoding", "gzip, deflate, br")
	for k, v := range f.extraHeaders {
		httpReq.Header.Set(k, v)
	}
	if f.username != "" {
		httpReq.SetBasicAuth(f.username, f.password)
	}

	resp, err := f.client.Do(httpReq)
	if err != nil {
		return nil, retryableNetErr(ctx, err), fmt.Errorf("http fetch failed: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))
		_ = resp.Body.Close()
		return nil, retryStatuses[resp.StatusCode], &statusError{code: resp.StatusCode}
	}

	body, decoded, err := decodeBody(resp)
	if err != nil {
		_ = resp.Body.Close()
		return nil, false, err
	}

	header := resp.Header.Clone()
	length := resp.ContentLength
	if decoded {
		header.Del("Content-Encoding")
		header.Del("Content-Length")
		length = -1
	}

	finalURL := rawURL
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}

	return &types.Response{
		URL:           finalURL,
		StatusCode:    resp.StatusCode,
		Header:        header,
		ContentLength: length,
		Body:          body,
	}, false, nil
}

// decodeBody unwraps Content-Encoding. The returned closer releases both the
// decoder and the underlying connection.
func decodeBody(resp *http.Response) (io.ReadCloser, bool, error) {
	if resp == nil || resp.Body == nil {
		return nil, false, errors.New("empty response body")
	}

	encoding := strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding")))
	switch encoding {
	case "gzip", "x-gzip":
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, false, fmt.Errorf("gzip decode: %w", err)
		}
		return &decodedBody{Reader: gz, closers: []io.Closer{gz, resp.Body}}, true, nil
	case "br":
		return &decodedBody{Reader: brotli.NewReader(resp.Body), closers: []io.Closer{resp.Body}}, true, nil
	case "deflate":
		fl := flate.NewReader(resp.Body)
		return &decodedBody{Reader: fl, closers: []io.Closer{fl, resp.Body}}, true, nil
	default:
		return resp.Body, false, nil
	}
}

type decodedBody struct {
	io.Reader
	closers []io.Closer
}

func (d *decodedBody) Close() error {
	var errs []error
	for _, c := range d.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f *HTTPFetcher) backoffFor(attempt int) time.Duration {
	d := f.backoff << (attempt - 1)
	if d <= 0 || d > f.maxBackoff {
		d = f.maxBackoff
	}
	return d
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func errOrMissingHost(err error) error {
	if err != nil {
		return err
	}
	return errors.New("missing host")
}

// Client exposes the underlying HTTP client for reuse.
func (f *HTTPFetcher) Client() *http.Client {
	if f == nil {
		return nil
	}
	return f.client
}
