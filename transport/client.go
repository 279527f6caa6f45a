package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-tokenpool/core"
	"golang.org/x/time/rate"
)

const DefaultTimeout = 20 * time.Second

const defaultResponseBodyLimit int64 = 1 << 20

type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Config bounds every request made to a backend.
type Config struct {
	Timeout              time.Duration
	ProxyURL             string
	RequestsPerSecond    float64
	UserAgent            string
	MaxResponseBodyBytes int64
}

// NewHTTPClient returns a client whose connect, TLS handshake and response
// header phases are each capped at cfg.Timeout. Client.PostForm bounds the
// whole attempt, body included.
func NewHTTPClient(cfg Config) (*http.Client, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	proxy := http.ProxyFromEnvironment
	if raw := strings.TrimSpace(cfg.ProxyURL); raw != "" {
		proxyURL, err := url.Parse(raw)
		if err != nil {
			return nil, transportWrapError(err, goerrors.CategoryBadInput, "transport: invalid proxy url", http.StatusBadRequest, nil)
		}
		proxy = http.ProxyURL(proxyURL)
	}
	dialer := &net.Dialer{Timeout: timeout, KeepAlive: 30 * time.Second}
	return &http.Client{
		Transport: &http.Transport{
			Proxy:                 proxy,
			DialContext:           dialer.DialContext,
			TLSHandshakeTimeout:   timeout,
			ResponseHeaderTimeout: timeout,
			IdleConnTimeout:       90 * time.Second,
			MaxIdleConns:          10,
		},
	}, nil
}

// Request is a form-encoded POST relative to the client base url.
type Request struct {
	Operation string
	Path      string
	Form      url.Values
	Bearer    string
}

type Response struct {
	StatusCode int
	Body       []byte
	Duration   time.Duration
}

func (r Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Client posts forms to one backend. Transport failures come back as
// TOKENPOOL_TRANSIENT_NETWORK errors; HTTP statuses are left to the caller.
type Client struct {
	baseURL              *url.URL
	doer                 HTTPDoer
	limiter              *rate.Limiter
	timeout              time.Duration
	userAgent            string
	maxResponseBodyBytes int64
}

func NewClient(baseURL string, doer HTTPDoer, cfg Config) (*Client, error) {
	parsed, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, transportError(
			fmt.Sprintf("transport: base url %q must be absolute", baseURL),
			goerrors.CategoryBadInput,
			http.StatusBadRequest,
			map[string]any{"base_url": baseURL},
		)
	}
	if !strings.HasSuffix(parsed.Path, "/") {
		parsed.Path += "/"
	}
	if doer == nil {
		client, err := NewHTTPClient(cfg)
		if err != nil {
			return nil, err
		}
		doer = client
	}
	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	maxBody := cfg.MaxResponseBodyBytes
	if maxBody <= 0 {
		maxBody = defaultResponseBodyLimit
	}
	return &Client{
		baseURL:              parsed,
		doer:                 doer,
		limiter:              limiter,
		timeout:              timeout,
		userAgent:            strings.TrimSpace(cfg.UserAgent),
		maxResponseBodyBytes: maxBody,
	}, nil
}

func (c *Client) BaseURL() string {
	if c == nil || c.baseURL == nil {
		return ""
	}
	return c.baseURL.String()
}

// PostForm performs a single attempt of req. The attempt, from sending the
// request to reading the last body byte, is capped at the configured timeout.
func (c *Client) PostForm(ctx context.Context, req Request) (Response, error) {
	if c == nil || c.doer == nil {
		return Response{}, transportError(
			"transport: client requires an http doer",
			goerrors.CategoryInternal,
			http.StatusInternalServerError,
			nil,
		)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return Response{}, classifyError(err, req.Operation)
		}
	}

	attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	endpoint := c.baseURL.ResolveReference(&url.URL{Path: strings.TrimPrefix(req.Path, "/")})
	form := req.Form
	if form == nil {
		form = url.Values{}
	}
	httpReq, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, endpoint.String(), strings.NewReader(form.Encode()))
	if err != nil {
		return Response{}, transportWrapError(
			err,
			goerrors.CategoryBadInput,
			"transport: create http request",
			http.StatusBadRequest,
			map[string]any{"operation": req.Operation, "url": endpoint.String()},
		)
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		httpReq.Header.Set("User-Agent", c.userAgent)
	}
	if bearer := strings.TrimSpace(req.Bearer); bearer != "" {
		httpReq.Header.Set("Authorization", "Bearer "+bearer)
	}

	startedAt := time.Now()
	httpRes, err := c.doer.Do(httpReq)
	if err != nil {
		return Response{}, attemptError(ctx, attemptCtx, err, req.Operation)
	}
	defer httpRes.Body.Close()

	body, err := io.ReadAll(io.LimitReader(httpRes.Body, c.maxResponseBodyBytes+1))
	if err != nil {
		return Response{}, attemptError(ctx, attemptCtx, err, req.Operation)
	}
	if int64(len(body)) > c.maxResponseBodyBytes {
		return Response{}, transportError(
			fmt.Sprintf("transport: response body exceeds limit of %d bytes", c.maxResponseBodyBytes),
			goerrors.CategoryExternal,
			http.StatusBadGateway,
			map[string]any{"operation": req.Operation, "status_code": httpRes.StatusCode},
		)
	}
	return Response{
		StatusCode: httpRes.StatusCode,
		Body:       body,
		Duration:   time.Since(startedAt),
	}, nil
}

// attemptError reports an expired attempt deadline as a transient timeout
// while the caller context is still live.
func attemptError(ctx, attemptCtx context.Context, err error, operation string) error {
	if ctx.Err() == nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
		return core.NewTransientError(err, core.TransientTimeout, operation)
	}
	return classifyError(err, operation)
}
