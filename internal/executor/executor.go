package executor

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/studiowebux/authload/internal/types"
)

const (
	// HTTP client configuration timeouts
	TCPDialTimeout        = 5 * time.Second
	TCPKeepAliveInterval  = 30 * time.Second
	TLSHandshakeTimeout   = 5 * time.Second
	IdleConnTimeout       = 90 * time.Second
	ExpectContinueTimeout = 1 * time.Second

	DefaultRequestTimeout = 10 * time.Second
	DefaultAPIPrefix      = "/api/v1"

	contentTypeJSON = "application/json"
	contentTypeForm = "application/x-www-form-urlencoded"
)

// Observer receives every completed call
type Observer interface {
	ObserveRequest(result *types.RequestResult)
}

// ObserverFunc adapts a function to Observer
type ObserverFunc func(result *types.RequestResult)

func (f ObserverFunc) ObserveRequest(result *types.RequestResult) { f(result) }

// Observers fans a result out to every non-nil observer in order
func Observers(observers ...Observer) Observer {
	return ObserverFunc(func(result *types.RequestResult) {
		for _, o := range observers {
			if o != nil {
				o.ObserveRequest(result)
			}
		}
	})
}

// Options configures a Client
type Options struct {
	BaseURL            string
	APIPrefix          string
	RequestTimeout     time.Duration
	MaxConns           int
	InsecureSkipVerify bool
	Observer           Observer
	Logger             *zap.Logger
}

// Client is the HTTP session against the API. It is built once per run
// and read-only afterwards; Session derives per-VU copies with their
// own cookie jar.
type Client struct {
	base     string
	http     *http.Client
	observer Observer
	logger   *zap.Logger
}

// Call describes one request
type Call struct {
	Step   string
	Method string
	Path   string
	JSON   any
	Form   url.Values
	Token  string // bearer access token
	Allow  []int  // error statuses that are not request failures
}

// NewClient builds a Client with connection pooling sized for maxConns
// concurrent virtual users
func NewClient(opts Options) (*Client, error) {
	base, err := JoinBase(opts.BaseURL, opts.APIPrefix)
	if err != nil {
		return nil, err
	}

	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = DefaultRequestTimeout
	}
	if opts.MaxConns <= 0 {
		opts.MaxConns = 1
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	return &Client{
		base:     base,
		http:     buildHTTPClient(opts),
		observer: opts.Observer,
		logger:   opts.Logger,
	}, nil
}

// JoinBase combines the host and API prefix into the request base.
// A host that already carries the prefix is accepted as is.
func JoinBase(host, prefix string) (string, error) {
	if prefix == "" {
		prefix = DefaultAPIPrefix
	}
	u, err := url.Parse(strings.TrimRight(host, "/"))
	if err != nil {
		return "", fmt.Errorf("invalid base URL %q: %w", host, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("invalid base URL %q: scheme must be http or https", host)
	}
	if u.Host == "" {
		return "", fmt.Errorf("invalid base URL %q: missing host", host)
	}

	prefix = "/" + strings.Trim(prefix, "/")
	if !strings.HasSuffix(u.Path, prefix) {
		u.Path += prefix
	}
	return u.String(), nil
}

// BaseURL returns the resolved request base, including the API prefix
func (c *Client) BaseURL() string {
	return c.base
}

// Session returns a copy of the client with its own cookie jar.
// The transport and connection pool stay shared.
func (c *Client) Session() (*Client, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}

	httpClient := *c.http
	httpClient.Jar = jar

	clone := *c
	clone.http = &httpClient
	return &clone, nil
}

// Do executes a call. Transport failures are reported in the result's
// Error field; the returned error is only set when the request could not
// be built.
func (c *Client) Do(ctx context.Context, call Call) (*types.RequestResult, error) {
	var (
		bodyReader  io.Reader
		contentType string
		requestSize int
	)

	switch {
	case call.JSON != nil:
		payload, err := json.Marshal(call.JSON)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal %s body: %w", call.Step, err)
		}
		bodyReader = bytes.NewReader(payload)
		contentType = contentTypeJSON
		requestSize = len(payload)
	case call.Form != nil:
		encoded := call.Form.Encode()
		bodyReader = strings.NewReader(encoded)
		contentType = contentTypeForm
		requestSize = len(encoded)
	}

	fullURL := c.base + "/" + strings.TrimLeft(call.Path, "/")
	httpReq, err := http.NewRequestWithContext(ctx, call.Method, fullURL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	if call.Token != "" {
		(&oauth2.Token{AccessToken: call.Token, TokenType: "Bearer"}).SetAuthHeader(httpReq)
	}

	result := &types.RequestResult{
		VU:          VUFromContext(ctx),
		Step:        call.Step,
		Method:      call.Method,
		URL:         fullURL,
		RequestSize: requestSize,
		Timestamp:   time.Now(),

		AllowedStatuses: call.Allow,
	}

	startTime := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		// Connection failed, timeout, or other network error
		result.Duration = time.Since(startTime)
		result.Error = err.Error()
		c.finish(result)
		return result, nil
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	result.Duration = time.Since(startTime)
	result.Status = resp.StatusCode
	result.StatusText = resp.Status
	if err != nil {
		result.Error = fmt.Sprintf("failed to read response body: %v", err)
		c.finish(result)
		return result, nil
	}

	headers := make(map[string]string, len(resp.Header))
	for key, values := range resp.Header {
		headers[key] = strings.Join(values, ", ")
	}
	result.Headers = headers
	result.Body = string(bodyBytes)
	result.ResponseSize = len(bodyBytes)

	c.finish(result)
	return result, nil
}

func (c *Client) finish(result *types.RequestResult) {
	c.logger.Debug("request completed",
		zap.Int("vu", result.VU),
		zap.String("step", result.Step),
		zap.String("method", result.Method),
		zap.String("url", result.URL),
		zap.Int("status", result.Status),
		zap.Duration("duration", result.Duration),
		zap.String("error", result.Error),
	)
	if c.observer != nil {
		c.observer.ObserveRequest(result)
	}
}

// buildHTTPClient creates an HTTP client tuned for many concurrent
// virtual users sharing one connection pool
func buildHTTPClient(opts Options) *http.Client {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        opts.MaxConns,
		MaxIdleConnsPerHost: opts.MaxConns,
		MaxConnsPerHost:     opts.MaxConns * 2,
		IdleConnTimeout:     IdleConnTimeout,
		ForceAttemptHTTP2:   true,

		DialContext: (&net.Dialer{
			Timeout:   TCPDialTimeout,
			KeepAlive: TCPKeepAliveInterval,
		}).DialContext,

		TLSHandshakeTimeout:   TLSHandshakeTimeout,
		ResponseHeaderTimeout: opts.RequestTimeout,
		ExpectContinueTimeout: ExpectContinueTimeout,
	}

	if opts.InsecureSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	return &http.Client{
		Timeout:   opts.RequestTimeout,
		Transport: transport,
	}
}

type vuKey struct{}

// WithVU tags ctx with a virtual user id
func WithVU(ctx context.Context, vu int) context.Context {
	return context.WithValue(ctx, vuKey{}, vu)
}

// VUFromContext returns the virtual user id of ctx, or 0
func VUFromContext(ctx context.Context) int {
	vu, _ := ctx.Value(vuKey{}).(int)
	return vu
}
