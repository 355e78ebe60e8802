// Package client implements the authenticated, pooled, retrying HTTP
// transport to the remote issue tracker, per spec.md §4.2.
//
// Grounded on two teacher shapes: the streaming-download contract follows
// the teacher's own verifier.hashRange practice of reading through a
// bounded buffer rather than slurping a body into memory, and the
// status-code-to-disposition mapping follows
// kmkrofficial-project-tachyon/internal/engine/http.go's friendlyHTTPError,
// generalized from user-facing strings to the scanerr.Kind taxonomy.
// Retries for idempotent JSON calls are delegated to
// hashicorp/go-retryablehttp rather than hand-rolled, since that library is
// exactly the "transport retry with exponential backoff" building block
// spec.md §4.2 describes.
package client

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	retryablehttp "github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"

	"github.com/ivoronin/attachmentscan/internal/ratelimit"
	"github.com/ivoronin/attachmentscan/internal/scanerr"
)

// DefaultFields are the fields always requested from the search endpoint
// per spec.md §4.2.
var DefaultFields = []string{"key", "attachments", "project", "status", "updated"}

// Credentials holds exactly one authentication form: a bearer token, or a
// basic-auth username/password pair.
type Credentials struct {
	Token    string
	Username string
	Password string
}

func (c Credentials) validate() error {
	hasToken := c.Token != ""
	hasBasic := c.Username != "" || c.Password != ""
	if hasToken == hasBasic {
		return fmt.Errorf("exactly one of token or username+password must be configured")
	}
	return nil
}

// Config configures a Client.
type Config struct {
	BaseURL     string
	Credentials Credentials
	VerifySSL   bool
	// WorkerCount sizes the connection pool to ~2x this value, per
	// spec.md §4.2.
	WorkerCount int
}

// Client is the authenticated HTTP transport to the remote tracker.
type Client struct {
	baseURL     *url.URL
	creds       Credentials
	retryable   *retryablehttp.Client
	plain       *http.Client
	rateLimiter *ratelimit.Limiter
	log         *zap.SugaredLogger
}

// New constructs a Client. cfg.BaseURL must parse as an absolute URL.
func New(cfg Config, rl *ratelimit.Limiter, log *zap.SugaredLogger) (*Client, error) {
	if err := cfg.Credentials.validate(); err != nil {
		return nil, err
	}
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}

	poolSize := cfg.WorkerCount * 2
	if poolSize < 2 {
		poolSize = 2
	}

	transport := &http.Transport{
		MaxIdleConns:        poolSize,
		MaxIdleConnsPerHost: poolSize,
		MaxConnsPerHost:     poolSize,
		TLSClientConfig:     &tls.Config{InsecureSkipVerify: !cfg.VerifySSL}, //nolint:gosec // operator opt-in via remote.verify_ssl
	}

	rc := retryablehttp.NewClient()
	rc.HTTPClient = &http.Client{Transport: transport}
	rc.RetryMax = 3
	rc.Logger = nil
	// Only retry on network errors and 5xx; 401/403/429 must surface
	// immediately rather than be retried (spec.md §4.2/§7).
	rc.CheckRetry = func(ctx context.Context, resp *http.Response, err error) (bool, error) {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		if err != nil {
			return true, nil
		}
		if resp.StatusCode >= 500 {
			return true, nil
		}
		return false, nil
	}

	return &Client{
		baseURL:     base,
		creds:       cfg.Credentials,
		retryable:   rc,
		plain:       &http.Client{Transport: transport},
		rateLimiter: rl,
		log:         log,
	}, nil
}

func (c *Client) authenticate(req *http.Request) {
	if c.creds.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.creds.Token)
		return
	}
	req.SetBasicAuth(c.creds.Username, c.creds.Password)
}

// classifyStatus maps a response status code to an error Kind, or nil if
// the status is not itself an error condition.
func classifyStatus(op string, status int) error {
	switch {
	case status == http.StatusUnauthorized:
		return scanerr.New(scanerr.KindAuthentication, op, fmt.Errorf("http %d", status))
	case status == http.StatusForbidden:
		return scanerr.New(scanerr.KindAuthorization, op, fmt.Errorf("http %d", status))
	case status == http.StatusTooManyRequests:
		return scanerr.New(scanerr.KindRateLimited, op, fmt.Errorf("http %d", status))
	case status >= 500:
		return scanerr.New(scanerr.KindTransport, op, fmt.Errorf("http %d", status))
	case status >= 400:
		return fmt.Errorf("%s: http %d", op, status)
	default:
		return nil
	}
}

// doJSON performs a rate-limited, retried GET against endpoint with query
// params, decoding the JSON response body into out.
func (c *Client) doJSON(ctx context.Context, op, endpoint string, query url.Values, out any) error {
	c.rateLimiter.Acquire()

	u := *c.baseURL
	u.Path = joinPath(u.Path, endpoint)
	u.RawQuery = query.Encode()

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", op, err)
	}
	c.authenticate(req.Request)
	req.Header.Set("Accept", "application/json")

	resp, err := c.retryable.Do(req)
	if err != nil {
		return scanerr.New(scanerr.KindTransport, op, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if serr := classifyStatus(op, resp.StatusCode); serr != nil {
		return serr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	return nil
}

// Count returns the total number of issues matching predicate. It
// implements this by requesting a page size of 0, which causes the
// search endpoint to return only the total count and no issue bodies.
func (c *Client) Count(ctx context.Context, predicate string) (int, error) {
	page, err := c.search(ctx, predicate, 0, 0, nil)
	if err != nil {
		return 0, err
	}
	return page.Total, nil
}

// Search returns one page of issues matching predicate.
func (c *Client) Search(ctx context.Context, predicate string, offset, pageSize int, fields []string) (*SearchPage, error) {
	return c.search(ctx, predicate, offset, pageSize, fields)
}

func (c *Client) search(ctx context.Context, predicate string, offset, pageSize int, fields []string) (*SearchPage, error) {
	if fields == nil {
		fields = DefaultFields
	}
	q := url.Values{}
	q.Set("jql", predicate)
	q.Set("startAt", strconv.Itoa(offset))
	q.Set("maxResults", strconv.Itoa(pageSize))
	q.Set("fields", joinComma(fields))

	var page SearchPage
	if err := c.doJSON(ctx, "search", "/rest/api/2/search", q, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// Ping performs an authenticated self-check, returning true on HTTP 200.
func (c *Client) Ping(ctx context.Context) (bool, error) {
	c.rateLimiter.Acquire()

	u := *c.baseURL
	u.Path = joinPath(u.Path, "/rest/api/2/myself")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return false, fmt.Errorf("ping: build request: %w", err)
	}
	c.authenticate(req)

	resp, err := c.plain.Do(req)
	if err != nil {
		return false, scanerr.New(scanerr.KindTransport, "ping", err)
	}
	defer func() { _ = resp.Body.Close() }()

	return resp.StatusCode == http.StatusOK, nil
}

// Download opens a streaming body for an attachment's content URL. The
// caller must drain and close the returned ReadCloser exactly once.
//
// This deliberately does not go through the retrying client: a partially
// streamed response body cannot be safely re-requested mid-stream, and
// spec.md's disposition for download failures is "fall back to URL hash",
// not "retry the transport".
func (c *Client) Download(ctx context.Context, contentURL string, timeout time.Duration) (io.ReadCloser, error) {
	c.rateLimiter.Acquire()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, contentURL, nil)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("download: build request: %w", err)
	}
	c.authenticate(req)

	resp, err := c.plain.Do(req)
	if err != nil {
		cancel()
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		cancel()
		if serr := classifyStatus("download", resp.StatusCode); serr != nil {
			return nil, serr
		}
		return nil, fmt.Errorf("download: http %d", resp.StatusCode)
	}

	return &cancelingBody{ReadCloser: resp.Body, cancel: cancel}, nil
}

// cancelingBody releases the context's timeout timer when the body is
// closed, whether that happens because the caller finished reading or
// because it bailed out early on an I/O error.
type cancelingBody struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (b *cancelingBody) Close() error {
	defer b.cancel()
	return b.ReadCloser.Close()
}

func joinPath(base, p string) string {
	if base == "" || base == "/" {
		return p
	}
	return base + p
}

func joinComma(fields []string) string {
	out := ""
	for i, f := range fields {
		if i > 0 {
			out += ","
		}
		out += f
	}
	return out
}
