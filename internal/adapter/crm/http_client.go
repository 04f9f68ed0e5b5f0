package crm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	// DefaultAuthorityURL is the Azure AD v1 authority host.
	DefaultAuthorityURL = "https://login.microsoftonline.com"
	// DefaultTimeout bounds every CRM and token call.
	DefaultTimeout = 30 * time.Second

	apiPrefix = "/api/data/v9.2/"
	// maxBody caps how much of a response is read into memory.
	maxBody = 1 << 20
)

// Config holds the CRM connection settings.
type Config struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	TenantID     string
	Resource     string // defaults to BaseURL
	AuthorityURL string // defaults to DefaultAuthorityURL
	Timeout      time.Duration
}

// Client talks to the Dataverse Web API (OData v4.0) on behalf of the
// application registration described by Config.
type Client struct {
	baseURL string
	http    *http.Client
	tokens  *TokenSource
	log     *slog.Logger
	metrics *Metrics
}

// NewClient builds a Client. metrics may be nil.
func NewClient(cfg Config, log *slog.Logger, metrics *Metrics) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Resource == "" {
		cfg.Resource = cfg.BaseURL
	}
	httpClient := &http.Client{Timeout: cfg.Timeout}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    httpClient,
		tokens:  NewTokenSource(cfg, httpClient, log, metrics),
		log:     log,
		metrics: metrics,
	}
}

// AccessToken returns the current bearer token, or "" when none could be
// obtained. Failures are logged, never returned.
func (c *Client) AccessToken(ctx context.Context) string {
	tok, err := c.tokens.Token(ctx)
	if err != nil {
		c.log.Error("crm token acquisition failed", slog.String("error", err.Error()))
		return ""
	}
	return tok
}

// ClearToken drops the cached access token.
func (c *Client) ClearToken() { c.tokens.Clear() }

// response is a fully-read CRM reply.
type response struct {
	status int
	header http.Header
	body   []byte
}

// do sends an authenticated request. A 401 clears the cached token and the
// request is replayed exactly once with a fresh one; the second reply is
// returned whatever its status.
func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, payload any) (*response, error) {
	var body []byte
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("crm: encoding %s body: %w", op, err)
		}
		body = b
	}

	resp, err := c.send(ctx, op, method, path, query, body)
	if err != nil || resp.status != http.StatusUnauthorized {
		return resp, err
	}

	c.log.Warn("crm returned 401, refreshing token", slog.String("op", op))
	c.tokens.Clear()
	c.metrics.authRetry()
	return c.send(ctx, op, method, path, query, body)
}

func (c *Client) send(ctx context.Context, op, method, path string, query url.Values, body []byte) (*response, error) {
	token := c.AccessToken(ctx)
	if token == "" {
		return nil, ErrNoToken
	}

	u, err := url.Parse(c.baseURL + apiPrefix + path)
	if err != nil {
		return nil, err
	}
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}

	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), rdr)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("OData-MaxVersion", "4.0")
	req.Header.Set("OData-Version", "4.0")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		c.metrics.request(op, 0)
		return nil, fmt.Errorf("crm: %s: %w", op, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		c.metrics.request(op, 0)
		return nil, fmt.Errorf("crm: reading %s response: %w", op, err)
	}
	c.metrics.request(op, resp.StatusCode)
	return &response{status: resp.StatusCode, header: resp.Header, body: data}, nil
}

// ValidateConnection calls WhoAmI and reports whether it answered 200.
func (c *Client) ValidateConnection(ctx context.Context) bool {
	resp, err := c.do(ctx, "whoami", http.MethodGet, "WhoAmI", nil, nil)
	if err != nil {
		c.log.Error("crm connection check failed", slog.String("error", err.Error()))
		return false
	}
	if resp.status != http.StatusOK {
		c.log.Error("crm connection check failed", slog.Int("status", resp.status))
		return false
	}
	return true
}

// StatusError is a non-success CRM reply.
type StatusError struct {
	Op     string
	Status int
	Body   []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("crm: %s: unexpected status %d: %s", e.Op, e.Status, extractErrorMessage(e.Body))
}
