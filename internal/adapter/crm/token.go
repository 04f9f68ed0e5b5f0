package crm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// ExpirySkew is subtracted from the server-declared token lifetime.
const ExpirySkew = 60 * time.Second

// ErrNoToken is returned when no access token could be obtained.
var ErrNoToken = errors.New("crm: access token unavailable")

// TokenSource caches a client-credentials access token. Concurrent callers
// that find the cache empty share a single token request.
type TokenSource struct {
	endpoint     string
	clientID     string
	clientSecret string
	resource     string
	http         *http.Client
	now          func() time.Time
	log          *slog.Logger
	metrics      *Metrics

	mu     sync.Mutex
	token  string
	expiry time.Time

	group singleflight.Group
}

// NewTokenSource builds a TokenSource for the tenant-scoped authority.
func NewTokenSource(cfg Config, httpClient *http.Client, log *slog.Logger, metrics *Metrics) *TokenSource {
	authority := strings.TrimRight(cfg.AuthorityURL, "/")
	if authority == "" {
		authority = DefaultAuthorityURL
	}
	return &TokenSource{
		endpoint:     fmt.Sprintf("%s/%s/oauth2/token", authority, url.PathEscape(cfg.TenantID)),
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		resource:     cfg.Resource,
		http:         httpClient,
		now:          time.Now,
		log:          log,
		metrics:      metrics,
	}
}

// Token returns the cached token while it is valid, otherwise requests a new one.
func (ts *TokenSource) Token(ctx context.Context) (string, error) {
	if tok, ok := ts.cached(); ok {
		return tok, nil
	}
	v, err, _ := ts.group.Do("token", func() (interface{}, error) {
		// Another caller may have refreshed while this one waited.
		if tok, ok := ts.cached(); ok {
			return tok, nil
		}
		return ts.fetch(ctx)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Clear drops the cached token so the next Token call fetches a fresh one.
func (ts *TokenSource) Clear() {
	ts.mu.Lock()
	ts.token = ""
	ts.expiry = time.Time{}
	ts.mu.Unlock()
}

func (ts *TokenSource) cached() (string, bool) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if ts.token != "" && ts.now().Before(ts.expiry) {
		return ts.token, true
	}
	return "", false
}

func (ts *TokenSource) fetch(ctx context.Context) (string, error) {
	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", ts.clientID)
	form.Set("client_secret", ts.clientSecret)
	form.Set("resource", ts.resource)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ts.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	ts.metrics.tokenRequest()
	resp, err := ts.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("crm: token request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("crm: token endpoint status %d: %s", resp.StatusCode, string(body))
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", fmt.Errorf("crm: decoding token response: %w", err)
	}
	if tr.AccessToken == "" {
		return "", errors.New("crm: token response has no access_token")
	}

	expiry := ts.now().Add(time.Duration(tr.ExpiresIn)*time.Second - ExpirySkew)
	ts.mu.Lock()
	ts.token = tr.AccessToken
	ts.expiry = expiry
	ts.mu.Unlock()
	ts.log.Debug("crm access token refreshed", slog.Time("expires", expiry))
	return tr.AccessToken, nil
}

type tokenResponse struct {
	AccessToken string  `json:"access_token"`
	ExpiresIn   seconds `json:"expires_in"`
}

// seconds accepts both 3599 and "3599"; the v1 authority sends the latter.
type seconds int64

func (s *seconds) UnmarshalJSON(b []byte) error {
	str := strings.Trim(string(b), `"`)
	if str == "" || str == "null" {
		*s = 0
		return nil
	}
	n, err := strconv.ParseInt(str, 10, 64)
	if err != nil {
		return fmt.Errorf("expires_in: %w", err)
	}
	*s = seconds(n)
	return nil
}
