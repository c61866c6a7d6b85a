// Package hub is a small client for the model hub: identity, repo metadata,
// file downloads and the datasets rows API.
package hub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
)

const (
	DefaultHubURL      = "https://huggingface.co"
	DefaultDatasetsURL = "https://datasets-server.huggingface.co"
	defaultUserAgent   = "aiserver/1.0"
	defaultParallel    = 4
)

var (
	ErrNotFound     = errors.New("hub: not found")
	ErrUnauthorized = errors.New("hub: unauthorized")
	ErrRateLimited  = errors.New("hub: rate limited")
	ErrInvalidRepo  = errors.New("hub: invalid repo id")
)

// Sibling is one file of a repo.
type Sibling struct {
	Filename string `json:"rfilename"`
	Size     int64  `json:"size,omitempty"`
}

// RepoInfo is the subset of /api/models/<repo> the loaders use.
type RepoInfo struct {
	ID       string    `json:"id"`
	SHA      string    `json:"sha"`
	Private  bool      `json:"private"`
	Gated    any       `json:"gated"`
	Tags     []string  `json:"tags"`
	Siblings []Sibling `json:"siblings"`
}

// Identity is returned by /api/whoami-v2.
type Identity struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Client talks to the hub over HTTP.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	datasetsURL string
	token       string
	userAgent   string
	parallel    int
}

// Option configures a Client.
type Option func(*Client)

func WithToken(token string) Option { return func(c *Client) { c.token = token } }

func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

func WithDatasetsURL(u string) Option {
	return func(c *Client) { c.datasetsURL = strings.TrimRight(u, "/") }
}

func WithHTTPClient(hc *http.Client) Option { return func(c *Client) { c.httpClient = hc } }

func WithUserAgent(ua string) Option { return func(c *Client) { c.userAgent = ua } }

// WithConcurrency bounds parallel file downloads; n <= 0 keeps the default.
func WithConcurrency(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.parallel = n
		}
	}
}

// NewClient builds a client. HF_TOKEN and HF_ENDPOINT seed the defaults;
// explicit options win.
func NewClient(opts ...Option) *Client {
	c := &Client{
		// Downloads of multi-GB shards are bounded by the caller's context.
		httpClient:  &http.Client{Timeout: 0},
		baseURL:     DefaultHubURL,
		datasetsURL: DefaultDatasetsURL,
		userAgent:   defaultUserAgent,
		parallel:    defaultParallel,
	}
	if tok := os.Getenv("HF_TOKEN"); tok != "" {
		c.token = tok
	}
	if ep := os.Getenv("HF_ENDPOINT"); ep != "" {
		c.baseURL = strings.TrimRight(ep, "/")
	}
	for _, o := range opts {
		if o != nil {
			o(c)
		}
	}
	return c
}

// HasToken reports whether requests are authenticated.
func (c *Client) HasToken() bool { return c.token != "" }

// Token returns the configured credential, for handing to child processes.
func (c *Client) Token() string { return c.token }

// WhoAmI verifies the configured token.
func (c *Client) WhoAmI(ctx context.Context) (Identity, error) {
	var id Identity
	if c.token == "" {
		return id, fmt.Errorf("%w: no token configured", ErrUnauthorized)
	}
	err := c.getJSON(ctx, c.baseURL+"/api/whoami-v2", &id)
	return id, err
}

// ModelInfo fetches repo metadata including the file list.
func (c *Client) ModelInfo(ctx context.Context, repo string) (*RepoInfo, error) {
	if err := ValidateRepo(repo); err != nil {
		return nil, err
	}
	var info RepoInfo
	if err := c.getJSON(ctx, c.baseURL+"/api/models/"+repo, &info); err != nil {
		return nil, fmt.Errorf("model info %s: %w", repo, err)
	}
	return &info, nil
}

func (c *Client) getJSON(ctx context.Context, u string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	c.setHeaders(req)
	req.Header.Set("Accept", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := checkResponse(resp); err != nil {
		return err
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode %s: %w", redact(u), err)
	}
	return nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("User-Agent", c.userAgent)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

func checkResponse(resp *http.Response) error {
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return ErrUnauthorized
	case resp.StatusCode == http.StatusTooManyRequests:
		return ErrRateLimited
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("hub: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
}

// ValidateRepo checks for the owner/name form.
func ValidateRepo(repo string) error {
	parts := strings.Split(repo, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return fmt.Errorf("%w: %q (want owner/name)", ErrInvalidRepo, repo)
	}
	return nil
}

func redact(u string) string {
	p, err := url.Parse(u)
	if err != nil {
		return u
	}
	p.RawQuery = ""
	return p.String()
}
