// Package data4library fetches libraries and library holdings from the public library
// data portal. Library metadata comes from the JSON API; holdings are scraped from the
// portal's web pages, which use a different library identifier.
package data4library

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/time/rate"

	"github.com/bull/library-harvester/internal/config"
)

// Client talks to the data portal. All requests share one rate limiter so concurrent
// callers stay polite. Safe for concurrent use.
type Client struct {
	http         *http.Client
	limiter      *rate.Limiter
	apiBase      string
	webBase      string
	authKey      string
	region       string
	detailRegion string
	logger       *slog.Logger
}

// NewClient creates a portal client from cfg.
func NewClient(cfg *config.Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	limit := rate.Inf
	burst := 1
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
		burst = max(1, int(cfg.RequestsPerSecond))
	}

	return &Client{
		http:         &http.Client{Timeout: cfg.HTTPTimeout},
		limiter:      rate.NewLimiter(limit, burst),
		apiBase:      strings.TrimRight(cfg.APIBaseURL, "/"),
		webBase:      strings.TrimRight(cfg.WebBaseURL, "/"),
		authKey:      cfg.AuthKey,
		region:       cfg.Region,
		detailRegion: cfg.DetailRegion,
		logger:       logger,
	}
}

// do waits for the limiter, sends req and rejects non-200 answers.
// The caller closes the returned body.
func (c *Client) do(req *http.Request) (*http.Response, error) {
	if err := c.limiter.Wait(req.Context()); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, fmt.Errorf("%w: %s %s: %d", ErrUnexpectedStatus, req.Method, req.URL.Path, resp.StatusCode)
	}
	return resp, nil
}

func (c *Client) get(ctx context.Context, rawURL string, query url.Values) (*http.Response, error) {
	if len(query) > 0 {
		rawURL += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	return c.do(req)
}
