package youtube

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/alucardeht/ytscribe-mcp/internal/logger"
)

var log = logger.ForComponent("youtube")

const (
	DefaultAPIBase    = "https://www.googleapis.com/youtube/v3"
	DefaultWebBase    = "https://www.youtube.com"
	DefaultUserAgent  = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"
	DefaultTimeout    = 10 * time.Second
	DefaultMaxResults = 20
	MaxSearchResults  = 50

	maxBodySize = 8 << 20
)

var (
	ErrMissingAPIKey = errors.New("YouTube API key is not configured")
	ErrNotFound      = errors.New("not found")
)

// StatusError is a non-2xx answer from a YouTube endpoint. URL never contains
// the API key.
type StatusError struct {
	URL        string
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("HTTP %d from %s: %s", e.StatusCode, e.URL, e.Message)
	}
	return fmt.Sprintf("HTTP %d from %s", e.StatusCode, e.URL)
}

// Client talks to the YouTube Data API v3 and the public web endpoints.
type Client struct {
	http      *http.Client
	apiBase   string
	webBase   string
	userAgent string
	apiKey    atomic.Pointer[string]
	now       func() time.Time
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

func WithAPIBase(base string) Option {
	return func(c *Client) {
		if base != "" {
			c.apiBase = strings.TrimRight(base, "/")
		}
	}
}

func WithWebBase(base string) Option {
	return func(c *Client) {
		if base != "" {
			c.webBase = strings.TrimRight(base, "/")
		}
	}
}

func WithUserAgent(ua string) Option {
	return func(c *Client) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

func WithAPIKey(key string) Option {
	return func(c *Client) {
		c.SetAPIKey(key)
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		c.now = now
	}
}

func NewClient(opts ...Option) *Client {
	c := &Client{
		http:      &http.Client{Timeout: DefaultTimeout},
		apiBase:   DefaultAPIBase,
		webBase:   DefaultWebBase,
		userAgent: DefaultUserAgent,
		now:       time.Now,
	}
	c.SetAPIKey("")
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetAPIKey swaps the key used for Data API calls. Safe for concurrent use.
func (c *Client) SetAPIKey(key string) {
	key = strings.TrimSpace(key)
	c.apiKey.Store(&key)
}

func (c *Client) APIKey() string {
	return *c.apiKey.Load()
}

// WebURL builds a URL on the public site, e.g. WebURL("/api/timedtext", q).
func (c *Client) WebURL(path string, query url.Values) string {
	u := c.webBase + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

func (c *Client) WatchURL(videoID string) string {
	return c.WebURL("/watch", url.Values{"v": {videoID}})
}

// Page is a fetched document decoded to UTF-8.
type Page struct {
	StatusCode  int
	ContentType string
	Body        string
}

func (p *Page) OK() bool {
	return p.StatusCode >= 200 && p.StatusCode < 300
}

// Fetch GETs rawURL with the browser user agent. Non-2xx statuses are not
// errors; callers inspect Page.StatusCode.
func (c *Client) Fetch(ctx context.Context, rawURL string) (*Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept-Language", "ko,en;q=0.9")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", redact(rawURL), err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", redact(rawURL), err)
	}

	contentType := resp.Header.Get("Content-Type")
	return &Page{
		StatusCode:  resp.StatusCode,
		ContentType: contentType,
		Body:        DecodeBody(body, contentType),
	}, nil
}

// getJSON calls a Data API endpoint and decodes its JSON body into v.
func (c *Client) getJSON(ctx context.Context, endpoint string, params url.Values, v interface{}) error {
	key := c.APIKey()
	if key == "" {
		return ErrMissingAPIKey
	}

	params.Set("key", key)
	rawURL := c.apiBase + "/" + endpoint + "?" + params.Encode()

	start := time.Now()
	page, err := c.Fetch(ctx, rawURL)
	if err != nil {
		return err
	}
	log.Debug("data api call", "endpoint", endpoint, "status", page.StatusCode, "latency_ms", time.Since(start).Milliseconds())

	if !page.OK() {
		return &StatusError{
			URL:        redact(rawURL),
			StatusCode: page.StatusCode,
			Message:    apiErrorMessage(page.Body),
		}
	}

	if err := json.Unmarshal([]byte(page.Body), v); err != nil {
		return fmt.Errorf("decode %s response: %w", endpoint, err)
	}
	return nil
}

func apiErrorMessage(body string) string {
	var payload struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal([]byte(body), &payload); err != nil {
		return ""
	}
	return payload.Error.Message
}

func redact(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	q := u.Query()
	if q.Has("key") {
		q.Set("key", "REDACTED")
		u.RawQuery = q.Encode()
	}
	return u.String()
}
