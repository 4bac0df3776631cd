package scraper

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/xhad/driftrag/internal/models"
	"github.com/xhad/driftrag/internal/types"
	"golang.org/x/net/html/charset"
	"golang.org/x/time/rate"
)

var errNoContent = errors.New("page has no visible text")

type ScraperConfig struct {
	RateLimit float64 // requests per second
	Timeout   time.Duration
	UserAgent string
	// Selectors narrows extraction to the first matching element; body otherwise.
	Selectors []string
	// ExecPath overrides the Chrome binary used by ChromeRenderer.
	ExecPath string
	// Limiter is shared between renderers when set.
	Limiter *rate.Limiter
}

func (c ScraperConfig) withDefaults() ScraperConfig {
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}
	if c.RateLimit == 0 {
		c.RateLimit = 2 // 2 requests per second by default
	}
	if c.UserAgent == "" {
		c.UserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64)"
	}
	if c.Limiter == nil {
		c.Limiter = rate.NewLimiter(rate.Limit(c.RateLimit), 1)
	}
	return c
}

// NewRenderer returns the renderer named by kind: "chrome" or "static".
func NewRenderer(kind string, config ScraperConfig) (types.PageRenderer, error) {
	switch kind {
	case "chrome", "":
		return NewChromeRenderer(config), nil
	case "static":
		return NewStaticRenderer(config), nil
	default:
		return nil, fmt.Errorf("unknown renderer %q", kind)
	}
}

// StaticRenderer fetches raw HTML without running scripts.
type StaticRenderer struct {
	config  ScraperConfig
	client  *http.Client
	limiter *rate.Limiter
}

func NewStaticRenderer(config ScraperConfig) *StaticRenderer {
	config = config.withDefaults()

	return &StaticRenderer{
		config: config,
		client: &http.Client{
			Timeout: config.Timeout,
		},
		limiter: config.Limiter,
	}
}

func (s *StaticRenderer) Render(ctx context.Context, rawURL string) (models.Page, error) {
	doc, err := s.fetch(ctx, rawURL)
	if err != nil {
		return models.Page{}, err
	}

	content := extractMainContent(doc, s.config.Selectors)
	if content == "" {
		return models.Page{}, &types.RenderError{URL: rawURL, Err: errNoContent}
	}

	return models.Page{
		URL:   rawURL,
		Title: strings.TrimSpace(doc.Find("title").First().Text()),
		Text:  content,
	}, nil
}

func (s *StaticRenderer) fetch(ctx context.Context, rawURL string) (*goquery.Document, error) {
	if err := validateURL(rawURL); err != nil {
		return nil, &types.FetchError{URL: rawURL, Err: err}
	}

	// Apply rate limiting
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, &types.FetchError{URL: rawURL, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &types.FetchError{URL: rawURL, Err: err}
	}
	req.Header.Set("User-Agent", s.config.UserAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, &types.FetchError{URL: rawURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &types.FetchError{URL: rawURL, Err: fmt.Errorf("received status code %d", resp.StatusCode)}
	}

	body, err := charset.NewReader(resp.Body, resp.Header.Get("Content-Type"))
	if err != nil {
		return nil, &types.RenderError{URL: rawURL, Err: fmt.Errorf("failed to decode charset: %w", err)}
	}

	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return nil, &types.RenderError{URL: rawURL, Err: err}
	}

	return doc, nil
}

func extractMainContent(doc *goquery.Document, selectors []string) string {
	doc.Find("script, style, noscript, template").Remove()

	var selection *goquery.Selection
	for _, selector := range selectors {
		if selected := doc.Find(selector); selected.Length() > 0 {
			selection = selected
			break
		}
	}

	// Fallback to body if no main content found
	if selection == nil {
		selection = doc.Find("body")
	}

	var b strings.Builder
	collectText(selection, &b)

	return strings.Join(strings.Fields(b.String()), " ")
}

// collectText writes every text node under sel, separated by spaces so that
// adjacent block elements do not run together.
func collectText(sel *goquery.Selection, b *strings.Builder) {
	sel.Contents().Each(func(_ int, s *goquery.Selection) {
		if goquery.NodeName(s) == "#text" {
			b.WriteString(s.Text())
			b.WriteByte(' ')
			return
		}
		collectText(s, b)
	})
}

func validateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("missing host")
	}
	return nil
}
