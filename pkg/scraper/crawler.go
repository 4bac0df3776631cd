package scraper

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/xhad/driftrag/internal/logger"
	"go.uber.org/zap"
)

type CrawlerConfig struct {
	MaxDepth          int
	IgnorePatterns    []string
	AllowedExtensions []string
	MaxPages          int
	OnProgress        func(url string)
}

// Crawler walks same-host links from a root page to find pages worth tracking.
type Crawler struct {
	config  CrawlerConfig
	fetcher *StaticRenderer
	log     *zap.Logger
}

func NewCrawler(config CrawlerConfig, scraper ScraperConfig, log *zap.Logger) *Crawler {
	if config.MaxDepth < 0 {
		config.MaxDepth = 0
	}
	if len(config.AllowedExtensions) == 0 {
		config.AllowedExtensions = []string{".html", ".htm", "/", ""}
	}
	if config.MaxPages == 0 {
		config.MaxPages = 100
	}
	log = logger.Or(log)

	return &Crawler{
		config:  config,
		fetcher: NewStaticRenderer(scraper),
		log:     log,
	}
}

// Discover returns root followed by every reachable page within MaxDepth
// links, in breadth-first order. Pages that fail to load are logged and
// skipped; only a failure on root itself is returned.
func (c *Crawler) Discover(ctx context.Context, root string) ([]string, error) {
	base, err := url.Parse(root)
	if err != nil {
		return nil, fmt.Errorf("failed to parse root URL: %w", err)
	}

	visited := map[string]bool{normalizeLink(base): true}
	found := []string{root}
	frontier := []string{root}

	for depth := 0; depth <= c.config.MaxDepth && len(frontier) > 0; depth++ {
		var next []string
		for _, pageURL := range frontier {
			if c.config.OnProgress != nil {
				c.config.OnProgress(pageURL)
			}
			if depth == c.config.MaxDepth {
				continue
			}

			doc, err := c.fetcher.fetch(ctx, pageURL)
			if err != nil {
				if pageURL == root {
					return nil, err
				}
				c.log.Warn("skipping page during discovery", zap.String("url", pageURL), zap.Error(err))
				continue
			}

			for _, link := range c.links(doc, pageURL, base.Host) {
				if visited[link] || len(found) >= c.config.MaxPages {
					continue
				}
				visited[link] = true
				found = append(found, link)
				next = append(next, link)
			}
		}
		frontier = next
	}

	return found, nil
}

func (c *Crawler) links(doc *goquery.Document, pageURL, host string) []string {
	page, err := url.Parse(pageURL)
	if err != nil {
		return nil
	}

	var links []string
	doc.Find("a[href]").Each(func(_ int, selection *goquery.Selection) {
		href, _ := selection.Attr("href")
		ref, err := url.Parse(strings.TrimSpace(href))
		if err != nil {
			c.log.Debug("ignoring malformed link", zap.String("href", href))
			return
		}

		abs := page.ResolveReference(ref)
		abs.Fragment = ""
		if c.shouldProcessURL(abs, host) {
			links = append(links, normalizeLink(abs))
		}
	})
	return links
}

func (c *Crawler) shouldProcessURL(u *url.URL, host string) bool {
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}

	// Check if URL is from the same host
	if u.Host != host {
		return false
	}

	// Check extensions
	path := strings.ToLower(u.Path)
	validExt := false
	for _, allowedExt := range c.config.AllowedExtensions {
		if allowedExt == "" {
			// extension-less paths such as /docs/intro
			if !strings.Contains(path[strings.LastIndex(path, "/")+1:], ".") {
				validExt = true
				break
			}
			continue
		}
		if strings.HasSuffix(path, allowedExt) {
			validExt = true
			break
		}
	}
	if !validExt {
		return false
	}

	// Check ignore patterns
	full := u.String()
	for _, pattern := range c.config.IgnorePatterns {
		if strings.Contains(full, pattern) {
			return false
		}
	}

	return true
}

func normalizeLink(u *url.URL) string {
	clone := *u
	clone.Fragment = ""
	return clone.String()
}
