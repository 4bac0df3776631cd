package scraper

import (
	"context"
	"strings"

	"github.com/chromedp/chromedp"
	"github.com/xhad/driftrag/internal/models"
	"github.com/xhad/driftrag/internal/types"
	"golang.org/x/time/rate"
)

// ChromeRenderer loads pages in headless Chrome so that script-generated
// content is present before the text is read.
type ChromeRenderer struct {
	config  ScraperConfig
	limiter *rate.Limiter
	opts    []chromedp.ExecAllocatorOption
}

func NewChromeRenderer(config ScraperConfig) *ChromeRenderer {
	config = config.withDefaults()

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.UserAgent(config.UserAgent),
	)
	if config.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(config.ExecPath))
	}

	return &ChromeRenderer{
		config:  config,
		limiter: config.Limiter,
		opts:    opts,
	}
}

func (c *ChromeRenderer) Render(ctx context.Context, rawURL string) (models.Page, error) {
	if err := validateURL(rawURL); err != nil {
		return models.Page{}, &types.FetchError{URL: rawURL, Err: err}
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return models.Page{}, &types.FetchError{URL: rawURL, Err: err}
	}

	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, c.opts...)
	defer cancelAlloc()

	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	if err := chromedp.Run(browserCtx,
		chromedp.Navigate(rawURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
	); err != nil {
		return models.Page{}, &types.FetchError{URL: rawURL, Err: err}
	}

	var title, text string
	if err := chromedp.Run(browserCtx,
		chromedp.Title(&title),
		chromedp.Evaluate(`document.body ? document.body.innerText : ""`, &text),
	); err != nil {
		return models.Page{}, &types.RenderError{URL: rawURL, Err: err}
	}

	text = strings.Join(strings.Fields(text), " ")
	if text == "" {
		return models.Page{}, &types.RenderError{URL: rawURL, Err: errNoContent}
	}

	return models.Page{
		URL:   rawURL,
		Title: strings.TrimSpace(title),
		Text:  text,
	}, nil
}
