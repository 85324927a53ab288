package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"
	log "github.com/sirupsen/logrus"
	"storefront-api/internal/models"
)

// ChromeFetcher renders a source URL in headless Chrome and returns the page.
// Published sheets that build their table client-side need this instead of a
// plain HTTP fetch.
type ChromeFetcher struct {
	allocCtx    context.Context
	allocCancel context.CancelFunc
	timeout     time.Duration
}

func NewChromeFetcher(execPath, userAgent string, timeout time.Duration) *ChromeFetcher {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.UserAgent(userAgent),
	)
	if execPath != "" {
		opts = append(opts, chromedp.ExecPath(execPath))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)

	return &ChromeFetcher{
		allocCtx:    allocCtx,
		allocCancel: allocCancel,
		timeout:     timeout,
	}
}

func (c *ChromeFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	if c == nil {
		return nil, fmt.Errorf("%w: chrome fetcher not available", models.ErrFetchFailure)
	}
	if url == "" {
		return nil, fmt.Errorf("%w: source url not configured", models.ErrFetchFailure)
	}

	taskCtx, taskCancel := chromedp.NewContext(c.allocCtx)
	defer taskCancel()

	taskCtx, timeoutCancel := context.WithTimeout(taskCtx, c.timeout)
	defer timeoutCancel()

	stop := context.AfterFunc(ctx, taskCancel)
	defer stop()

	var contentType string
	err := chromedp.Run(taskCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Evaluate(`document.contentType`, &contentType),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", models.ErrFetchFailure, url, err)
	}

	// Non-HTML responses (CSV, JSON) are shown as text inside a <pre>.
	var page string
	if contentType == "text/html" {
		err = chromedp.Run(taskCtx, chromedp.OuterHTML("html", &page, chromedp.ByQuery))
	} else {
		err = chromedp.Run(taskCtx, chromedp.Evaluate(`document.body.innerText`, &page))
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", models.ErrFetchFailure, url, err)
	}

	log.Debugf("Chrome: rendered %s (%s, %d bytes)", url, contentType, len(page))
	return []byte(page), nil
}

func (c *ChromeFetcher) Close() {
	if c != nil && c.allocCancel != nil {
		c.allocCancel()
	}
}
