package sources

import (
	"context"
	"fmt"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/gocolly/colly/v2/debug"
	log "github.com/sirupsen/logrus"
	"storefront-api/internal/models"
)

// HTTPFetcher downloads source payloads with a colly collector.
type HTTPFetcher struct {
	collector   *colly.Collector
	maxBodySize int
}

func NewHTTPFetcher(userAgent string, timeout time.Duration, maxBodySize int, verbose bool) *HTTPFetcher {
	options := []colly.CollectorOption{
		colly.UserAgent(userAgent),
		colly.AllowURLRevisit(),
	}
	if maxBodySize > 0 {
		// one byte over the limit so an oversized body is detectable
		options = append(options, colly.MaxBodySize(maxBodySize+1))
	} else {
		// colly otherwise applies its own silent 10 MiB cap
		options = append(options, colly.MaxBodySize(0))
	}
	if verbose {
		options = append(options, colly.Debugger(&debug.LogDebugger{}))
	}

	c := colly.NewCollector(options...)
	c.SetRequestTimeout(timeout)

	c.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: len(Kinds),
	})

	return &HTTPFetcher{collector: c, maxBodySize: maxBodySize}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	if url == "" {
		return nil, fmt.Errorf("%w: source url not configured", models.ErrFetchFailure)
	}

	// clones share the backend and limits but not callbacks
	c := f.collector.Clone()
	c.Context = ctx

	c.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Accept", "text/csv,application/json,text/html;q=0.9,*/*;q=0.8")
		r.Headers.Set("Cache-Control", "no-cache")
	})

	var body []byte
	var fetchErr error

	c.OnResponse(func(r *colly.Response) {
		log.Debugf("Source response from %s: %d (%d bytes)", url, r.StatusCode, len(r.Body))
		body = r.Body
	})

	c.OnError(func(r *colly.Response, err error) {
		fetchErr = fmt.Errorf("status %d: %v", r.StatusCode, err)
	})

	if err := c.Visit(url); err != nil && fetchErr == nil {
		fetchErr = err
	}
	c.Wait()

	if fetchErr == nil && f.maxBodySize > 0 && len(body) > f.maxBodySize {
		fetchErr = fmt.Errorf("body exceeds %d bytes", f.maxBodySize)
	}
	if fetchErr != nil {
		return nil, fmt.Errorf("%w: %s: %v", models.ErrFetchFailure, url, fetchErr)
	}
	return body, nil
}
