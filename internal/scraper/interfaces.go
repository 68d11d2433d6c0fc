package scraper

import (
	"context"

	"github.com/PuerkitoBio/goquery"
)

// Pager renders pages for the extraction stages. The headless browser session
// implements it; tests substitute fixture-backed fakes.
type Pager interface {
	// Navigate loads url and returns the rendered document.
	Navigate(ctx context.Context, url string) (*goquery.Document, error)
	// NextPage clicks the first matching pagination control and returns the
	// re-rendered document. ok is false when no control matched, which ends
	// pagination without error.
	NextPage(ctx context.Context, selectors ...string) (doc *goquery.Document, ok bool, err error)
}
