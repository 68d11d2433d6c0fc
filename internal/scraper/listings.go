package scraper

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/parcelworks/assessor-scraper/internal/store"
)

// Hard ceiling on listing pagination so a broken next-page control cannot
// loop forever.
const maxListingPages = 100

// Listing row selectors tried in order until one yields parcels.
var listingRowSelectors = []string{
	"#ctl00_MainContent_grdResults tr",
	"#MainContent_grdResults tr",
	"#ctl00_MainContent_grdSearchResults tr",
	"table.results tr",
	".property-list tr",
	"table tr[onclick]",
	"table tbody tr",
}

// Fallback link selectors when no listing table is recognized.
var parcelLinkSelectors = []string{
	"a[href*='Parcel.aspx']",
	"a[href*='parcel.aspx']",
	"a[href*='PID=']",
	"a[href*='pid=']",
	"a[href*='ParcelID=']",
}

// Pagination controls for listing pages.
var listingNextSelectors = []string{
	"a[href*='Page$Next']",
	"#ctl00_MainContent_lnkNext",
	".next-page",
}

// Parcel ID query parameter spellings seen across VGSI deployments.
var parcelIDParams = []string{"PID", "pid", "ParcelID", "parcelid", "id", "ID"}

var pidPattern = regexp.MustCompile(`(?i)pid=(\d+)`)

// ListingScraper extracts parcel refs from a street's listing pages.
type ListingScraper struct {
	pager   Pager
	logger  *zap.Logger
	baseURL *url.URL
}

// NewListingScraper builds a ListingScraper; relative detail links resolve
// against baseURL.
func NewListingScraper(pager Pager, logger *zap.Logger, baseURL string) (*ListingScraper, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	return &ListingScraper{pager: pager, logger: logger, baseURL: base}, nil
}

// ScrapeStreet walks a street's listing pages and returns its parcel refs,
// deduplicated by parcel ID with the first occurrence kept.
func (s *ListingScraper) ScrapeStreet(ctx context.Context, street store.Street) ([]store.ParcelRef, error) {
	if street.URL == "" {
		s.logger.Warn("street has no url", zap.String("street", street.Name))
		return nil, nil
	}

	doc, err := s.pager.Navigate(ctx, street.URL)
	if err != nil {
		return nil, fmt.Errorf("load street %s: %w", street.Name, err)
	}

	var refs []store.ParcelRef
	seen := make(map[string]struct{})
	appendRefs := func(found []store.ParcelRef) {
		for _, ref := range found {
			if _, dup := seen[ref.ParcelID]; dup {
				continue
			}
			seen[ref.ParcelID] = struct{}{}
			refs = append(refs, ref)
		}
	}

	for page := 1; ; page++ {
		appendRefs(s.extractRefs(doc, street))

		if page >= maxListingPages {
			s.logger.Warn("hit pagination ceiling", zap.String("street", street.Name))
			break
		}

		next, ok, err := s.pager.NextPage(ctx, listingNextSelectors...)
		if err != nil {
			return nil, fmt.Errorf("paginate street %s: %w", street.Name, err)
		}
		if !ok {
			break
		}
		doc = next
	}

	s.logger.Info("street listings scraped",
		zap.String("street", street.Name),
		zap.Int("parcels", len(refs)),
	)
	return refs, nil
}

func (s *ListingScraper) extractRefs(doc *goquery.Document, street store.Street) []store.ParcelRef {
	for _, selector := range listingRowSelectors {
		rows := doc.Find(selector)
		if rows.Length() <= 1 {
			continue
		}
		var found []store.ParcelRef
		rows.Each(func(_ int, row *goquery.Selection) {
			if ref, ok := s.refFromRow(row, street); ok {
				found = append(found, ref)
			}
		})
		if len(found) > 0 {
			return found
		}
	}
	return s.refsFromLinks(doc, street)
}

func (s *ListingScraper) refFromRow(row *goquery.Selection, street store.Street) (store.ParcelRef, bool) {
	link := row.Find("a[href*='Parcel']").First()
	if link.Length() == 0 {
		link = row.Find("a[href*='parcel']").First()
	}
	if link.Length() == 0 {
		link = row.Find("a").First()
	}
	href, ok := link.Attr("href")
	if !ok {
		return store.ParcelRef{}, false
	}
	parcelID := ParcelIDFromURL(href)
	if parcelID == "" {
		return store.ParcelRef{}, false
	}
	return store.ParcelRef{
		ParcelID:  parcelID,
		Address:   strings.TrimSpace(link.Text()),
		DetailURL: s.resolveURL(href),
		Street:    street.Name,
	}, true
}

func (s *ListingScraper) refsFromLinks(doc *goquery.Document, street store.Street) []store.ParcelRef {
	for _, selector := range parcelLinkSelectors {
		var found []store.ParcelRef
		doc.Find(selector).Each(func(_ int, link *goquery.Selection) {
			href, ok := link.Attr("href")
			if !ok {
				return
			}
			parcelID := ParcelIDFromURL(href)
			if parcelID == "" {
				return
			}
			found = append(found, store.ParcelRef{
				ParcelID:  parcelID,
				Address:   strings.TrimSpace(link.Text()),
				DetailURL: s.resolveURL(href),
				Street:    street.Name,
			})
		})
		if len(found) > 0 {
			return found
		}
	}
	return nil
}

func (s *ListingScraper) resolveURL(href string) string {
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return s.baseURL.ResolveReference(ref).String()
}

// ParcelIDFromURL pulls the parcel identifier out of a detail link, trying
// the known query parameter spellings before a pid= regex fallback.
func ParcelIDFromURL(raw string) string {
	parsed, err := url.Parse(raw)
	if err == nil {
		params := parsed.Query()
		for _, name := range parcelIDParams {
			if v := params.Get(name); v != "" {
				return v
			}
		}
	}
	if m := pidPattern.FindStringSubmatch(raw); m != nil {
		return m[1]
	}
	return ""
}
