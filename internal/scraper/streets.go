package scraper

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/parcelworks/assessor-scraper/internal/store"
)

const shardLetters = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// Street link selectors tried in order until one yields results. The site is
// an ASP.NET app, so GridView patterns come first.
var streetSelectors = []string{
	"table a[href*='Street']",
	"table a[href*='street']",
	"table.grid a",
	"#ctl00_MainContent_grdStreets a",
	"#MainContent_grdStreets a",
	".street-list a",
	"ul.streets a",
	".street-item a",
	"[id*='Street'] a",
	"[id*='grid'] a[href]",
	"tr td a[href*='aspx']",
}

// Navigation labels that show up in the same tables as street links.
var streetExcludePatterns = []string{
	"next", "previous", "page", "back", "home", "search",
	"login", "help", "contact", "about", "...", "«", "»",
	"first", "last",
}

// StreetScraper walks the alphabetical street index and collects every
// street with its listing URL.
type StreetScraper struct {
	pager      Pager
	logger     *zap.Logger
	baseURL    *url.URL
	streetsURL string
}

// NewStreetScraper builds a StreetScraper. streetsURL is the absolute URL of
// the street index page; relative street links resolve against baseURL.
func NewStreetScraper(pager Pager, logger *zap.Logger, baseURL, streetsURL string) (*StreetScraper, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	return &StreetScraper{
		pager:      pager,
		logger:     logger,
		baseURL:    base,
		streetsURL: streetsURL,
	}, nil
}

// ScrapeAll walks the A-Z shards and returns the deduplicated street list.
// Duplicate names keep the first-seen entry, compared case-insensitively.
// A shard that fails after the pager's retries is logged and skipped; the
// healthy shards' streets still come back. Only a canceled context, or every
// shard failing, is an error.
func (s *StreetScraper) ScrapeAll(ctx context.Context) ([]store.Street, error) {
	var streets []store.Street
	seen := make(map[string]struct{})
	failed := 0

	for _, letter := range shardLetters {
		shardURL := fmt.Sprintf("%s?Letter=%c", s.streetsURL, letter)
		doc, err := s.pager.Navigate(ctx, shardURL)
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("load street shard %c: %w", letter, err)
			}
			failed++
			s.logger.Warn("street shard failed, skipping",
				zap.String("letter", string(letter)),
				zap.Error(err),
			)
			continue
		}

		found := s.extractStreets(doc)
		s.logger.Debug("scraped street shard",
			zap.String("letter", string(letter)),
			zap.Int("count", len(found)),
		)

		for _, st := range found {
			key := strings.ToUpper(st.Name)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			streets = append(streets, st)
		}
	}

	if failed == len(shardLetters) {
		return nil, fmt.Errorf("all %d street shards failed", failed)
	}

	s.logger.Info("street index scraped",
		zap.Int("streets", len(streets)),
		zap.Int("failed_shards", failed),
	)
	return streets, nil
}

func (s *StreetScraper) extractStreets(doc *goquery.Document) []store.Street {
	for _, selector := range streetSelectors {
		var found []store.Street
		doc.Find(selector).Each(func(_ int, link *goquery.Selection) {
			name := strings.TrimSpace(link.Text())
			href, ok := link.Attr("href")
			if !ok || name == "" {
				return
			}
			if !isValidStreetName(name) {
				return
			}
			found = append(found, store.Street{
				Name: name,
				URL:  s.resolveURL(href),
			})
		})
		if len(found) > 0 {
			return found
		}
	}
	return nil
}

func (s *StreetScraper) resolveURL(href string) string {
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return s.baseURL.ResolveReference(ref).String()
}

// isValidStreetName filters navigation chrome out of street link text.
func isValidStreetName(name string) bool {
	if len(name) < 2 {
		return false
	}
	lower := strings.ToLower(name)
	for _, pattern := range streetExcludePatterns {
		if strings.Contains(lower, pattern) {
			return false
		}
	}
	for _, r := range name {
		if unicode.IsLetter(r) {
			return true
		}
	}
	return false
}
