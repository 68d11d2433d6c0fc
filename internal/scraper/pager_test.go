package scraper

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/require"
)

// fakePager serves fixture documents keyed by URL and pops queued documents
// for pagination clicks.
type fakePager struct {
	docs     map[string]*goquery.Document
	next     []*goquery.Document
	navCalls []string
}

func (p *fakePager) Navigate(_ context.Context, url string) (*goquery.Document, error) {
	p.navCalls = append(p.navCalls, url)
	doc, ok := p.docs[url]
	if !ok {
		return nil, fmt.Errorf("no fixture for %s", url)
	}
	return doc, nil
}

func (p *fakePager) NextPage(_ context.Context, _ ...string) (*goquery.Document, bool, error) {
	if len(p.next) == 0 {
		return nil, false, nil
	}
	doc := p.next[0]
	p.next = p.next[1:]
	return doc, true, nil
}

func loadDoc(t *testing.T, name string) *goquery.Document {
	t.Helper()
	raw, err := os.ReadFile(filepath.Join("testdata", name))
	require.NoError(t, err)
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(raw)))
	require.NoError(t, err)
	return doc
}
