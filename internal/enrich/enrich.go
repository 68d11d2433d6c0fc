// Package enrich defines the seam between the scrape pipeline and external
// enrichment agents. Agents subscribe to parcel-scraped events, look up the
// stored record, and attach data the assessor site does not carry. Only the
// contract lives here; agent implementations are separate deployments.
package enrich

import (
	"context"
	"time"
)

// Request identifies a parcel whose stored record should be enriched.
type Request struct {
	ParcelID string
	Address  string
}

// Enrichment is the extra data an agent produced for one parcel. Fields are
// merged into the parcel's detail document under the agent's source key, so
// two agents never clobber each other.
type Enrichment struct {
	ParcelID   string
	Source     string
	Fields     map[string]any
	ProducedAt time.Time
}

// Agent produces enrichments. A nil Enrichment with nil error means the
// agent had nothing to add, which is an expected outcome.
type Agent interface {
	Enrich(ctx context.Context, req Request) (*Enrichment, error)
}
