// Package publish defines the outbound event surface. Downstream consumers
// subscribe to parcel completion events instead of polling the database.
package publish

import (
	"context"
	"time"
)

// Topic names for the events this service emits.
const (
	TopicParcelScraped = "parcel-scraped"
	TopicRunFinished   = "scrape-run-finished"
)

// Publisher sends a payload to a named topic and returns the message ID.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// ParcelScraped announces one fully extracted parcel.
type ParcelScraped struct {
	ParcelID  string    `json:"parcel_id"`
	Street    string    `json:"street"`
	Address   string    `json:"address"`
	URL       string    `json:"url"`
	ScrapedAt time.Time `json:"scraped_at"`
}

// RunFinished announces the end of a full pipeline run.
type RunFinished struct {
	RunID      string    `json:"run_id"`
	Streets    int       `json:"streets"`
	Parcels    int       `json:"parcels"`
	Failed     int       `json:"failed"`
	FinishedAt time.Time `json:"finished_at"`
}
