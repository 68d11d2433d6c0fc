// Package progress defines the event structures emitted by the scrape stages.
package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Stage identifies one of the pipeline's sequential phases.
type Stage string

// Pipeline stages in execution order.
const (
	StageStreets  Stage = "streets"
	StageListings Stage = "listings"
	StageDetails  Stage = "details"
	StageMedia    Stage = "media"
)

// Kind denotes the type of milestone represented by an Event.
type Kind string

// Supported progress event kinds.
const (
	KindRunStart   Kind = "RUN_START"
	KindRunDone    Kind = "RUN_DONE"
	KindRunError   Kind = "RUN_ERROR"
	KindStageStart Kind = "STAGE_START"
	KindStageDone  Kind = "STAGE_DONE"
	KindStageError Kind = "STAGE_ERROR"
	KindItemDone   Kind = "ITEM_DONE"
	KindItemError  Kind = "ITEM_ERROR"
)

// Event captures a single component of scrape progress.
type Event struct {
	// RunID uniquely identifies a pipeline run using the 16-byte UUID form.
	RunID [16]byte
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Kind denotes which lifecycle or item milestone occurred.
	Kind Kind
	// Stage scopes stage and item events to a pipeline phase.
	Stage Stage
	// Street optionally names the street an item belongs to.
	Street string
	// ParcelID optionally identifies the parcel an item belongs to.
	ParcelID string
	// URL is the optional page or asset URL.
	URL string
	// Bytes carries the transfer size for media downloads.
	Bytes int64
	// Dur captures execution latency for items and completed stages.
	Dur time.Duration
	// Note lets emitters attach low-volume debug context (e.g. error text).
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.RunID == [16]byte{} {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Kind {
	case KindRunStart, KindRunDone, KindRunError:
	case KindStageStart, KindStageDone, KindStageError, KindItemDone, KindItemError:
		if e.Stage == "" {
			return fmt.Errorf("%s requires a stage", e.Kind)
		}
	default:
		return fmt.Errorf("unknown kind %q", e.Kind)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// RunUUID converts the binary run ID to uuid.UUID for logs and repositories.
func (e Event) RunUUID() uuid.UUID {
	return uuid.UUID(e.RunID)
}

// UUIDToBytes encodes a uuid.UUID into the Event form.
func UUIDToBytes(id uuid.UUID) [16]byte {
	var dest [16]byte
	copy(dest[:], id[:])
	return dest
}
