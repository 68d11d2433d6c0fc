package progress

import "context"

// Sink receives flushed batches of scrape telemetry. The hub calls Consume
// from its flusher goroutine with a bounded context; implementations must not
// mutate the batch and must tolerate Close after the last Consume.
type Sink interface {
	Consume(ctx context.Context, batch []Event) error
	Close(ctx context.Context) error
}

// Emitter is the write side the pipeline sees; the Hub satisfies it. The
// pipeline treats a nil Emitter as telemetry turned off.
type Emitter interface {
	Emit(evt Event)
}
