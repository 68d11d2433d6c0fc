// Package progress provides the event primitives, non-blocking hub, and the
// durable stage tracker that the scrape pipeline uses to report and resume
// work. The hub batches events on a background goroutine and fans them out to
// pluggable sinks such as Prometheus metrics or structured logs; the tracker
// persists per-stage state through a store.ProgressRepository so interrupted
// runs pick up where they left off.
package progress
