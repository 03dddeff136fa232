// Package progress provides the event primitives and non-blocking hub that the
// discovery and download stages use to report what they are doing. Events are
// batched on a background goroutine and fanned out to pluggable sinks such as
// structured logs, Prometheus collectors or the run history store.
package progress
