// Package progress carries status events from long-running steps to whoever
// is watching them.
//
// A producer runs under Start and reports through a Reporter; the consumer
// ranges over Stream.Events. The sequence ends with exactly one terminal event
// (complete or error) unless the consumer cancels, in which case the producer
// observes the cancellation at its next Report call and the stream closes
// without a terminal event. The NDJSON codec moves the same events over HTTP
// responses and external command pipes.
package progress
