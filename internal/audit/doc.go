// Package audit records every successful hierarchy mutation in the
// audit_logs SQLite table and serves paginated queries over it.
//
// A Recorder is registered as a hierarchy store observer. It queues entries
// on a bounded channel and a single goroutine writes them, so request
// latency never depends on SQLite and writes stay serial. When the queue is
// full, entries are dropped with a warning.
package audit
