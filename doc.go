// Package rangelog implements a range-indexed journal-lookup subsystem:
// crash-safe binary framing for durable log records and a two-tier
// spatial index over the key ranges each logged transaction touches.
//
// The mutable tier indexes live write buffers; flushing a buffer
// produces an immutable on-disk segment the immutable tier loads and
// queries. Both tiers prune by per-group transaction-id bounds and a
// synchronization watermark before touching interval data.
package rangelog
