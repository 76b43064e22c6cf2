// Package segment implements the immutable tier's on-disk format: a
// per-buffer segment of sorted, optionally compressed interval runs
// grouped by (store, table), a metadata directory with group bounds and
// a roaring store-id set, and a completion marker written last so a
// half-built segment is never loaded.
package segment
