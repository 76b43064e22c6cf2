// Package diskindex manages the immutable tier: the set of loaded
// per-segment disk indexes, kept in lockstep with the journal's on-disk
// file set and fanned out over during searches.
package diskindex
