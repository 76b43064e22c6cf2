// Package memindex implements the mutable tier of the range index: one
// interval index per live write buffer, grouped by (store, table),
// searchable while the buffer accumulates writes and flushed to an
// immutable segment when the buffer is sealed.
package memindex
