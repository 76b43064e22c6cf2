// Package interval provides the ordered byte-range key of the journal
// range index and an in-memory interval tree over it.
//
// Intervals are (start, end]: start-exclusive, end-inclusive, compared
// with unsigned lexicographic byte order. A query range [qStart, qEnd)
// excludes an interval exactly when start >= qEnd or end <= qStart; this
// convention is load-bearing and preserved everywhere, including the
// on-disk segment reader.
package interval
