package interval

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/iamqiss/rangelog/model"
)

// Interval is an ordered byte range (Start, End]: the start bound is
// exclusive, the end bound inclusive. Bounds compare with unsigned
// lexicographic byte order.
type Interval struct {
	Start []byte
	End   []byte
}

// Compare orders intervals by Start, ties broken by End.
func Compare(a, b Interval) int {
	if c := bytes.Compare(a.Start, b.Start); c != 0 {
		return c
	}
	return bytes.Compare(a.End, b.End)
}

// Intersects reports whether the interval intersects the query range
// [qStart, qEnd). An interval is excluded exactly when Start >= qEnd or
// End <= qStart.
func (iv Interval) Intersects(qStart, qEnd []byte) bool {
	if bytes.Compare(iv.Start, qEnd) >= 0 {
		return false
	}
	if bytes.Compare(iv.End, qStart) <= 0 {
		return false
	}
	return true
}

// Contains reports whether the interval covers a single key: Start is
// exclusive, End inclusive.
func (iv Interval) Contains(key []byte) bool {
	return bytes.Compare(iv.Start, key) < 0 && bytes.Compare(iv.End, key) >= 0
}

func (iv Interval) String() string {
	return fmt.Sprintf("(%x, %x]", iv.Start, iv.End)
}

// Entry binds an interval to the transaction that touched it.
type Entry struct {
	Interval Interval
	TxnID    model.TxnID
}

// SortEntries orders entries by the Interval ordering, ties broken by
// transaction id. The on-disk segment writer requires sorted input, and
// flush sorts with this before handing entries over.
func SortEntries(entries []Entry) {
	sort.Slice(entries, func(i, j int) bool {
		if c := Compare(entries[i].Interval, entries[j].Interval); c != 0 {
			return c < 0
		}
		return entries[i].TxnID.Compare(entries[j].TxnID) < 0
	})
}
