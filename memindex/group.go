package memindex

import (
	"bytes"

	"github.com/iamqiss/rangelog/interval"
	"github.com/iamqiss/rangelog/model"
)

// entryOverhead approximates the heap cost of one tree entry beyond its
// interval bounds: tree node, entry struct and transaction id.
const entryOverhead = 96

// Group indexes the intervals of one (store, table) shard: an interval
// tree plus aggregate bounds used to prune whole groups during search.
// A Group is owned exclusively by its containing index and relies on the
// owner's lock.
type Group struct {
	tree   *interval.Tree
	bounds model.GroupBounds
}

// NewGroup returns an empty group. The watermark starts valid at the
// none sentinel; it stays valid only while every added entry is a sync
// point.
func NewGroup() *Group {
	return &Group{
		tree: interval.NewTree(),
		bounds: model.GroupBounds{
			HasWatermark: true,
		},
	}
}

// Len returns the number of indexed intervals.
func (g *Group) Len() int {
	return g.tree.Len()
}

// Bounds returns a copy of the group's aggregate bounds.
func (g *Group) Bounds() model.GroupBounds {
	return g.bounds
}

// Entries returns the group's entries in unspecified order; flush sorts
// them before handing them to the segment writer.
func (g *Group) Entries() []interval.Entry {
	return g.tree.Entries()
}

// Add indexes an interval for the given transaction, widening the
// group's bounds and advancing or invalidating the watermark. Returns
// the estimated heap bytes the insert added.
func (g *Group) Add(iv interval.Interval, id model.TxnID) int {
	g.tree.Add(iv, id)

	b := &g.bounds
	if b.MinTerm == nil || truncatedCompare(b.MinTerm, iv.Start) > 0 {
		b.MinTerm = iv.Start
	}
	if b.MaxTerm == nil || truncatedCompare(b.MaxTerm, iv.End) < 0 {
		b.MaxTerm = iv.End
	}

	if b.MinTxnID.IsNone() || id.Compare(b.MinTxnID) < 0 {
		b.MinTxnID = id
	}
	if id.Compare(b.MaxTxnID) > 0 {
		b.MaxTxnID = id
	}

	if b.HasWatermark {
		if id.Kind == model.KindSyncPoint {
			if id.Compare(b.Watermark) > 0 {
				b.Watermark = id
			}
		} else {
			// One ordinary entry invalidates the watermark for the
			// group's whole lifetime; it never re-enables.
			b.HasWatermark = false
			b.Watermark = model.TxnIDNone
		}
	}

	return entryOverhead + len(iv.Start) + len(iv.End)
}

// truncatedCompare compares the existing bound against a candidate with
// the candidate truncated to the bound's length. A candidate that only
// extends the bound compares equal and does not widen it. Historical
// behavior, kept bit-for-bit: segment metadata written by older builds
// carries bounds computed this way, and both sides of a query must
// prune identically.
func truncatedCompare(bound, candidate []byte) int {
	n := len(bound)
	if len(candidate) < n {
		n = len(candidate)
	}
	return bytes.Compare(bound[:n], candidate[:n])
}

// prunable reports whether the whole group can be skipped for a query
// with the given transaction window and watermark predicate.
func (g *Group) prunable(minTxn, maxTxn model.TxnID, decided model.WatermarkPredicate) bool {
	b := &g.bounds
	if b.MaxTxnID.Compare(minTxn) < 0 || b.MinTxnID.Compare(maxTxn) > 0 {
		return true
	}
	if b.HasWatermark && decided != nil && !decided(b.Watermark) {
		return true
	}
	return false
}

// SearchRange invokes onMatch for every indexed transaction whose
// interval intersects [qStart, qEnd) and whose id falls inside
// [minTxn, maxTxn]. The group-level bounds only short-circuit; each hit
// is re-checked individually.
func (g *Group) SearchRange(qStart, qEnd []byte, minTxn, maxTxn model.TxnID, decided model.WatermarkPredicate, onMatch func(model.TxnID)) {
	if g.prunable(minTxn, maxTxn, decided) {
		return
	}
	g.tree.SearchRange(qStart, qEnd, func(e interval.Entry) {
		if e.TxnID.Compare(minTxn) >= 0 && e.TxnID.Compare(maxTxn) <= 0 {
			onMatch(e.TxnID)
		}
	})
}

// SearchPoint is the single-key variant of SearchRange.
func (g *Group) SearchPoint(key []byte, minTxn, maxTxn model.TxnID, decided model.WatermarkPredicate, onMatch func(model.TxnID)) {
	if g.prunable(minTxn, maxTxn, decided) {
		return
	}
	g.tree.SearchPoint(key, func(e interval.Entry) {
		if e.TxnID.Compare(minTxn) >= 0 && e.TxnID.Compare(maxTxn) <= 0 {
			onMatch(e.TxnID)
		}
	})
}
