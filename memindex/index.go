package memindex

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/iamqiss/rangelog/interval"
	"github.com/iamqiss/rangelog/model"
)

// ErrEmptyFlush reports a flush of an index that holds no groups. Flush
// is only triggered once data exists, so this indicates a caller bug.
var ErrEmptyFlush = errors.New("flush of empty index")

// GroupWriter persists one group's sorted interval run. The on-disk
// segment writer implements it; flush stays decoupled from the file
// layout.
type GroupWriter interface {
	WriteGroup(key model.GroupKey, bounds model.GroupBounds, entries []interval.Entry) error
}

// Index is the mutable interval index of one write buffer: a map of
// groups keyed by (store, table), guarded by a single mutex. Mutation
// and search on one instance are mutually exclusive; independent
// instances run fully in parallel.
type Index struct {
	mu      sync.Mutex
	groups  map[model.GroupKey]*Group
	extract model.ParticipantExtractor
}

// NewIndex returns an empty index that uses extract to pull a
// transaction's touched participants out of its payload.
func NewIndex(extract model.ParticipantExtractor) *Index {
	return &Index{
		groups:  make(map[model.GroupKey]*Group),
		extract: extract,
	}
}

// GroupCount returns the number of live groups.
func (x *Index) GroupCount() int {
	x.mu.Lock()
	defer x.mu.Unlock()
	return len(x.groups)
}

// Add extracts the range participants from payload and indexes each one
// under (key.Store, participant table). Non-range participants are
// skipped and contribute nothing. Returns the estimated heap bytes
// added, for the owning buffer's memory accounting.
func (x *Index) Add(key model.JournalKey, payload []byte) (int, error) {
	participants, err := x.extract(payload)
	if err != nil {
		return 0, fmt.Errorf("extract participants for %s: %w", key, err)
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	var added int
	for _, p := range participants {
		rp, ok := p.(model.RangeParticipant)
		if !ok {
			continue
		}
		gk := model.GroupKey{Store: key.Store, Table: rp.TableID}
		g, ok := x.groups[gk]
		if !ok {
			g = NewGroup()
			x.groups[gk] = g
		}
		added += g.Add(interval.Interval{Start: rp.Start, End: rp.End}, key.TxnID)
	}
	return added, nil
}

// SearchRange routes to the (store, table) group if one exists and is a
// no-op otherwise.
func (x *Index) SearchRange(store model.StoreID, table model.TableID, qStart, qEnd []byte, minTxn, maxTxn model.TxnID, decided model.WatermarkPredicate, onMatch func(model.TxnID)) {
	x.mu.Lock()
	defer x.mu.Unlock()

	if g, ok := x.groups[model.GroupKey{Store: store, Table: table}]; ok {
		g.SearchRange(qStart, qEnd, minTxn, maxTxn, decided, onMatch)
	}
}

// SearchPoint is the single-key variant of SearchRange.
func (x *Index) SearchPoint(store model.StoreID, table model.TableID, key []byte, minTxn, maxTxn model.TxnID, decided model.WatermarkPredicate, onMatch func(model.TxnID)) {
	x.mu.Lock()
	defer x.mu.Unlock()

	if g, ok := x.groups[model.GroupKey{Store: store, Table: table}]; ok {
		g.SearchPoint(key, minTxn, maxTxn, decided, onMatch)
	}
}

// Flush writes every group to w in canonical key order, each group's
// entries sorted by the interval ordering as the writer requires. The
// writer drops groups that produce no components. Fails on an empty
// index.
func (x *Index) Flush(w GroupWriter) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	if len(x.groups) == 0 {
		return ErrEmptyFlush
	}

	keys := make([]model.GroupKey, 0, len(x.groups))
	for k := range x.groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return keys[i].Compare(keys[j]) < 0
	})

	for _, k := range keys {
		g := x.groups[k]
		entries := g.Entries()
		interval.SortEntries(entries)
		if err := w.WriteGroup(k, g.Bounds(), entries); err != nil {
			return fmt.Errorf("write group %s: %w", k, err)
		}
	}
	return nil
}
