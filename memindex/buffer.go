package memindex

import (
	"sync/atomic"

	"github.com/iamqiss/rangelog/model"
)

// BufferIndex ties one mutable index to one live write buffer and adds
// write-count and memory-estimate counters. The counters accumulate
// lock-free, independent of the index's own lock: they may be
// transiently stale relative to the exact tree contents but are
// monotonic.
type BufferIndex struct {
	Buffer model.BufferID

	index       *Index
	writeCount  atomic.Int64
	memEstimate atomic.Int64
}

// NewBufferIndex returns an empty index for the given buffer.
func NewBufferIndex(buf model.BufferID, extract model.ParticipantExtractor) *BufferIndex {
	return &BufferIndex{
		Buffer: buf,
		index:  NewIndex(extract),
	}
}

// Index records one journal write. Empty payloads are skipped without
// touching the counters.
func (b *BufferIndex) Index(key model.JournalKey, payload []byte) error {
	if len(payload) == 0 {
		return nil
	}
	added, err := b.index.Add(key, payload)
	if err != nil {
		return err
	}
	b.writeCount.Add(1)
	b.memEstimate.Add(int64(added))
	return nil
}

// WriteCount returns the number of indexed writes so far.
func (b *BufferIndex) WriteCount() int64 {
	return b.writeCount.Load()
}

// MemEstimate returns the estimated heap bytes held by the index.
func (b *BufferIndex) MemEstimate() int64 {
	return b.memEstimate.Load()
}

// SearchRange delegates to the wrapped index.
func (b *BufferIndex) SearchRange(store model.StoreID, table model.TableID, qStart, qEnd []byte, minTxn, maxTxn model.TxnID, decided model.WatermarkPredicate, onMatch func(model.TxnID)) {
	b.index.SearchRange(store, table, qStart, qEnd, minTxn, maxTxn, decided, onMatch)
}

// SearchPoint delegates to the wrapped index.
func (b *BufferIndex) SearchPoint(store model.StoreID, table model.TableID, key []byte, minTxn, maxTxn model.TxnID, decided model.WatermarkPredicate, onMatch func(model.TxnID)) {
	b.index.SearchPoint(store, table, key, minTxn, maxTxn, decided, onMatch)
}

// Flush delegates to the wrapped index.
func (b *BufferIndex) Flush(w GroupWriter) error {
	return b.index.Flush(w)
}
