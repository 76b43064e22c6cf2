package memindex

import (
	"sync"

	"github.com/iamqiss/rangelog/model"
)

// Manager owns one BufferIndex per live write buffer. Indexes are
// created lazily on the first eligible write to a buffer and dropped
// when the buffer is discarded or superseded.
type Manager struct {
	mu      sync.RWMutex
	buffers map[model.BufferID]*BufferIndex

	extract  model.ParticipantExtractor
	keyOf    model.KeyAccessor
	eligible model.EligibilityPredicate
}

// NewManager returns an empty manager. eligible may be nil, in which
// case command entries are indexed.
func NewManager(extract model.ParticipantExtractor, keyOf model.KeyAccessor, eligible model.EligibilityPredicate) *Manager {
	if eligible == nil {
		eligible = model.DefaultEligibility
	}
	return &Manager{
		buffers:  make(map[model.BufferID]*BufferIndex),
		extract:  extract,
		keyOf:    keyOf,
		eligible: eligible,
	}
}

// Index records one row written to buf. Static rows and rows whose
// journal key is not eligible are ignored.
func (m *Manager) Index(buf model.BufferID, row model.Row) error {
	if row.Static {
		return nil
	}
	key, err := m.keyOf(row.Key)
	if err != nil {
		return err
	}
	return m.IndexDecoded(buf, key, row.Payload)
}

// IndexDecoded records an entry whose journal key is already decoded,
// as during startup replay. The eligibility predicate still applies.
func (m *Manager) IndexDecoded(buf model.BufferID, key model.JournalKey, payload []byte) error {
	if !m.eligible(key) {
		return nil
	}
	return m.bufferIndex(buf).Index(key, payload)
}

// bufferIndex resolves the buffer's index, creating it on first use.
// Fast path under the read lock; the write lock re-checks before
// creating.
func (m *Manager) bufferIndex(buf model.BufferID) *BufferIndex {
	m.mu.RLock()
	b, ok := m.buffers[buf]
	m.mu.RUnlock()
	if ok {
		return b
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if b, ok := m.buffers[buf]; ok {
		return b
	}
	b = NewBufferIndex(buf, m.extract)
	m.buffers[buf] = b
	return b
}

// PendingIndex returns the index of the buffer about to be flushed, or
// nil if the buffer never received an eligible write.
func (m *Manager) PendingIndex(buf model.BufferID) *BufferIndex {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.buffers[buf]
}

// Discard drops the buffer's index, if any.
func (m *Manager) Discard(buf model.BufferID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.buffers, buf)
}

// Renew drops every live index except keep's. Used after a truncate,
// when all buffers but the renewed one are superseded.
func (m *Manager) Renew(keep model.BufferID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for buf := range m.buffers {
		if buf != keep {
			delete(m.buffers, buf)
		}
	}
}

// Len returns the number of live buffer indexes.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.buffers)
}

// live snapshots the current indexes so a search does not hold the
// manager lock while walking trees.
func (m *Manager) live() []*BufferIndex {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*BufferIndex, 0, len(m.buffers))
	for _, b := range m.buffers {
		out = append(out, b)
	}
	return out
}

// SearchRange fans out to every live buffer's index. Matches arrive in
// no particular cross-buffer order.
func (m *Manager) SearchRange(store model.StoreID, table model.TableID, qStart, qEnd []byte, minTxn, maxTxn model.TxnID, decided model.WatermarkPredicate, onMatch func(model.TxnID)) {
	for _, b := range m.live() {
		b.SearchRange(store, table, qStart, qEnd, minTxn, maxTxn, decided, onMatch)
	}
}

// SearchPoint is the single-key variant of SearchRange.
func (m *Manager) SearchPoint(store model.StoreID, table model.TableID, key []byte, minTxn, maxTxn model.TxnID, decided model.WatermarkPredicate, onMatch func(model.TxnID)) {
	for _, b := range m.live() {
		b.SearchPoint(store, table, key, minTxn, maxTxn, decided, onMatch)
	}
}
