package diskindex

import (
	"fmt"
	"sync"

	"github.com/iamqiss/rangelog/internal/fs"
	"github.com/iamqiss/rangelog/model"
	"github.com/iamqiss/rangelog/segment"
)

// Manager owns one loaded disk index per completed segment file. It
// only ever loads pre-built indexes: a file arriving without a complete
// companion index is a configuration inconsistency, not something to
// repair here.
type Manager struct {
	fsys fs.FileSystem

	mu      sync.Mutex
	indexes map[string]*segment.DiskIndex
}

// NewManager returns an empty manager. A nil filesystem means the local
// one.
func NewManager(fsys fs.FileSystem) *Manager {
	if fsys == nil {
		fsys = fs.Default
	}
	return &Manager{
		fsys:    fsys,
		indexes: make(map[string]*segment.DiskIndex),
	}
}

// OnFileSetChanged applies a file-set change: removed segments are
// closed and their components deleted, added segments are loaded.
// Every added segment must already be complete.
func (m *Manager) OnFileSetChanged(removed, added []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, base := range removed {
		x, ok := m.indexes[base]
		if !ok {
			continue
		}
		delete(m.indexes, base)
		if err := x.Remove(); err != nil {
			return fmt.Errorf("remove index %s: %w", base, err)
		}
	}

	for _, base := range added {
		if _, ok := m.indexes[base]; ok {
			continue
		}
		x, err := segment.OpenDiskIndex(segment.NewDescriptor(m.fsys, base))
		if err != nil {
			return fmt.Errorf("load index %s: %w", base, err)
		}
		m.indexes[base] = x
	}
	return nil
}

// IsIndexComplete reports whether the segment is currently loaded.
func (m *Manager) IsIndexComplete(base string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.indexes[base]
	return ok
}

// Len returns the number of loaded indexes.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.indexes)
}

// Close closes every loaded index without deleting files.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var firstErr error
	for base, x := range m.indexes {
		if err := x.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close index %s: %w", base, err)
		}
		delete(m.indexes, base)
	}
	return firstErr
}

// SearchRange fans out across every loaded index. An I/O failure during
// one index's search is wrapped with the offending file path and the
// queried range, and stops the fan-out; retries are the caller's
// decision.
func (m *Manager) SearchRange(store model.StoreID, table model.TableID, qStart, qEnd []byte, minTxn, maxTxn model.TxnID, decided model.WatermarkPredicate, onMatch func(model.TxnID)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for base, x := range m.indexes {
		if err := x.SearchRange(store, table, qStart, qEnd, minTxn, maxTxn, decided, onMatch); err != nil {
			return fmt.Errorf("search %s range [%x, %x): %w", base, qStart, qEnd, err)
		}
	}
	return nil
}

// SearchPoint is the single-key variant of SearchRange.
func (m *Manager) SearchPoint(store model.StoreID, table model.TableID, key []byte, minTxn, maxTxn model.TxnID, decided model.WatermarkPredicate, onMatch func(model.TxnID)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for base, x := range m.indexes {
		if err := x.SearchPoint(store, table, key, minTxn, maxTxn, decided, onMatch); err != nil {
			return fmt.Errorf("search %s point %x: %w", base, key, err)
		}
	}
	return nil
}
