package segment

import (
	"bytes"
	"fmt"

	"github.com/iamqiss/rangelog/internal/mmap"
	"github.com/iamqiss/rangelog/model"
)

// DiskIndex is a loaded, immutable segment: parsed metadata plus the
// memory-mapped interval component. Safe for concurrent searches; Close
// invalidates outstanding results that alias the mapping.
type DiskIndex struct {
	desc *Descriptor
	seg  *Segment
	mm   *mmap.File
}

// OpenDiskIndex loads the segment at desc. The completion marker is
// required: this layer never loads (let alone builds) a half-written
// index.
func OpenDiskIndex(desc *Descriptor) (*DiskIndex, error) {
	if !desc.IsComplete() {
		return nil, fmt.Errorf("%s: %w", desc.Base, ErrIncomplete)
	}

	meta, err := desc.fsys.ReadFile(desc.MetadataPath())
	if err != nil {
		return nil, fmt.Errorf("read metadata component: %w", err)
	}
	seg, err := unmarshalMetadata(desc.Base, meta)
	if err != nil {
		return nil, fmt.Errorf("parse metadata component %s: %w", desc.MetadataPath(), err)
	}

	mm, err := mmap.Open(desc.IntervalsPath())
	if err != nil {
		return nil, fmt.Errorf("map interval component: %w", err)
	}

	return &DiskIndex{desc: desc, seg: seg, mm: mm}, nil
}

// Base returns the segment's base path.
func (x *DiskIndex) Base() string {
	return x.seg.Base
}

// Segment returns the parsed metadata.
func (x *DiskIndex) Segment() *Segment {
	return x.seg
}

// Close unmaps the interval component.
func (x *DiskIndex) Close() error {
	return x.mm.Close()
}

// Remove closes the index and deletes its component files.
func (x *DiskIndex) Remove() error {
	if err := x.Close(); err != nil {
		return err
	}
	return x.desc.Remove()
}

// groupBlock loads and decompresses one group's sorted run.
func (x *DiskIndex) groupBlock(key model.GroupKey, m GroupMeta) ([]byte, error) {
	end := m.Offset + m.Length
	if end > uint64(len(x.mm.Data)) || m.Length == 0 {
		return nil, fmt.Errorf("group %s block [%d, %d) outside component of %d bytes", key, m.Offset, end, len(x.mm.Data))
	}
	block := x.mm.Data[m.Offset:end]
	return decompressBlock(Codec(block[0]), block[1:], int(m.RawLength))
}

// prunable mirrors the mutable tier's group-level pruning: transaction
// window disjointness and the watermark gate behave identically on both
// sides of a flush.
func prunable(b *model.GroupBounds, minTxn, maxTxn model.TxnID, decided model.WatermarkPredicate) bool {
	if b.MaxTxnID.Compare(minTxn) < 0 || b.MinTxnID.Compare(maxTxn) > 0 {
		return true
	}
	if b.HasWatermark && decided != nil && !decided(b.Watermark) {
		return true
	}
	return false
}

// SearchRange scans the (store, table) group for intervals intersecting
// [qStart, qEnd), re-checking each hit's transaction id. The run is
// sorted by start bound, so the scan exits early once starts pass qEnd.
func (x *DiskIndex) SearchRange(store model.StoreID, table model.TableID, qStart, qEnd []byte, minTxn, maxTxn model.TxnID, decided model.WatermarkPredicate, onMatch func(model.TxnID)) error {
	m, ok := x.seg.Groups[model.GroupKey{Store: store, Table: table}]
	if !ok || prunable(&m.Bounds, minTxn, maxTxn, decided) {
		return nil
	}
	return x.scan(model.GroupKey{Store: store, Table: table}, m, func(e entryView) bool {
		// Sorted by start: past qEnd nothing more can intersect.
		if bytes.Compare(e.start, qEnd) >= 0 {
			return false
		}
		if bytes.Compare(e.end, qStart) > 0 &&
			e.id.Compare(minTxn) >= 0 && e.id.Compare(maxTxn) <= 0 {
			onMatch(e.id)
		}
		return true
	})
}

// SearchPoint is the single-key variant of SearchRange.
func (x *DiskIndex) SearchPoint(store model.StoreID, table model.TableID, key []byte, minTxn, maxTxn model.TxnID, decided model.WatermarkPredicate, onMatch func(model.TxnID)) error {
	m, ok := x.seg.Groups[model.GroupKey{Store: store, Table: table}]
	if !ok || prunable(&m.Bounds, minTxn, maxTxn, decided) {
		return nil
	}
	return x.scan(model.GroupKey{Store: store, Table: table}, m, func(e entryView) bool {
		// Containment needs start < key strictly.
		if bytes.Compare(e.start, key) >= 0 {
			return false
		}
		if bytes.Compare(e.end, key) >= 0 &&
			e.id.Compare(minTxn) >= 0 && e.id.Compare(maxTxn) <= 0 {
			onMatch(e.id)
		}
		return true
	})
}

type entryView struct {
	start, end []byte
	id         model.TxnID
}

func (x *DiskIndex) scan(key model.GroupKey, m GroupMeta, visit func(entryView) bool) error {
	raw, err := x.groupBlock(key, m)
	if err != nil {
		return err
	}

	off := 0
	for i := uint32(0); i < m.Count; i++ {
		e, next, err := decodeEntry(raw, off)
		if err != nil {
			return fmt.Errorf("group %s: %w", key, err)
		}
		off = next
		if !visit(entryView{start: e.Interval.Start, end: e.Interval.End, id: e.TxnID}) {
			return nil
		}
	}
	return nil
}
