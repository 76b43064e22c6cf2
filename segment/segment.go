package segment

import (
	"encoding/binary"
	"fmt"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/iamqiss/rangelog/interval"
	"github.com/iamqiss/rangelog/model"
)

const (
	metadataMagic   = "RLSG"
	metadataVersion = 1

	markerContents = "RLSGDONE"
)

// GroupMeta locates and bounds one group's interval run inside the
// segment's interval component.
type GroupMeta struct {
	Bounds model.GroupBounds

	// Offset and Length address the group's block in the interval
	// component; RawLength is the block's uncompressed size.
	Offset    uint64
	Length    uint64
	RawLength uint64
	Count     uint32
}

// Segment is the immutable index metadata of one flushed buffer: the
// group directory plus the set of store ids present, for cheap
// whole-segment pruning. Shared read-only once produced.
type Segment struct {
	Base   string
	Codec  Codec
	Groups map[model.GroupKey]GroupMeta

	// StoreIDs holds every store with at least one group.
	StoreIDs *roaring.Bitmap
}

// HasStore reports whether any group of the given store exists.
func (s *Segment) HasStore(store model.StoreID) bool {
	return s.StoreIDs.Contains(uint32(store))
}

// entry block encoding: per entry
// [startLen:u16][start][endLen:u16][end][txnid:13], in sorted interval
// order.

func encodedEntriesLen(entries []interval.Entry) int {
	n := 0
	for _, e := range entries {
		n += 2 + len(e.Interval.Start) + 2 + len(e.Interval.End) + model.TxnIDSize
	}
	return n
}

func encodeEntries(entries []interval.Entry) []byte {
	buf := make([]byte, 0, encodedEntriesLen(entries))
	var scratch [model.TxnIDSize]byte
	for _, e := range entries {
		buf = binary.BigEndian.AppendUint16(buf, uint16(len(e.Interval.Start)))
		buf = append(buf, e.Interval.Start...)
		buf = binary.BigEndian.AppendUint16(buf, uint16(len(e.Interval.End)))
		buf = append(buf, e.Interval.End...)
		e.TxnID.MarshalTo(scratch[:])
		buf = append(buf, scratch[:]...)
	}
	return buf
}

// decodeEntry decodes one entry at off, returning the next offset. The
// returned interval aliases buf.
func decodeEntry(buf []byte, off int) (interval.Entry, int, error) {
	if len(buf)-off < 2 {
		return interval.Entry{}, 0, fmt.Errorf("truncated entry at %d", off)
	}
	sl := int(binary.BigEndian.Uint16(buf[off:]))
	off += 2
	if len(buf)-off < sl+2 {
		return interval.Entry{}, 0, fmt.Errorf("truncated start at %d", off)
	}
	start := buf[off : off+sl]
	off += sl

	el := int(binary.BigEndian.Uint16(buf[off:]))
	off += 2
	if len(buf)-off < el+model.TxnIDSize {
		return interval.Entry{}, 0, fmt.Errorf("truncated end at %d", off)
	}
	end := buf[off : off+el]
	off += el

	id := model.UnmarshalTxnID(buf[off:])
	off += model.TxnIDSize

	return interval.Entry{
		Interval: interval.Interval{Start: start, End: end},
		TxnID:    id,
	}, off, nil
}

// metadata component encoding.

func appendBytes16(buf, b []byte) []byte {
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(b)))
	return append(buf, b...)
}

func appendTxnID(buf []byte, id model.TxnID) []byte {
	var scratch [model.TxnIDSize]byte
	id.MarshalTo(scratch[:])
	return append(buf, scratch[:]...)
}

func marshalMetadata(s *Segment, keys []model.GroupKey) ([]byte, error) {
	buf := append([]byte(nil), metadataMagic...)
	buf = append(buf, metadataVersion, byte(s.Codec))
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(keys)))

	for _, k := range keys {
		m := s.Groups[k]
		buf = binary.BigEndian.AppendUint32(buf, uint32(k.Store))
		buf = binary.BigEndian.AppendUint64(buf, uint64(k.Table))
		buf = binary.BigEndian.AppendUint64(buf, m.Offset)
		buf = binary.BigEndian.AppendUint64(buf, m.Length)
		buf = binary.BigEndian.AppendUint64(buf, m.RawLength)
		buf = binary.BigEndian.AppendUint32(buf, m.Count)

		buf = appendBytes16(buf, m.Bounds.MinTerm)
		buf = appendBytes16(buf, m.Bounds.MaxTerm)
		buf = appendTxnID(buf, m.Bounds.MinTxnID)
		buf = appendTxnID(buf, m.Bounds.MaxTxnID)
		if m.Bounds.HasWatermark {
			buf = append(buf, 1)
		} else {
			buf = append(buf, 0)
		}
		buf = appendTxnID(buf, m.Bounds.Watermark)
	}

	bm, err := s.StoreIDs.ToBytes()
	if err != nil {
		return nil, fmt.Errorf("serialize store bitmap: %w", err)
	}
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(bm)))
	return append(buf, bm...), nil
}

type metadataReader struct {
	buf []byte
	off int
	err error
}

func (r *metadataReader) bytes(n int) []byte {
	if r.err != nil {
		return nil
	}
	if len(r.buf)-r.off < n {
		r.err = fmt.Errorf("truncated metadata at %d", r.off)
		return nil
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b
}

func (r *metadataReader) u8() uint8 {
	b := r.bytes(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *metadataReader) u16bytes() []byte {
	b := r.bytes(2)
	if b == nil {
		return nil
	}
	n := int(binary.BigEndian.Uint16(b))
	raw := r.bytes(n)
	if raw == nil {
		return nil
	}
	return append([]byte(nil), raw...)
}

func (r *metadataReader) u32() uint32 {
	b := r.bytes(4)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint32(b)
}

func (r *metadataReader) u64() uint64 {
	b := r.bytes(8)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint64(b)
}

func (r *metadataReader) txnID() model.TxnID {
	b := r.bytes(model.TxnIDSize)
	if b == nil {
		return model.TxnID{}
	}
	return model.UnmarshalTxnID(b)
}

func unmarshalMetadata(base string, buf []byte) (*Segment, error) {
	r := &metadataReader{buf: buf}
	if magic := r.bytes(len(metadataMagic)); string(magic) != metadataMagic {
		return nil, fmt.Errorf("bad metadata magic %q", magic)
	}
	if v := r.u8(); v != metadataVersion {
		return nil, fmt.Errorf("unsupported metadata version %d", v)
	}

	s := &Segment{
		Base:   base,
		Codec:  Codec(r.u8()),
		Groups: make(map[model.GroupKey]GroupMeta),
	}

	count := r.u32()
	for i := uint32(0); i < count && r.err == nil; i++ {
		k := model.GroupKey{
			Store: model.StoreID(r.u32()),
			Table: model.TableID(r.u64()),
		}
		m := GroupMeta{
			Offset:    r.u64(),
			Length:    r.u64(),
			RawLength: r.u64(),
			Count:     r.u32(),
		}
		m.Bounds.MinTerm = r.u16bytes()
		m.Bounds.MaxTerm = r.u16bytes()
		m.Bounds.MinTxnID = r.txnID()
		m.Bounds.MaxTxnID = r.txnID()
		m.Bounds.HasWatermark = r.u8() == 1
		m.Bounds.Watermark = r.txnID()
		s.Groups[k] = m
	}

	bmLen := r.u32()
	bm := r.bytes(int(bmLen))
	if r.err != nil {
		return nil, r.err
	}
	s.StoreIDs = roaring.New()
	if err := s.StoreIDs.UnmarshalBinary(bm); err != nil {
		return nil, fmt.Errorf("store bitmap: %w", err)
	}
	return s, nil
}
