package model

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
)

// Kind classifies a transaction.
type Kind uint8

const (
	KindNone Kind = iota
	KindRead
	KindWrite
	// KindSyncPoint marks a synchronization watermark transaction.
	// Groups track the newest sync-point id for safe pruning as long as
	// they contain nothing but sync points.
	KindSyncPoint
)

// String returns a short human-readable name for the kind.
func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindRead:
		return "read"
	case KindWrite:
		return "write"
	case KindSyncPoint:
		return "syncpoint"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// TxnIDSize is the fixed serialized size of a TxnID.
const TxnIDSize = 8 + 4 + 1

// TxnID identifies a logged transaction. Ordering is (HLC, Node, Kind).
type TxnID struct {
	HLC  uint64
	Node uint32
	Kind Kind
}

// TxnIDNone is the zero sentinel; it sorts before every real id.
var TxnIDNone = TxnID{}

// TxnIDMax sorts after every real id.
var TxnIDMax = TxnID{HLC: math.MaxUint64, Node: math.MaxUint32, Kind: Kind(math.MaxUint8)}

// Compare returns -1, 0 or 1 ordering t relative to o.
func (t TxnID) Compare(o TxnID) int {
	if t.HLC != o.HLC {
		if t.HLC < o.HLC {
			return -1
		}
		return 1
	}
	if t.Node != o.Node {
		if t.Node < o.Node {
			return -1
		}
		return 1
	}
	if t.Kind != o.Kind {
		if t.Kind < o.Kind {
			return -1
		}
		return 1
	}
	return 0
}

// IsNone reports whether t is the zero sentinel.
func (t TxnID) IsNone() bool {
	return t == TxnIDNone
}

func (t TxnID) String() string {
	return fmt.Sprintf("%d.%d.%s", t.HLC, t.Node, t.Kind)
}

// MarshalTo writes the fixed-size big-endian encoding of t into b.
// b must be at least TxnIDSize bytes.
func (t TxnID) MarshalTo(b []byte) {
	binary.BigEndian.PutUint64(b[0:8], t.HLC)
	binary.BigEndian.PutUint32(b[8:12], t.Node)
	b[12] = byte(t.Kind)
}

// UnmarshalTxnID decodes a TxnID from the first TxnIDSize bytes of b.
func UnmarshalTxnID(b []byte) TxnID {
	return TxnID{
		HLC:  binary.BigEndian.Uint64(b[0:8]),
		Node: binary.BigEndian.Uint32(b[8:12]),
		Kind: Kind(b[12]),
	}
}

// StoreID identifies one command store (shard) of a table.
type StoreID int32

// TableID identifies an indexed table.
type TableID uint64

// GroupKey addresses one per-(store, table) interval group.
type GroupKey struct {
	Store StoreID
	Table TableID
}

// Compare orders group keys canonically (store, then table). Flush walks
// groups in this order so segment output is deterministic.
func (k GroupKey) Compare(o GroupKey) int {
	if k.Store != o.Store {
		if k.Store < o.Store {
			return -1
		}
		return 1
	}
	if k.Table != o.Table {
		if k.Table < o.Table {
			return -1
		}
		return 1
	}
	return 0
}

func (k GroupKey) String() string {
	return fmt.Sprintf("store=%d/table=%d", k.Store, k.Table)
}

// EntryType classifies a journal entry.
type EntryType uint8

const (
	// EntryCommand carries a transaction state diff; the only type the
	// range index consumes.
	EntryCommand EntryType = iota + 1
	// EntryTopology carries cluster metadata updates.
	EntryTopology
	// EntryMarker carries internal bookkeeping records.
	EntryMarker
)

// JournalKeySize is the fixed serialized size of a JournalKey.
const JournalKeySize = TxnIDSize + 4 + 1

// JournalKey is the primary key of a journal entry. It doubles as the
// locator handed back by index searches: given a key, the journal can
// resolve the full entry.
type JournalKey struct {
	TxnID TxnID
	Store StoreID
	Type  EntryType
}

// MarshalTo writes the fixed-size encoding of k into b.
// b must be at least JournalKeySize bytes. Field order keeps the encoding
// comparable with unsigned lexicographic byte order.
func (k JournalKey) MarshalTo(b []byte) {
	k.TxnID.MarshalTo(b[0:TxnIDSize])
	binary.BigEndian.PutUint32(b[TxnIDSize:TxnIDSize+4], uint32(k.Store))
	b[TxnIDSize+4] = byte(k.Type)
}

// UnmarshalJournalKey decodes a JournalKey from the first JournalKeySize
// bytes of b.
func UnmarshalJournalKey(b []byte) JournalKey {
	return JournalKey{
		TxnID: UnmarshalTxnID(b[0:TxnIDSize]),
		Store: StoreID(binary.BigEndian.Uint32(b[TxnIDSize : TxnIDSize+4])),
		Type:  EntryType(b[TxnIDSize+4]),
	}
}

func (k JournalKey) String() string {
	return fmt.Sprintf("%s@%d/%d", k.TxnID, k.Store, k.Type)
}

// Participant is a key or range a transaction touches. It is a closed sum:
// only RangeParticipant and KeyParticipant exist, and only range
// participants are indexed.
type Participant interface {
	Table() TableID
	participant()
}

// RangeParticipant is a left-open, right-closed byte range (start, end]
// within one table.
type RangeParticipant struct {
	TableID TableID
	Start   []byte
	End     []byte
}

func (p RangeParticipant) Table() TableID { return p.TableID }
func (p RangeParticipant) participant() {}

func (p RangeParticipant) String() string {
	return fmt.Sprintf("range(%x, %x]@%d", p.Start, p.End, p.TableID)
}

// KeyParticipant is a single-key participant. The range index skips these.
type KeyParticipant struct {
	TableID TableID
	Key     []byte
}

func (p KeyParticipant) Table() TableID { return p.TableID }
func (p KeyParticipant) participant() {}

func (p KeyParticipant) String() string {
	return fmt.Sprintf("key(%x)@%d", p.Key, p.TableID)
}

// Row is a physical journal row handed to the write-buffer index manager.
type Row struct {
	// Key is the physical primary key; a KeyAccessor decodes it.
	Key []byte
	// Payload is the serialized record; a ParticipantExtractor parses it.
	Payload []byte
	// Static rows carry table-level state and are never indexed.
	Static bool
}

// BufferID identifies one live write buffer.
type BufferID uint64

// ParticipantExtractor parses the participants a transaction touches out
// of its payload. Supplied by the journal owner; must be pure.
type ParticipantExtractor func(payload []byte) ([]Participant, error)

// KeyAccessor decodes the journal key from a physical row key.
// Supplied by the journal owner; must be pure.
type KeyAccessor func(physicalKey []byte) (JournalKey, error)

// EligibilityPredicate decides whether a journal key should be indexed at
// all. Supplied by the journal owner; must be pure.
type EligibilityPredicate func(JournalKey) bool

// WatermarkPredicate reports whether synchronization up to the given
// watermark id has been confirmed. A group whose newest watermark is not
// yet confirmed is skipped during search. A nil predicate disables the
// gate.
type WatermarkPredicate func(watermark TxnID) bool

// GroupBounds carries the aggregate bounds of one interval group, as
// maintained by the mutable tier and persisted per group in segment
// metadata. The bounds over-approximate; searches re-check every hit.
type GroupBounds struct {
	MinTerm []byte
	MaxTerm []byte

	MinTxnID TxnID
	MaxTxnID TxnID

	// Watermark is the newest sync-point id observed, valid only while
	// HasWatermark is set. It is permanently invalidated the moment any
	// non-sync-point entry joins the group.
	Watermark    TxnID
	HasWatermark bool
}

// DefaultEligibility indexes command entries only.
func DefaultEligibility(k JournalKey) bool {
	return k.Type == EntryCommand
}

// CompareBytes is unsigned lexicographic comparison, the ordering used for
// every term and interval bound in the index.
func CompareBytes(a, b []byte) int {
	return bytes.Compare(a, b)
}
