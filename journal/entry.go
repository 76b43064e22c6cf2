package journal

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"

	"github.com/iamqiss/rangelog/model"
)

const (
	sizeFieldLen = 4
	crcLen       = 4

	// HeaderLen covers the size field, the serialized journal key and the
	// header checksum. The key encoding is fixed-width, so the header is
	// too; a reader can always locate the header checksum before trusting
	// the declared size.
	HeaderLen  = sizeFieldLen + model.JournalKeySize + crcLen
	TrailerLen = crcLen

	// MinEntryLen is the frame size of an entry with an empty record.
	MinEntryLen = HeaderLen + TrailerLen
)

var (
	// ErrCRCMismatch is returned by the strict reader when either checksum
	// does not match the stored bytes.
	ErrCRCMismatch = errors.New("entry checksum mismatch")

	// ErrCorruptEntry is returned when a malformed frame sits at or before
	// the synced offset. Bytes the writer confirmed durable must parse.
	ErrCorruptEntry = errors.New("corrupt entry inside synced region")
)

// RecoverableError reports a checksum failure during lenient replay. It
// carries the declared record length so the replay driver can decide
// whether the remainder of the file is crash debris worth skipping.
type RecoverableError struct {
	Offset       int64
	RecordLength uint32
}

func (e *RecoverableError) Error() string {
	return fmt.Sprintf("%v at offset %d (declared record length %d)", ErrCRCMismatch, e.Offset, e.RecordLength)
}

func (e *RecoverableError) Unwrap() error {
	return ErrCRCMismatch
}

// Entry is a decoded journal frame. Record aliases the source buffer;
// callers that retain it past the buffer's lifetime must copy.
type Entry struct {
	Key    model.JournalKey
	Record []byte
}

// EntrySize returns the framed size of an entry with the given record
// length.
func EntrySize(recordLen int) int {
	return HeaderLen + recordLen + TrailerLen
}

// Append frames key and record onto dst and returns the extended slice.
// The layout is
//
//	[total_size:u32][key][header_crc:u32][record][record_crc:u32]
//
// with big-endian integers and CRC-32 (IEEE) checksums. total_size is
// the full frame length, so a reader positioned at the size field can
// step to the next entry without parsing the record. The header checksum
// covers the size field and the key; the record checksum covers the
// record bytes only.
func Append(dst []byte, key model.JournalKey, record []byte) []byte {
	total := EntrySize(len(record))
	base := len(dst)
	dst = append(dst, make([]byte, total)...)

	binary.BigEndian.PutUint32(dst[base:], uint32(total))
	key.MarshalTo(dst[base+sizeFieldLen:])
	headerCRC := crc32.ChecksumIEEE(dst[base : base+sizeFieldLen+model.JournalKeySize])
	binary.BigEndian.PutUint32(dst[base+sizeFieldLen+model.JournalKeySize:], headerCRC)

	recordStart := base + HeaderLen
	copy(dst[recordStart:], record)
	binary.BigEndian.PutUint32(dst[recordStart+len(record):], crc32.ChecksumIEEE(record))

	return dst
}

// Write frames key and record onto w. See Append for the layout.
func Write(w io.Writer, key model.JournalKey, record []byte) (int, error) {
	return w.Write(Append(nil, key, record))
}

// Read decodes the entry at off strictly: any checksum mismatch or
// malformed frame is an error. Used on paths where the bytes are known
// durable, such as point lookups through a locator.
func Read(buf []byte, off int) (Entry, int, error) {
	if off < 0 || len(buf)-off < MinEntryLen {
		return Entry{}, 0, fmt.Errorf("truncated entry at offset %d: %w", off, ErrCorruptEntry)
	}

	total := int(binary.BigEndian.Uint32(buf[off:]))
	if total < MinEntryLen || total > len(buf)-off {
		return Entry{}, 0, fmt.Errorf("entry at offset %d declares size %d: %w", off, total, ErrCorruptEntry)
	}

	wantHeaderCRC := binary.BigEndian.Uint32(buf[off+sizeFieldLen+model.JournalKeySize:])
	if crc32.ChecksumIEEE(buf[off:off+sizeFieldLen+model.JournalKeySize]) != wantHeaderCRC {
		return Entry{}, 0, fmt.Errorf("entry header at offset %d: %w", off, ErrCRCMismatch)
	}

	record := buf[off+HeaderLen : off+total-TrailerLen]
	wantRecordCRC := binary.BigEndian.Uint32(buf[off+total-TrailerLen:])
	if crc32.ChecksumIEEE(record) != wantRecordCRC {
		return Entry{}, 0, fmt.Errorf("entry record at offset %d: %w", off, ErrCRCMismatch)
	}

	return Entry{
		Key:    model.UnmarshalJournalKey(buf[off+sizeFieldLen:]),
		Record: record,
	}, total, nil
}

// TryRead decodes the entry at off leniently, for startup replay over a
// file whose tail may be torn. synced is the length of the prefix the
// writer confirmed durable before the crash.
//
// Returns (entry, n, nil) with n > 0 on success. Returns n == 0 with a
// nil error when there is nothing left to read: fewer bytes remain than
// a size field, or the size field is zero (an unwritten, zero-filled
// tail). A checksum mismatch returns a *RecoverableError carrying the
// declared record length. Any other malformed frame is ErrCorruptEntry
// when it begins inside the synced prefix, and the nothing-here result
// otherwise: past the synced offset a half-written frame is expected
// crash debris, not corruption.
func TryRead(buf []byte, off, synced int) (Entry, int, error) {
	if len(buf)-off < sizeFieldLen {
		return Entry{}, 0, nil
	}

	total := int(binary.BigEndian.Uint32(buf[off:]))
	if total == 0 {
		return Entry{}, 0, nil
	}

	if len(buf)-off < HeaderLen {
		return Entry{}, 0, corruptOrTorn(off, synced, "truncated header")
	}

	// The header checksum covers the size field, so it must be verified
	// before the declared size is trusted.
	wantHeaderCRC := binary.BigEndian.Uint32(buf[off+sizeFieldLen+model.JournalKeySize:])
	if crc32.ChecksumIEEE(buf[off:off+sizeFieldLen+model.JournalKeySize]) != wantHeaderCRC {
		return Entry{}, 0, &RecoverableError{
			Offset:       int64(off),
			RecordLength: declaredRecordLength(total),
		}
	}

	if total < MinEntryLen || total > len(buf)-off {
		return Entry{}, 0, corruptOrTorn(off, synced, fmt.Sprintf("declared size %d", total))
	}

	record := buf[off+HeaderLen : off+total-TrailerLen]
	wantRecordCRC := binary.BigEndian.Uint32(buf[off+total-TrailerLen:])
	if crc32.ChecksumIEEE(record) != wantRecordCRC {
		return Entry{}, 0, &RecoverableError{
			Offset:       int64(off),
			RecordLength: uint32(len(record)),
		}
	}

	return Entry{
		Key:    model.UnmarshalJournalKey(buf[off+sizeFieldLen:]),
		Record: record,
	}, total, nil
}

func corruptOrTorn(off, synced int, detail string) error {
	if off < synced {
		return fmt.Errorf("%s at offset %d: %w", detail, off, ErrCorruptEntry)
	}
	return nil
}

func declaredRecordLength(total int) uint32 {
	if total < MinEntryLen {
		return 0
	}
	return uint32(total - MinEntryLen)
}
