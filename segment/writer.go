package segment

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/iamqiss/rangelog/internal/fs"
	"github.com/iamqiss/rangelog/interval"
	"github.com/iamqiss/rangelog/model"
)

// ErrWriterFinished reports use of a writer after Finish or Abort.
var ErrWriterFinished = errors.New("segment writer already finished")

// WriterOptions configures a segment writer.
type WriterOptions struct {
	// Codec is the block compression applied to interval components.
	Codec Codec
}

// DefaultWriterOptions compresses with zstd.
var DefaultWriterOptions = WriterOptions{
	Codec: CodecZstd,
}

// Writer builds one segment from pre-sorted per-group interval runs.
// Groups must arrive in canonical key order with their entries sorted by
// the interval ordering; the mutable index's flush guarantees both.
// WriteGroup calls, then Finish (or Abort on failure).
type Writer struct {
	desc *Descriptor
	fsys fs.FileSystem
	opts WriterOptions

	intervals fs.File
	offset    uint64
	seg       *Segment
	done      bool
}

// NewWriter opens the interval component for writing.
func NewWriter(fsys fs.FileSystem, desc *Descriptor, optFns ...func(o *WriterOptions)) (*Writer, error) {
	if fsys == nil {
		fsys = fs.Default
	}
	opts := DefaultWriterOptions
	for _, fn := range optFns {
		fn(&opts)
	}

	f, err := fsys.OpenFile(desc.IntervalsPath(), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create interval component: %w", err)
	}

	return &Writer{
		desc:      desc,
		fsys:      fsys,
		opts:      opts,
		intervals: f,
		seg: &Segment{
			Base:     desc.Base,
			Codec:    opts.Codec,
			Groups:   make(map[model.GroupKey]GroupMeta),
			StoreIDs: roaring.New(),
		},
	}, nil
}

// WriteGroup appends one group's sorted run as a compressed block.
// Groups with no entries produce no component and are dropped from the
// segment.
func (w *Writer) WriteGroup(key model.GroupKey, bounds model.GroupBounds, entries []interval.Entry) error {
	if w.done {
		return ErrWriterFinished
	}
	if len(entries) == 0 {
		return nil
	}

	raw := encodeEntries(entries)
	blockCodec, payload := compressBlock(w.opts.Codec, raw)

	if _, err := w.intervals.Write([]byte{byte(blockCodec)}); err != nil {
		return fmt.Errorf("write block header for %s: %w", key, err)
	}
	if _, err := w.intervals.Write(payload); err != nil {
		return fmt.Errorf("write block for %s: %w", key, err)
	}

	w.seg.Groups[key] = GroupMeta{
		Bounds:    bounds,
		Offset:    w.offset,
		Length:    uint64(1 + len(payload)),
		RawLength: uint64(len(raw)),
		Count:     uint32(len(entries)),
	}
	w.seg.StoreIDs.Add(uint32(key.Store))
	w.offset += uint64(1 + len(payload))
	return nil
}

// Finish syncs the interval component, writes the metadata component and
// finally the completion marker. The marker is last on purpose: a
// segment without it is never loaded.
func (w *Writer) Finish() (*Segment, error) {
	if w.done {
		return nil, ErrWriterFinished
	}
	w.done = true

	if err := w.intervals.Sync(); err != nil {
		w.intervals.Close()
		return nil, fmt.Errorf("sync interval component: %w", err)
	}
	if err := w.intervals.Close(); err != nil {
		return nil, fmt.Errorf("close interval component: %w", err)
	}

	keys := make([]model.GroupKey, 0, len(w.seg.Groups))
	for k := range w.seg.Groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return keys[i].Compare(keys[j]) < 0
	})

	meta, err := marshalMetadata(w.seg, keys)
	if err != nil {
		return nil, err
	}
	if err := w.writeComponent(w.desc.MetadataPath(), meta); err != nil {
		return nil, fmt.Errorf("write metadata component: %w", err)
	}
	if err := w.writeComponent(w.desc.MarkerPath(), []byte(markerContents)); err != nil {
		return nil, fmt.Errorf("write completion marker: %w", err)
	}

	return w.seg, nil
}

func (w *Writer) writeComponent(path string, data []byte) error {
	f, err := w.fsys.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Abort closes the writer and removes any partial components.
func (w *Writer) Abort() error {
	if w.done {
		return nil
	}
	w.done = true
	w.intervals.Close()
	return w.desc.Remove()
}
