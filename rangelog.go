package rangelog

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/iamqiss/rangelog/archive"
	"github.com/iamqiss/rangelog/diskindex"
	"github.com/iamqiss/rangelog/internal/fs"
	"github.com/iamqiss/rangelog/journal"
	"github.com/iamqiss/rangelog/memindex"
	"github.com/iamqiss/rangelog/model"
	"github.com/iamqiss/rangelog/segment"
)

// TableIndex answers "which logged transactions touch this key or key
// range" for one journal: a mutable tier of per-write-buffer interval
// indexes and an immutable tier of flushed segment indexes, queried
// together.
type TableIndex struct {
	opts     options
	buffers  *memindex.Manager
	disk     *diskindex.Manager
	archiver *archive.Archiver
	logger   *Logger
}

// New creates a TableIndex. extract parses a transaction's touched
// participants out of its payload; keyOf decodes journal keys from
// physical row keys. Both are supplied by the journal owner.
func New(extract model.ParticipantExtractor, keyOf model.KeyAccessor, optFns ...Option) *TableIndex {
	opts := options{
		fsys:  fs.Default,
		codec: segment.DefaultWriterOptions.Codec,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.logger == nil {
		opts.logger = NewLogger(nil)
	}

	t := &TableIndex{
		opts:    opts,
		buffers: memindex.NewManager(extract, keyOf, opts.eligible),
		disk:    diskindex.NewManager(opts.fsys),
		logger:  opts.logger,
	}
	if opts.archiveStore != nil {
		fns := append([]func(o *archive.Options){func(o *archive.Options) {
			o.FS = opts.fsys
		}}, opts.archiveOptFns...)
		t.archiver = archive.New(opts.archiveStore, fns...)
	}
	return t
}

// Close releases the immutable tier's mapped segments. Buffer indexes
// are plain memory and need no teardown.
func (t *TableIndex) Close() error {
	return t.disk.Close()
}

// IndexRow records one journal row written to the given buffer.
func (t *TableIndex) IndexRow(buf model.BufferID, row model.Row) error {
	return t.buffers.Index(buf, row)
}

// Replay drives a lenient pass over a journal file image, re-indexing
// every entry into the buffer's index. synced is the durable prefix
// length. Crash debris past the synced offset ends the pass without
// error; corruption inside it is fatal.
func (t *TableIndex) Replay(ctx context.Context, buf model.BufferID, data []byte, synced int) (int, error) {
	var entries int
	err := journal.Replay(data, synced, func(e journal.Entry, _ int64) error {
		if err := t.buffers.IndexDecoded(buf, e.Key, e.Record); err != nil {
			return err
		}
		entries++
		return nil
	})

	var recoverable *journal.RecoverableError
	if errors.As(err, &recoverable) {
		// The remainder of the file is crash debris; everything before
		// it replayed fine.
		t.logger.LogReplay(ctx, entries, true, nil)
		return entries, nil
	}
	t.logger.LogReplay(ctx, entries, false, err)
	if err != nil {
		return entries, err
	}
	return entries, nil
}

// SearchRange returns the ids of transactions with an indexed interval
// intersecting [qStart, qEnd) and an id within [minTxn, maxTxn], from
// both tiers, deduplicated and sorted.
func (t *TableIndex) SearchRange(ctx context.Context, store model.StoreID, table model.TableID, qStart, qEnd []byte, minTxn, maxTxn model.TxnID, decided model.WatermarkPredicate) ([]model.TxnID, error) {
	var mem, disk []model.TxnID

	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		t.buffers.SearchRange(store, table, qStart, qEnd, minTxn, maxTxn, decided, func(id model.TxnID) {
			mem = append(mem, id)
		})
		return nil
	})
	g.Go(func() error {
		return t.disk.SearchRange(store, table, qStart, qEnd, minTxn, maxTxn, decided, func(id model.TxnID) {
			disk = append(disk, id)
		})
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return mergeIDs(mem, disk), nil
}

// SearchPoint is the single-key variant of SearchRange.
func (t *TableIndex) SearchPoint(ctx context.Context, store model.StoreID, table model.TableID, key []byte, minTxn, maxTxn model.TxnID, decided model.WatermarkPredicate) ([]model.TxnID, error) {
	var mem, disk []model.TxnID

	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		t.buffers.SearchPoint(store, table, key, minTxn, maxTxn, decided, func(id model.TxnID) {
			mem = append(mem, id)
		})
		return nil
	})
	g.Go(func() error {
		return t.disk.SearchPoint(store, table, key, minTxn, maxTxn, decided, func(id model.TxnID) {
			disk = append(disk, id)
		})
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return mergeIDs(mem, disk), nil
}

// mergeIDs unions the two tiers' matches into a sorted, deduplicated
// id set. The same transaction can surface from both tiers while a
// flush is in flight.
func mergeIDs(a, b []model.TxnID) []model.TxnID {
	out := make([]model.TxnID, 0, len(a)+len(b))
	out = append(out, a...)
	out = append(out, b...)
	sort.Slice(out, func(i, j int) bool {
		return out[i].Compare(out[j]) < 0
	})
	dedup := out[:0]
	for i, id := range out {
		if i == 0 || id != out[i-1] {
			dedup = append(dedup, id)
		}
	}
	return dedup
}

// FlushBuffer flushes the buffer's index to a new segment at base and
// publishes it to the immutable tier. The steps are strictly ordered:
// pending index, flush to segment, optional archive, publish, discard.
// The immutable tier never observes a segment whose index is not yet
// complete.
func (t *TableIndex) FlushBuffer(ctx context.Context, buf model.BufferID, base string) (*segment.Segment, error) {
	pending := t.buffers.PendingIndex(buf)
	if pending == nil {
		err := fmt.Errorf("buffer %d: %w", buf, ErrNoPendingIndex)
		t.logger.LogFlush(ctx, uint64(buf), base, 0, err)
		return nil, err
	}

	desc := segment.NewDescriptor(t.opts.fsys, base)
	w, err := segment.NewWriter(t.opts.fsys, desc, func(o *segment.WriterOptions) {
		o.Codec = t.opts.codec
	})
	if err != nil {
		t.logger.LogFlush(ctx, uint64(buf), base, 0, err)
		return nil, err
	}

	if err := pending.Flush(w); err != nil {
		w.Abort()
		t.logger.LogFlush(ctx, uint64(buf), base, 0, err)
		return nil, fmt.Errorf("flush buffer %d: %w", buf, err)
	}
	seg, err := w.Finish()
	if err != nil {
		desc.Remove()
		t.logger.LogFlush(ctx, uint64(buf), base, 0, err)
		return nil, fmt.Errorf("finish segment %s: %w", base, err)
	}

	// Best effort: an archive failure leaves the segment local-only and
	// never fails the flush.
	if t.archiver != nil {
		archiveErr := t.archiver.Upload(ctx, desc)
		t.logger.LogArchive(ctx, base, archiveErr)
	}

	if err := t.disk.OnFileSetChanged(nil, []string{base}); err != nil {
		t.logger.LogFlush(ctx, uint64(buf), base, 0, err)
		return nil, fmt.Errorf("publish segment %s: %w", base, err)
	}
	t.buffers.Discard(buf)

	t.logger.LogFlush(ctx, uint64(buf), base, len(seg.Groups), nil)
	return seg, nil
}

// OnBufferDiscarded drops the buffer's index after the buffer itself is
// discarded without a flush.
func (t *TableIndex) OnBufferDiscarded(buf model.BufferID) {
	t.buffers.Discard(buf)
}

// OnBufferRenewed drops every buffer index except the renewed buffer's,
// after a truncate supersedes the others.
func (t *TableIndex) OnBufferRenewed(keep model.BufferID) {
	t.buffers.Renew(keep)
}

// OnFileSetChanged applies an externally driven file-set change to the
// immutable tier.
func (t *TableIndex) OnFileSetChanged(ctx context.Context, removed, added []string) error {
	err := t.disk.OnFileSetChanged(removed, added)
	t.logger.LogFileSetChange(ctx, len(removed), len(added), err)
	return err
}

// IsIndexComplete reports whether the segment at base is loaded in the
// immutable tier.
func (t *TableIndex) IsIndexComplete(base string) bool {
	return t.disk.IsIndexComplete(base)
}
