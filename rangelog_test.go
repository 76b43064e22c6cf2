package rangelog

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iamqiss/rangelog/journal"
	"github.com/iamqiss/rangelog/model"
	"github.com/iamqiss/rangelog/segment"
)

// testPayloads maps payload bytes to participants, standing in for the
// journal owner's extractor.
var testPayloads = map[string][]model.Participant{
	"r1": {model.RangeParticipant{TableID: 1, Start: []byte{0x10}, End: []byte{0x20}}},
	"r2": {model.RangeParticipant{TableID: 1, Start: []byte{0x30}, End: []byte{0x40}}},
	"r3": {model.RangeParticipant{TableID: 1, Start: []byte{0x50}, End: []byte{0x60}}},
	"k1": {model.KeyParticipant{TableID: 1, Key: []byte{0x70}}},
}

func extract(payload []byte) ([]model.Participant, error) {
	ps, ok := testPayloads[string(payload)]
	if !ok {
		return nil, fmt.Errorf("unknown payload %q", payload)
	}
	return ps, nil
}

func keyOf(physical []byte) (model.JournalKey, error) {
	if len(physical) < model.JournalKeySize {
		return model.JournalKey{}, fmt.Errorf("short key")
	}
	return model.UnmarshalJournalKey(physical), nil
}

func txn(hlc uint64) model.TxnID {
	return model.TxnID{HLC: hlc, Node: 1, Kind: model.KindWrite}
}

func row(store model.StoreID, id model.TxnID, payload string) model.Row {
	k := model.JournalKey{TxnID: id, Store: store, Type: model.EntryCommand}
	buf := make([]byte, model.JournalKeySize)
	k.MarshalTo(buf)
	return model.Row{Key: buf, Payload: []byte(payload)}
}

func newTestIndex(t *testing.T) *TableIndex {
	t.Helper()
	idx := New(extract, keyOf, WithLogger(NoopLogger()))
	t.Cleanup(func() { idx.Close() })
	return idx
}

func TestIndexAndSearchMutableTier(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndex(t)

	require.NoError(t, idx.IndexRow(1, row(4, txn(20), "r1")))
	require.NoError(t, idx.IndexRow(1, row(4, txn(30), "r2")))
	require.NoError(t, idx.IndexRow(1, row(4, txn(40), "r3")))

	got, err := idx.SearchRange(ctx, 4, 1, []byte{0x15}, []byte{0x35}, model.TxnIDNone, txn(100), nil)
	require.NoError(t, err)
	assert.Equal(t, []model.TxnID{txn(20), txn(30)}, got, "results are sorted and range-filtered")

	got, err = idx.SearchPoint(ctx, 4, 1, []byte{0x35}, model.TxnIDNone, model.TxnIDMax, nil)
	require.NoError(t, err)
	assert.Equal(t, []model.TxnID{txn(30)}, got)
}

func TestFlushMovesResultsToImmutableTier(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndex(t)
	base := filepath.Join(t.TempDir(), "j1")

	require.NoError(t, idx.IndexRow(1, row(4, txn(20), "r1")))
	require.NoError(t, idx.IndexRow(1, row(4, txn(30), "r2")))

	seg, err := idx.FlushBuffer(ctx, 1, base)
	require.NoError(t, err)
	assert.Len(t, seg.Groups, 1)
	assert.True(t, idx.IsIndexComplete(base))

	// Identical results after the flush, now served from disk.
	got, err := idx.SearchRange(ctx, 4, 1, []byte{0x00}, []byte{0xFF}, model.TxnIDNone, model.TxnIDMax, nil)
	require.NoError(t, err)
	assert.Equal(t, []model.TxnID{txn(20), txn(30)}, got)

	// The buffer index is gone; flushing again has nothing to flush.
	_, err = idx.FlushBuffer(ctx, 1, base+"-again")
	assert.ErrorIs(t, err, ErrNoPendingIndex)
}

func TestSearchDeduplicatesAcrossTiers(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndex(t)
	base := filepath.Join(t.TempDir(), "j1")

	require.NoError(t, idx.IndexRow(1, row(4, txn(20), "r1")))
	_, err := idx.FlushBuffer(ctx, 1, base)
	require.NoError(t, err)

	// The same transaction re-indexed in a live buffer, as happens while
	// a flush is racing ongoing writes.
	require.NoError(t, idx.IndexRow(2, row(4, txn(20), "r1")))

	got, err := idx.SearchRange(ctx, 4, 1, []byte{0x00}, []byte{0xFF}, model.TxnIDNone, model.TxnIDMax, nil)
	require.NoError(t, err)
	assert.Equal(t, []model.TxnID{txn(20)}, got, "duplicate across tiers collapses to one id")
}

func TestFlushEmptyBufferFails(t *testing.T) {
	idx := newTestIndex(t)

	_, err := idx.FlushBuffer(context.Background(), 9, filepath.Join(t.TempDir(), "j"))
	assert.ErrorIs(t, err, ErrNoPendingIndex)
}

func TestBufferLifecycleNotifications(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndex(t)

	for buf := model.BufferID(1); buf <= 3; buf++ {
		require.NoError(t, idx.IndexRow(buf, row(4, txn(uint64(10*buf)), "r1")))
	}

	idx.OnBufferRenewed(2)
	got, err := idx.SearchRange(ctx, 4, 1, []byte{0x00}, []byte{0xFF}, model.TxnIDNone, model.TxnIDMax, nil)
	require.NoError(t, err)
	assert.Equal(t, []model.TxnID{txn(20)}, got, "only the renewed buffer survives")

	idx.OnBufferDiscarded(2)
	got, err = idx.SearchRange(ctx, 4, 1, []byte{0x00}, []byte{0xFF}, model.TxnIDNone, model.TxnIDMax, nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestOnFileSetChangedRemove(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndex(t)
	base := filepath.Join(t.TempDir(), "j1")

	require.NoError(t, idx.IndexRow(1, row(4, txn(20), "r1")))
	_, err := idx.FlushBuffer(ctx, 1, base)
	require.NoError(t, err)

	require.NoError(t, idx.OnFileSetChanged(ctx, []string{base}, nil))
	assert.False(t, idx.IsIndexComplete(base))

	got, err := idx.SearchRange(ctx, 4, 1, []byte{0x00}, []byte{0xFF}, model.TxnIDNone, model.TxnIDMax, nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestOnFileSetChangedIncompleteIsFatal(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndex(t)

	err := idx.OnFileSetChanged(ctx, nil, []string{filepath.Join(t.TempDir(), "ghost")})
	assert.ErrorIs(t, err, segment.ErrIncomplete)
}

func journalKeyFor(store model.StoreID, id model.TxnID) model.JournalKey {
	return model.JournalKey{TxnID: id, Store: store, Type: model.EntryCommand}
}

func TestReplayRebuildsIndex(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndex(t)

	var data []byte
	data = journal.Append(data, journalKeyFor(4, txn(20)), []byte("r1"))
	data = journal.Append(data, journalKeyFor(4, txn(30)), []byte("r2"))
	synced := len(data)
	data = append(data, make([]byte, 32)...) // unwritten tail

	n, err := idx.Replay(ctx, 1, data, synced)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	got, err := idx.SearchRange(ctx, 4, 1, []byte{0x00}, []byte{0xFF}, model.TxnIDNone, model.TxnIDMax, nil)
	require.NoError(t, err)
	assert.Equal(t, []model.TxnID{txn(20), txn(30)}, got)
}

func TestReplayToleratesCrashDebris(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndex(t)

	var data []byte
	data = journal.Append(data, journalKeyFor(4, txn(20)), []byte("r1"))
	synced := len(data)

	bad := journal.Append(nil, journalKeyFor(4, txn(30)), []byte("r2"))
	bad[len(bad)-1] ^= 0xFF // torn record checksum
	data = append(data, bad...)

	n, err := idx.Replay(ctx, 1, data, synced)
	require.NoError(t, err, "debris past the synced offset is tolerated")
	assert.Equal(t, 1, n)
}

func TestSearchRangeWatermarkGating(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndex(t)

	syncID := model.TxnID{HLC: 5, Node: 1, Kind: model.KindSyncPoint}
	require.NoError(t, idx.IndexRow(1, model.Row{
		Key: func() []byte {
			b := make([]byte, model.JournalKeySize)
			model.JournalKey{TxnID: syncID, Store: 4, Type: model.EntryCommand}.MarshalTo(b)
			return b
		}(),
		Payload: []byte("r1"),
	}))

	notDecided := func(model.TxnID) bool { return false }
	got, err := idx.SearchRange(ctx, 4, 1, []byte{0x00}, []byte{0xFF}, model.TxnIDNone, model.TxnIDMax, notDecided)
	require.NoError(t, err)
	assert.Empty(t, got)

	decided := func(model.TxnID) bool { return true }
	got, err = idx.SearchRange(ctx, 4, 1, []byte{0x00}, []byte{0xFF}, model.TxnIDNone, model.TxnIDMax, decided)
	require.NoError(t, err)
	assert.Equal(t, []model.TxnID{syncID}, got)
}

func TestStaticRowsIgnored(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndex(t)

	r := row(4, txn(20), "r1")
	r.Static = true
	require.NoError(t, idx.IndexRow(1, r))

	got, err := idx.SearchRange(ctx, 4, 1, []byte{0x00}, []byte{0xFF}, model.TxnIDNone, model.TxnIDMax, nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}
