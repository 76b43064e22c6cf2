package memindex

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iamqiss/rangelog/interval"
	"github.com/iamqiss/rangelog/model"
)

// testExtractor resolves payloads through a table the test fills in.
type testExtractor map[string][]model.Participant

func (e testExtractor) extract(payload []byte) ([]model.Participant, error) {
	ps, ok := e[string(payload)]
	if !ok {
		return nil, fmt.Errorf("unknown payload %q", payload)
	}
	return ps, nil
}

func rangeP(table model.TableID, start, end byte) model.Participant {
	return model.RangeParticipant{TableID: table, Start: []byte{start}, End: []byte{end}}
}

func journalKey(store model.StoreID, id model.TxnID) model.JournalKey {
	return model.JournalKey{TxnID: id, Store: store, Type: model.EntryCommand}
}

func TestIndexAddAndSearch(t *testing.T) {
	ext := testExtractor{
		"p1": {rangeP(1, 0x10, 0x20)},
		"p2": {rangeP(1, 0x30, 0x40), rangeP(2, 0x10, 0x20)},
	}
	x := NewIndex(ext.extract)

	added, err := x.Add(journalKey(7, txn(20)), []byte("p1"))
	require.NoError(t, err)
	assert.Positive(t, added)

	_, err = x.Add(journalKey(7, txn(30)), []byte("p2"))
	require.NoError(t, err)

	assert.Equal(t, 2, x.GroupCount())

	var got []model.TxnID
	x.SearchRange(7, 1, []byte{0x00}, []byte{0xFF}, model.TxnIDNone, model.TxnIDMax, nil, func(id model.TxnID) {
		got = append(got, id)
	})
	assert.Len(t, got, 2)

	// Table 2 holds only the second transaction.
	got = nil
	x.SearchRange(7, 2, []byte{0x00}, []byte{0xFF}, model.TxnIDNone, model.TxnIDMax, nil, func(id model.TxnID) {
		got = append(got, id)
	})
	require.Len(t, got, 1)
	assert.Equal(t, txn(30), got[0])
}

func TestIndexSkipsNonRangeParticipants(t *testing.T) {
	ext := testExtractor{
		"keys-only": {
			model.KeyParticipant{TableID: 1, Key: []byte{0x10}},
			model.KeyParticipant{TableID: 2, Key: []byte{0x20}},
		},
	}
	x := NewIndex(ext.extract)

	added, err := x.Add(journalKey(1, txn(1)), []byte("keys-only"))
	require.NoError(t, err)
	assert.Zero(t, added)
	assert.Zero(t, x.GroupCount())
}

func TestIndexExtractError(t *testing.T) {
	x := NewIndex(testExtractor{}.extract)

	_, err := x.Add(journalKey(1, txn(1)), []byte("bogus"))
	assert.Error(t, err)
}

func TestIndexSearchUnknownGroupIsNoop(t *testing.T) {
	ext := testExtractor{"p": {rangeP(1, 0x10, 0x20)}}
	x := NewIndex(ext.extract)
	_, err := x.Add(journalKey(1, txn(1)), []byte("p"))
	require.NoError(t, err)

	var hits int
	x.SearchRange(1, 99, []byte{0x00}, []byte{0xFF}, model.TxnIDNone, model.TxnIDMax, nil, func(model.TxnID) { hits++ })
	x.SearchPoint(2, 1, []byte{0x15}, model.TxnIDNone, model.TxnIDMax, nil, func(model.TxnID) { hits++ })
	assert.Zero(t, hits)
}

// recordingWriter captures flush output for inspection.
type recordingWriter struct {
	keys    []model.GroupKey
	bounds  []model.GroupBounds
	entries [][]interval.Entry
	err     error
}

func (w *recordingWriter) WriteGroup(key model.GroupKey, bounds model.GroupBounds, entries []interval.Entry) error {
	if w.err != nil {
		return w.err
	}
	w.keys = append(w.keys, key)
	w.bounds = append(w.bounds, bounds)
	w.entries = append(w.entries, entries)
	return nil
}

func TestIndexFlushEmptyFails(t *testing.T) {
	x := NewIndex(testExtractor{}.extract)
	err := x.Flush(&recordingWriter{})
	assert.ErrorIs(t, err, ErrEmptyFlush)
}

func TestIndexFlushSortedOutput(t *testing.T) {
	ext := testExtractor{
		"a": {rangeP(5, 0x50, 0x60), rangeP(2, 0x30, 0x40)},
		"b": {rangeP(5, 0x10, 0x20)},
	}
	x := NewIndex(ext.extract)
	_, err := x.Add(journalKey(3, txn(10)), []byte("a"))
	require.NoError(t, err)
	_, err = x.Add(journalKey(1, txn(20)), []byte("b"))
	require.NoError(t, err)

	w := &recordingWriter{}
	require.NoError(t, x.Flush(w))

	// Groups arrive in canonical (store, table) order.
	require.Equal(t, []model.GroupKey{
		{Store: 1, Table: 5},
		{Store: 3, Table: 2},
		{Store: 3, Table: 5},
	}, w.keys)

	// Each group's entries arrive sorted by the interval ordering.
	for gi, entries := range w.entries {
		for i := 1; i < len(entries); i++ {
			assert.LessOrEqual(t, interval.Compare(entries[i-1].Interval, entries[i].Interval), 0,
				"group %d not sorted", gi)
		}
	}
}

func TestIndexFlushWriterError(t *testing.T) {
	ext := testExtractor{"p": {rangeP(1, 0x10, 0x20)}}
	x := NewIndex(ext.extract)
	_, err := x.Add(journalKey(1, txn(1)), []byte("p"))
	require.NoError(t, err)

	wantErr := fmt.Errorf("disk full")
	err = x.Flush(&recordingWriter{err: wantErr})
	assert.ErrorIs(t, err, wantErr)
}
