package interval

import (
	"encoding/binary"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iamqiss/rangelog/model"
)

func key(v uint16) []byte {
	b := make([]byte, 2)
	binary.BigEndian.PutUint16(b, v)
	return b
}

func TestTreeSearchRange(t *testing.T) {
	tree := NewTree()
	tree.Add(Interval{Start: key(0x10), End: key(0x20)}, model.TxnID{HLC: 20})
	tree.Add(Interval{Start: key(0x30), End: key(0x40)}, model.TxnID{HLC: 30})
	tree.Add(Interval{Start: key(0x50), End: key(0x60)}, model.TxnID{HLC: 40})

	var got []Entry
	tree.SearchRange(key(0x15), key(0x35), func(e Entry) {
		got = append(got, e)
	})

	require.Len(t, got, 2)
	SortEntries(got)
	assert.Equal(t, uint64(20), got[0].TxnID.HLC)
	assert.Equal(t, uint64(30), got[1].TxnID.HLC)
}

func TestTreeDuplicateIntervals(t *testing.T) {
	tree := NewTree()
	same := Interval{Start: key(1), End: key(2)}
	tree.Add(same, model.TxnID{HLC: 1})
	tree.Add(same, model.TxnID{HLC: 2})
	tree.Add(same, model.TxnID{HLC: 3})

	assert.Equal(t, 3, tree.Len())

	var hits int
	tree.SearchPoint(key(2), func(Entry) { hits++ })
	assert.Equal(t, 3, hits)
}

func TestTreeAscendSorted(t *testing.T) {
	tree := NewTree()
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 200; i++ {
		s := uint16(rng.Intn(1000))
		e := s + 1 + uint16(rng.Intn(100))
		tree.Add(Interval{Start: key(s), End: key(e)}, model.TxnID{HLC: uint64(i)})
	}

	var prev *Entry
	tree.Ascend(func(e Entry) bool {
		if prev != nil {
			assert.LessOrEqual(t, Compare(prev.Interval, e.Interval), 0)
		}
		cp := e
		prev = &cp
		return true
	})
	assert.Equal(t, 200, tree.Len())
}

func TestTreeRandomizedAgainstScan(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	tree := NewTree()
	var all []Entry

	for i := 0; i < 500; i++ {
		s := uint16(rng.Intn(2000))
		e := s + 1 + uint16(rng.Intn(200))
		entry := Entry{
			Interval: Interval{Start: key(s), End: key(e)},
			TxnID:    model.TxnID{HLC: uint64(i)},
		}
		tree.Add(entry.Interval, entry.TxnID)
		all = append(all, entry)
	}

	for q := 0; q < 100; q++ {
		qs := uint16(rng.Intn(2200))
		qe := qs + uint16(rng.Intn(300))

		var want []Entry
		for _, e := range all {
			if e.Interval.Intersects(key(qs), key(qe)) {
				want = append(want, e)
			}
		}
		var got []Entry
		tree.SearchRange(key(qs), key(qe), func(e Entry) {
			got = append(got, e)
		})

		SortEntries(want)
		SortEntries(got)
		require.Equal(t, want, got, "query [%d, %d)", qs, qe)
	}

	for q := 0; q < 100; q++ {
		k := key(uint16(rng.Intn(2200)))

		var want []Entry
		for _, e := range all {
			if e.Interval.Contains(k) {
				want = append(want, e)
			}
		}
		var got []Entry
		tree.SearchPoint(k, func(e Entry) {
			got = append(got, e)
		})

		SortEntries(want)
		SortEntries(got)
		require.Equal(t, want, got, "point %x", k)
	}
}

func TestTreeEmptyQuery(t *testing.T) {
	tree := NewTree()

	var hits int
	tree.SearchRange(key(0), key(100), func(Entry) { hits++ })
	tree.SearchPoint(key(5), func(Entry) { hits++ })
	assert.Zero(t, hits)
	assert.Zero(t, tree.Len())
}
