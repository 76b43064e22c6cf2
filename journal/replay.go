package journal

// Replayer iterates the entries of a journal file image during startup,
// using the lenient read path. It stops cleanly at an unwritten tail and
// surfaces checksum failures as *RecoverableError for the driver to act
// on.
type Replayer struct {
	buf    []byte
	off    int
	synced int
	done   bool
}

// NewReplayer returns a replayer over buf. synced is the length of the
// prefix the writer confirmed durable; malformed frames beginning inside
// it are corruption, malformed frames past it are a torn tail.
func NewReplayer(buf []byte, synced int) *Replayer {
	return &Replayer{buf: buf, synced: synced}
}

// Offset returns the position of the next unread entry.
func (r *Replayer) Offset() int64 {
	return int64(r.off)
}

// Next returns the next entry. ok is false when the readable region is
// exhausted. A returned error ends the iteration; if it is a
// *RecoverableError the driver may treat the remainder of the file as
// crash debris and proceed.
func (r *Replayer) Next() (entry Entry, ok bool, err error) {
	if r.done {
		return Entry{}, false, nil
	}

	entry, n, err := TryRead(r.buf, r.off, r.synced)
	if err != nil {
		r.done = true
		return Entry{}, false, err
	}
	if n == 0 {
		r.done = true
		return Entry{}, false, nil
	}

	r.off += n
	return entry, true, nil
}

// Replay drives a full lenient pass over buf, calling fn with each entry
// and its frame offset. It returns nil at a clean tail and the
// terminating error otherwise.
func Replay(buf []byte, synced int, fn func(Entry, int64) error) error {
	r := NewReplayer(buf, synced)
	for {
		off := r.Offset()
		entry, ok, err := r.Next()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		if err := fn(entry, off); err != nil {
			return err
		}
	}
}
