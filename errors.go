package rangelog

import "errors"

// ErrNoPendingIndex reports a flush of a buffer that never received an
// eligible write. Flushes are only triggered when indexed data exists.
var ErrNoPendingIndex = errors.New("no pending index for buffer")
