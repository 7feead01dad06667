package zipfmt

import (
	"errors"
	"io"
	"math"
)

// ErrOffsetOverflow is returned when an offset no longer fits the 32-bit
// offset fields of an archive without Zip64 records.
var ErrOffsetOverflow = errors.New("offset exceeds 32-bit field")

// OffsetWriter wraps the output of an archive being written. N is the
// offset at which the next byte will land.
type OffsetWriter struct {
	W io.Writer
	N uint64
}

// Write implements io.Writer.
func (w *OffsetWriter) Write(p []byte) (int, error) {
	n, err := w.W.Write(p)
	if n > 0 {
		//nolint:gosec // n is guaranteed non-negative by io.Writer contract
		if w.N > math.MaxUint64-uint64(n) {
			return n, ErrOffsetOverflow
		}
		w.N += uint64(n) //nolint:gosec // overflow checked above
	}
	return n, err
}

// Offset32 returns N for a 32-bit header field.
func (w *OffsetWriter) Offset32() (uint32, error) {
	if w.N > math.MaxUint32 {
		return 0, ErrOffsetOverflow
	}
	return uint32(w.N), nil
}
