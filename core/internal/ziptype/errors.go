package ziptype

import "errors"

// Sentinel errors for alignment and verification runs.
var (
	// ErrMalformed is returned when an archive record cannot be parsed or a
	// local header is not where the central directory says it should be.
	ErrMalformed = errors.New("zipalign: malformed archive")

	// ErrSizeOverflow is returned when an offset, size or length does not fit
	// the 16- or 32-bit field that must hold it.
	ErrSizeOverflow = errors.New("zipalign: size overflow")

	// ErrTooManyEntries is returned when the entry count does not fit the
	// 16-bit count field of the end of central directory record.
	ErrTooManyEntries = errors.New("zipalign: too many entries")

	// ErrInvalidAlignment is returned when the alignment is less than 1.
	ErrInvalidAlignment = errors.New("zipalign: invalid alignment")

	// ErrCancelled is returned when a run stops because its context was done.
	ErrCancelled = errors.New("zipalign: cancelled")

	// ErrNotAligned is returned by strict verification when at least one
	// stored entry is misaligned.
	ErrNotAligned = errors.New("zipalign: archive is not aligned")
)
