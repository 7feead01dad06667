package zipalign

import (
	aligncore "github.com/meigma/zipalign/core"
	alignhttp "github.com/meigma/zipalign/core/http"
)

// Errors re-exported from core.
var (
	// ErrMalformed is returned when an archive record cannot be parsed.
	ErrMalformed = aligncore.ErrMalformed

	// ErrSizeOverflow is returned when an offset or size does not fit its ZIP field.
	ErrSizeOverflow = aligncore.ErrSizeOverflow

	// ErrTooManyEntries is returned when the archive holds more than 65535 entries.
	ErrTooManyEntries = aligncore.ErrTooManyEntries

	// ErrInvalidAlignment is returned when the alignment is less than 1.
	ErrInvalidAlignment = aligncore.ErrInvalidAlignment

	// ErrCancelled is returned when a task is cancelled before it completes.
	ErrCancelled = aligncore.ErrCancelled

	// ErrNotAligned is returned by strict verification of a misaligned archive.
	ErrNotAligned = aligncore.ErrNotAligned
)

// ErrRangeUnsupported is returned when a remote archive's server does not
// honor range requests.
var ErrRangeUnsupported = alignhttp.ErrRangeUnsupported

// ErrRemoteChanged is returned when a remote archive is replaced on the
// server while it is being read.
var ErrRemoteChanged = alignhttp.ErrRemoteChanged
