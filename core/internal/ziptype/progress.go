package ziptype

// ProgressEvent represents a progress update during an alignment or
// verification run.
type ProgressEvent struct {
	// Stage identifies the current phase of the run.
	Stage ProgressStage

	// Percent is the overall completion, from 0 to 100.
	Percent float64

	// Short is a one-line status message, if any.
	Short string

	// Detail is a longer message: a per-entry line while scanning or copying,
	// or the diagnostic text of a failure.
	Detail string

	// Path is the entry currently being processed, if applicable.
	Path string

	// Err is set on StageFailed and StageCancelled events.
	Err error
}

// ProgressStage identifies the current phase of a run.
type ProgressStage uint8

// Progress stages. The last three are terminal: exactly one of them ends
// every run.
const (
	// StageOpening indicates the input archive is being opened.
	StageOpening ProgressStage = iota

	// StageCopying indicates entries are being copied with padding.
	StageCopying

	// StageWritingDirectory indicates the central directory is being rebuilt.
	StageWritingDirectory

	// StageScanning indicates entries are being checked for alignment.
	StageScanning

	// StageClosing indicates handles are being released.
	StageClosing

	// StageDone indicates the run completed.
	StageDone

	// StageFailed indicates the run stopped on an error.
	StageFailed

	// StageCancelled indicates the run stopped because it was cancelled.
	StageCancelled
)

// String returns the string representation of the stage.
func (s ProgressStage) String() string {
	switch s {
	case StageOpening:
		return "opening"
	case StageCopying:
		return "copying"
	case StageWritingDirectory:
		return "writing central directory"
	case StageScanning:
		return "scanning"
	case StageClosing:
		return "closing"
	case StageDone:
		return "done"
	case StageFailed:
		return "failed"
	case StageCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Terminal reports whether the stage ends a run.
func (s ProgressStage) Terminal() bool {
	return s == StageDone || s == StageFailed || s == StageCancelled
}

// ProgressFunc receives progress updates during a run.
// It is called from the goroutine executing the run.
type ProgressFunc func(ProgressEvent)
