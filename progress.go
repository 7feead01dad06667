package zipalign

import aligncore "github.com/meigma/zipalign/core"

// Re-export progress types from core package.
type (
	// ProgressEvent represents a progress update of an alignment or verification task.
	ProgressEvent = aligncore.ProgressEvent

	// ProgressStage identifies the current phase of a task.
	ProgressStage = aligncore.ProgressStage
)

// Re-export progress stage constants.
const (
	// StageOpening indicates the input archive is being opened.
	StageOpening = aligncore.StageOpening

	// StageCopying indicates entries are being copied with padding.
	StageCopying = aligncore.StageCopying

	// StageWritingDirectory indicates the central directory is being rebuilt.
	StageWritingDirectory = aligncore.StageWritingDirectory

	// StageScanning indicates entries are being checked for alignment.
	StageScanning = aligncore.StageScanning

	// StageClosing indicates the output is being finalized.
	StageClosing = aligncore.StageClosing

	// StageDone indicates the task completed.
	StageDone = aligncore.StageDone

	// StageFailed indicates the task stopped on an error.
	StageFailed = aligncore.StageFailed

	// StageCancelled indicates the task was cancelled.
	StageCancelled = aligncore.StageCancelled
)

// Re-export result types from core package.
type (
	// Result describes a completed alignment.
	Result = aligncore.Result

	// Report is the outcome of a verification.
	Report = aligncore.Report

	// EntryReport is the verification outcome for one entry.
	EntryReport = aligncore.EntryReport

	// AlignedEntry records how one entry was copied by an alignment.
	AlignedEntry = aligncore.AlignedEntry
)
