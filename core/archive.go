package zipalign

import (
	"fmt"
	"io"
	"iter"

	"github.com/klauspost/compress/zip"

	"github.com/meigma/zipalign/core/internal/zipfmt"
	"github.com/meigma/zipalign/core/internal/ziptype"
)

// Re-export types from internal/ziptype for public API.
type (
	// Entry is one archive member as recorded in the central directory.
	Entry = ziptype.Entry

	// ProgressEvent represents a progress update during a run.
	ProgressEvent = ziptype.ProgressEvent

	// ProgressStage identifies the current phase of a run.
	ProgressStage = ziptype.ProgressStage

	// ProgressFunc receives progress updates during a run.
	ProgressFunc = ziptype.ProgressFunc
)

// Re-export compression method constants.
const (
	MethodStore   = ziptype.MethodStore
	MethodDeflate = ziptype.MethodDeflate
)

// Re-export progress stage constants.
const (
	StageOpening          = ziptype.StageOpening
	StageCopying          = ziptype.StageCopying
	StageWritingDirectory = ziptype.StageWritingDirectory
	StageScanning         = ziptype.StageScanning
	StageClosing          = ziptype.StageClosing
	StageDone             = ziptype.StageDone
	StageFailed           = ziptype.StageFailed
	StageCancelled        = ziptype.StageCancelled
)

// Sentinel errors re-exported from internal/ziptype.
var (
	// ErrMalformed is returned when an archive record cannot be parsed.
	ErrMalformed = ziptype.ErrMalformed

	// ErrSizeOverflow is returned when a value does not fit its ZIP field.
	ErrSizeOverflow = ziptype.ErrSizeOverflow

	// ErrTooManyEntries is returned when the entry count exceeds 65535.
	ErrTooManyEntries = ziptype.ErrTooManyEntries

	// ErrInvalidAlignment is returned when the alignment is less than 1.
	ErrInvalidAlignment = ziptype.ErrInvalidAlignment

	// ErrCancelled is returned when a run stops because its context was done.
	ErrCancelled = ziptype.ErrCancelled

	// ErrNotAligned is returned by strict verification of a misaligned archive.
	ErrNotAligned = ziptype.ErrNotAligned
)

// ByteSource provides random access to the bytes of an archive.
//
// Implementations exist for local files (see [OpenFile]) and HTTP range
// requests (see the http subpackage).
type ByteSource interface {
	io.ReaderAt
	Size() int64
}

// Archive gives ordered access to the entries of a ZIP archive together
// with positional reads of its raw bytes.
//
// Entries come from the central directory; raw reads let callers inspect
// local headers, whose extra fields may legitimately differ from the
// central copies.
type Archive struct {
	src ByteSource
	zr  *zip.Reader
}

// OpenArchive parses the end record and central directory of the archive
// held by src.
func OpenArchive(src ByteSource) (*Archive, error) {
	zr, err := zip.NewReader(src, src.Size())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	return &Archive{src: src, zr: zr}, nil
}

// Len returns the number of entries in the central directory.
func (a *Archive) Len() int {
	return len(a.zr.File)
}

// Size returns the size of the archive in bytes.
func (a *Archive) Size() int64 {
	return a.src.Size()
}

// Comment returns the archive-level comment.
func (a *Archive) Comment() string {
	return a.zr.Comment
}

// Entries yields the archive's entries in central directory order.
//
// A record that cannot be represented yields a single error and ends the
// sequence; no partial entry is ever yielded.
func (a *Archive) Entries() iter.Seq2[*Entry, error] {
	return func(yield func(*Entry, error) bool) {
		for _, f := range a.zr.File {
			entry, err := entryFromFile(f)
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(entry, nil) {
				return
			}
		}
	}
}

// ReadRaw returns length bytes of the archive starting at off. Reading past
// the end of the archive is reported as ErrMalformed.
func (a *Archive) ReadRaw(off int64, length int) ([]byte, error) {
	buf := make([]byte, length)
	n, err := a.src.ReadAt(buf, off)
	if n == length {
		return buf, nil
	}
	if err == nil || err == io.EOF {
		return nil, fmt.Errorf("%w: read %d bytes at offset %d: archive ends after %d", ErrMalformed, length, off, n)
	}
	return nil, fmt.Errorf("read %d bytes at offset %d: %w", length, off, err)
}

// section returns a reader over length bytes starting at off.
func (a *Archive) section(off, length int64) *io.SectionReader {
	return io.NewSectionReader(a.src, off, length)
}

// entryFromFile converts a central directory record into an Entry.
func entryFromFile(f *zip.File) (*Entry, error) {
	if len(f.Name) > zipfmt.MaxUint16 || len(f.Extra) > zipfmt.MaxUint16 {
		return nil, fmt.Errorf("%w: entry %q: name or extra field too long", ErrMalformed, f.Name)
	}
	//nolint:staticcheck // the raw DOS words are needed to reproduce the timestamp exactly
	modified := zipfmt.FromDOSDateTime(f.ModifiedDate, f.ModifiedTime)
	return &Entry{
		Name:             f.Name,
		Method:           f.Method,
		Flags:            f.Flags,
		CRC32:            f.CRC32,
		CompressedSize:   f.CompressedSize64,
		UncompressedSize: f.UncompressedSize64,
		Modified:         modified,
		Extra:            f.Extra,
		Comment:          f.Comment,
	}, nil
}
