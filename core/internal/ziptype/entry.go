package ziptype

import (
	"strings"
	"time"
)

// Compression methods recognized by the aligner. Every method other than
// MethodStore is treated as compressed.
const (
	MethodStore   uint16 = 0
	MethodDeflate uint16 = 8
)

// Entry is one archive member as recorded in the central directory.
type Entry struct {
	// Name is the raw member name. Archives written by Android tooling use UTF-8.
	Name string

	// Method is the compression method (MethodStore for uncompressed data).
	Method uint16

	// Flags is the general-purpose bit flag recorded in the central directory.
	// Runs compute their own flag word and do not copy this value.
	Flags uint16

	// CRC32 is the checksum of the uncompressed content.
	CRC32 uint32

	// CompressedSize is the number of payload bytes stored in the archive.
	CompressedSize uint64

	// UncompressedSize is the size of the content once decompressed.
	UncompressedSize uint64

	// Modified is the last-modified time decoded from the DOS date and time
	// words of the central directory record, in UTC wall-clock form.
	Modified time.Time

	// Extra is the central directory's extra field, verbatim.
	Extra []byte

	// Comment is the per-entry comment.
	Comment string
}

// Stored reports whether the payload is kept uncompressed.
func (e *Entry) Stored() bool {
	return e.Method == MethodStore
}

// IsDir reports whether the entry names a directory.
func (e *Entry) IsDir() bool {
	return strings.HasSuffix(e.Name, "/")
}

// WorkingEntry carries the values an alignment run computes for an entry
// while copying it, for use when the central directory is rebuilt.
type WorkingEntry struct {
	Entry *Entry

	// HeaderOffset is where the entry's local header starts in the output.
	HeaderOffset uint64

	// Flags is the general-purpose bit flag written for this entry.
	Flags uint16

	// Padding is the number of zero bytes appended to the local extra field.
	Padding int
}
