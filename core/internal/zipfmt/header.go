package zipfmt

import (
	"encoding/binary"
	"fmt"
)

// Record signatures.
const (
	LocalHeaderSignature   uint32 = 0x04034b50
	CentralHeaderSignature uint32 = 0x02014b50
	EndSignature           uint32 = 0x06054b50
)

// Fixed record sizes and field positions.
const (
	// LocalHeaderLen is the size of a local header before its name and extra field.
	LocalHeaderLen = 30

	// CentralHeaderLen is the size of a central record before its variable fields.
	CentralHeaderLen = 46

	// EndLen is the size of the end record before its comment.
	EndLen = 22

	// ExtraLenOffset is the position of the extra length within a local header.
	ExtraLenOffset = 28

	// DataDescriptorLen is the size of the trailer that follows the payload
	// of an entry flagged FlagDataDescriptor: signature, CRC-32 and two sizes.
	DataDescriptorLen = 16
)

// Version is written as both "version made by" and "version needed to extract".
const Version uint16 = 20

// General-purpose flag bits.
const (
	FlagDataDescriptor uint16 = 1 << 3
	FlagUTF8           uint16 = 1 << 11
)

// MaxUint16 caps name, extra and comment lengths and the entry count.
const MaxUint16 = 0xffff

// LocalHeader is a local file header.
type LocalHeader struct {
	Flags            uint16
	Method           uint16
	ModTime          uint16
	ModDate          uint16
	CRC32            uint32
	CompressedSize   uint32
	UncompressedSize uint32
	Name             string
	Extra            []byte
}

// Size returns the encoded length of the header.
func (h *LocalHeader) Size() int {
	return LocalHeaderLen + len(h.Name) + len(h.Extra)
}

// Append encodes h onto b. The caller guarantees that the name and extra
// lengths fit in 16 bits.
func (h *LocalHeader) Append(b []byte) []byte {
	b = binary.LittleEndian.AppendUint32(b, LocalHeaderSignature)
	b = binary.LittleEndian.AppendUint16(b, Version)
	b = binary.LittleEndian.AppendUint16(b, h.Flags)
	b = binary.LittleEndian.AppendUint16(b, h.Method)
	b = binary.LittleEndian.AppendUint16(b, h.ModTime)
	b = binary.LittleEndian.AppendUint16(b, h.ModDate)
	b = binary.LittleEndian.AppendUint32(b, h.CRC32)
	b = binary.LittleEndian.AppendUint32(b, h.CompressedSize)
	b = binary.LittleEndian.AppendUint32(b, h.UncompressedSize)
	b = binary.LittleEndian.AppendUint16(b, uint16(len(h.Name)))  //nolint:gosec // checked by caller
	b = binary.LittleEndian.AppendUint16(b, uint16(len(h.Extra))) //nolint:gosec // checked by caller
	b = append(b, h.Name...)
	return append(b, h.Extra...)
}

// LocalFixed holds the variable-field lengths of a local header, decoded
// from its fixed 30-byte prefix.
type LocalFixed struct {
	NameLen  uint16
	ExtraLen uint16
}

// ParseLocalFixed decodes the fixed part of a local header and checks its
// signature.
func ParseLocalFixed(b []byte) (LocalFixed, error) {
	if len(b) < LocalHeaderLen {
		return LocalFixed{}, fmt.Errorf("local header: short read of %d bytes", len(b))
	}
	if sig := binary.LittleEndian.Uint32(b); sig != LocalHeaderSignature {
		return LocalFixed{}, fmt.Errorf("local header: bad signature %#08x", sig)
	}
	return LocalFixed{
		NameLen:  binary.LittleEndian.Uint16(b[26:]),
		ExtraLen: binary.LittleEndian.Uint16(b[ExtraLenOffset:]),
	}, nil
}

// CentralHeader is a central directory record. Disk number and file
// attributes are always written as zero.
type CentralHeader struct {
	Flags            uint16
	Method           uint16
	ModTime          uint16
	ModDate          uint16
	CRC32            uint32
	CompressedSize   uint32
	UncompressedSize uint32
	Name             string
	Extra            []byte
	Comment          string
	Offset           uint32
}

// Append encodes h onto b. A comment longer than MaxUint16 bytes is
// truncated; the caller guarantees the name and extra lengths fit.
func (h *CentralHeader) Append(b []byte) []byte {
	comment := h.Comment
	if len(comment) > MaxUint16 {
		comment = comment[:MaxUint16]
	}
	b = binary.LittleEndian.AppendUint32(b, CentralHeaderSignature)
	b = binary.LittleEndian.AppendUint16(b, Version) // made by
	b = binary.LittleEndian.AppendUint16(b, Version) // needed
	b = binary.LittleEndian.AppendUint16(b, h.Flags)
	b = binary.LittleEndian.AppendUint16(b, h.Method)
	b = binary.LittleEndian.AppendUint16(b, h.ModTime)
	b = binary.LittleEndian.AppendUint16(b, h.ModDate)
	b = binary.LittleEndian.AppendUint32(b, h.CRC32)
	b = binary.LittleEndian.AppendUint32(b, h.CompressedSize)
	b = binary.LittleEndian.AppendUint32(b, h.UncompressedSize)
	b = binary.LittleEndian.AppendUint16(b, uint16(len(h.Name)))  //nolint:gosec // checked by caller
	b = binary.LittleEndian.AppendUint16(b, uint16(len(h.Extra))) //nolint:gosec // checked by caller
	b = binary.LittleEndian.AppendUint16(b, uint16(len(comment)))  //nolint:gosec // truncated above
	b = binary.LittleEndian.AppendUint16(b, 0)                      // disk number start
	b = binary.LittleEndian.AppendUint16(b, 0)                      // internal attributes
	b = binary.LittleEndian.AppendUint32(b, 0)                      // external attributes
	b = binary.LittleEndian.AppendUint32(b, h.Offset)
	b = append(b, h.Name...)
	b = append(b, h.Extra...)
	return append(b, comment...)
}

// End is the end of central directory record of a single-disk archive.
type End struct {
	Entries uint16
	Size    uint32
	Offset  uint32
	Comment string
}

// Append encodes e onto b. The entry count is written both as the count on
// this disk and as the total. A comment longer than MaxUint16 bytes is
// truncated.
func (e *End) Append(b []byte) []byte {
	comment := e.Comment
	if len(comment) > MaxUint16 {
		comment = comment[:MaxUint16]
	}
	b = binary.LittleEndian.AppendUint32(b, EndSignature)
	b = binary.LittleEndian.AppendUint16(b, 0) // this disk
	b = binary.LittleEndian.AppendUint16(b, 0) // directory start disk
	b = binary.LittleEndian.AppendUint16(b, e.Entries)
	b = binary.LittleEndian.AppendUint16(b, e.Entries)
	b = binary.LittleEndian.AppendUint32(b, e.Size)
	b = binary.LittleEndian.AppendUint32(b, e.Offset)
	b = binary.LittleEndian.AppendUint16(b, uint16(len(comment))) //nolint:gosec // truncated above
	return append(b, comment...)
}

// Padding returns the number of bytes needed to move offset up to the next
// multiple of alignment. alignment must be positive.
func Padding(offset uint64, alignment int) int {
	k := uint64(alignment) //nolint:gosec // alignment is validated positive by callers
	return int((k - offset%k) % k) //nolint:gosec // result is below alignment
}
