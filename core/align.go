package zipalign

import (
	"bufio"
	"context"
	_ "crypto/sha256" // registers the digest.Canonical hash
	"fmt"
	"io"
	"log/slog"

	"github.com/opencontainers/go-digest"

	"github.com/meigma/zipalign/core/internal/sizing"
	"github.com/meigma/zipalign/core/internal/zipfmt"
	"github.com/meigma/zipalign/core/internal/ziptype"
)

// writeBufferSize is the size of the buffer in front of the output sink.
const writeBufferSize = 256 << 10

// copyBufferSize is the size of the buffer used to copy entry payloads.
const copyBufferSize = 64 << 10

// Result describes a completed alignment run.
type Result struct {
	// Entries is the number of entries written, equal to the input count.
	Entries int

	// Stored is the number of uncompressed entries.
	Stored int

	// Padded is the number of entries that received padding.
	Padded int

	// Padding is the total number of padding bytes inserted.
	Padding uint64

	// Size is the size of the output archive in bytes.
	Size uint64

	// Digest is the sha256 digest of the output archive.
	Digest digest.Digest

	// Layout holds one record per entry, in output order.
	Layout []AlignedEntry
}

// AlignedEntry records how one entry was copied.
type AlignedEntry struct {
	// Name is the entry name.
	Name string

	// InputOffset is where the entry's payload starts in the input.
	InputOffset uint64

	// Compressed is true for entries that are not stored.
	Compressed bool

	// Padding is the number of bytes added to the local extra field.
	Padding int
}

// String formats the entry as a status line: offset, name and outcome.
func (e AlignedEntry) String() string {
	status := "OK"
	switch {
	case e.Compressed:
		status = "OK - compressed"
	case e.Padding > 0:
		status = fmt.Sprintf("OK - aligned, %d B", e.Padding)
	}
	return fmt.Sprintf("%15d  %s  (%s)", e.InputOffset, e.Name, status)
}

// Align copies the archive held by src to dst, padding the local extra
// field of every stored entry so its payload starts on the configured
// alignment, then rebuilds the central directory and end record.
//
// Entries are written in central directory order and their payloads are
// copied verbatim. The context is checked between entries; once it is done
// Align returns an error matching ErrCancelled and dst holds a partial
// archive that the caller must discard. Use AlignFile to have that handled.
func Align(ctx context.Context, src ByteSource, dst io.Writer, opts ...Option) (*Result, error) {
	a := newAligner(opts)
	res, err := a.alignStream(ctx, src, dst)
	err = settle(ctx, err)
	if err == nil {
		a.track.advance(StageClosing, weightClose, "", "")
	}
	a.track.finish(err, "alignment done")
	return res, err
}

// aligner holds the configuration of one alignment run.
// All per-entry state lives in local variables of copyEntries.
type aligner struct {
	cfg   config
	track *tracker
}

func newAligner(opts []Option) *aligner {
	cfg := newConfig(opts)
	return &aligner{cfg: cfg, track: newTracker(cfg.progress)}
}

// log returns the run's logger.
func (a *aligner) log() *slog.Logger {
	return a.cfg.log()
}

// alignStream opens the archive held by src and aligns it into dst.
func (a *aligner) alignStream(ctx context.Context, src ByteSource, dst io.Writer) (*Result, error) {
	if err := a.cfg.validate(); err != nil {
		return nil, err
	}
	archive, err := OpenArchive(src)
	if err != nil {
		return nil, err
	}
	a.track.advance(StageOpening, weightOpen, "", "")
	return a.align(ctx, archive, dst)
}

// align runs the copy and central directory phases and flushes dst.
func (a *aligner) align(ctx context.Context, archive *Archive, dst io.Writer) (*Result, error) {
	if archive.Len() > zipfmt.MaxUint16 {
		return nil, fmt.Errorf("%w: %d entries", ErrTooManyEntries, archive.Len())
	}

	digester := digest.Canonical.Digester()
	bw := bufio.NewWriterSize(io.MultiWriter(dst, digester.Hash()), writeBufferSize)
	out := &zipfmt.OffsetWriter{W: bw}

	a.log().Info("aligning archive", "entries", archive.Len(), "alignment", a.cfg.alignment)

	working, res, err := a.copyEntries(ctx, archive, out)
	if err != nil {
		return nil, err
	}
	if err := a.writeCentralDirectory(ctx, archive, working, out); err != nil {
		return nil, err
	}
	if err := bw.Flush(); err != nil {
		return nil, fmt.Errorf("flush output: %w", err)
	}

	res.Size = out.N
	res.Digest = digester.Digest()
	a.log().Debug("archive aligned", "size", res.Size, "padding", res.Padding, "digest", res.Digest)
	return res, nil
}

// entryFlags returns the general-purpose flags written for entry: the data
// descriptor bit for compressed entries and the UTF-8 name bit always.
func entryFlags(entry *Entry) uint16 {
	flags := zipfmt.FlagUTF8
	if !entry.Stored() {
		flags |= zipfmt.FlagDataDescriptor
	}
	return flags
}

// payloadSize returns the number of bytes following an entry's local header:
// its compressed data plus, when flagged, the data descriptor.
func payloadSize(entry *Entry, flags uint16) uint64 {
	var n uint64
	if !entry.IsDir() {
		n = entry.CompressedSize
	}
	if flags&zipfmt.FlagDataDescriptor != 0 {
		n += zipfmt.DataDescriptorLen
	}
	return n
}

// copyEntries writes every entry's local header and payload to out.
//
// The input is consumed from offset 0 in central directory order. The only
// structural change made is padding appended to local extra fields, so the
// output position of every entry is its input position plus the padding
// inserted before it.
func (a *aligner) copyEntries(ctx context.Context, archive *Archive, out *zipfmt.OffsetWriter) ([]ziptype.WorkingEntry, *Result, error) {
	res := &Result{Layout: make([]AlignedEntry, 0, archive.Len())}
	working := make([]ziptype.WorkingEntry, 0, archive.Len())
	if archive.Len() == 0 {
		a.track.advance(StageCopying, weightCopy, "", "")
		return working, res, nil
	}
	step := float64(weightCopy) / float64(archive.Len())

	var inputOffset, totalPadding uint64
	header := make([]byte, 0, 512)
	buf := make([]byte, copyBufferSize)

	for entry, err := range archive.Entries() {
		if err != nil {
			return nil, nil, err
		}
		if err := ctx.Err(); err != nil {
			return nil, nil, cancelled(ctx)
		}

		localExtra, err := readLocalExtra(archive, inputOffset, entry)
		if err != nil {
			return nil, nil, err
		}

		flags := entryFlags(entry)
		inputHeaderSize := uint64(zipfmt.LocalHeaderLen + len(localExtra) + len(entry.Name)) //nolint:gosec // both lengths are bounded by 16 bits
		inputDataOffset, ok := sizing.AddUint64(inputOffset, inputHeaderSize)
		if !ok {
			return nil, nil, ErrSizeOverflow
		}

		padding := 0
		if entry.Stored() {
			padding = zipfmt.Padding(inputDataOffset+totalPadding, a.cfg.alignment)
		}

		h, err := localHeaderFor(entry, flags, localExtra, padding)
		if err != nil {
			return nil, nil, err
		}

		headerOffset := out.N
		if _, err := out.Offset32(); err != nil {
			return nil, nil, fmt.Errorf("entry %q: local header offset %d: %w: %w", entry.Name, headerOffset, ErrSizeOverflow, err)
		}
		header = h.Append(header[:0])
		if _, err := out.Write(header); err != nil {
			return nil, nil, fmt.Errorf("write local header %q: %w", entry.Name, err)
		}

		working = append(working, ziptype.WorkingEntry{
			Entry:        entry,
			HeaderOffset: headerOffset,
			Flags:        flags,
			Padding:      padding,
		})

		size := payloadSize(entry, flags)
		if err := copyPayload(archive, out, inputDataOffset, size, buf); err != nil {
			return nil, nil, fmt.Errorf("copy %q: %w", entry.Name, err)
		}

		inputOffset = inputDataOffset + size
		totalPadding += uint64(padding) //nolint:gosec // padding is non-negative

		res.Entries++
		if entry.Stored() {
			res.Stored++
			if padding > 0 {
				res.Padded++
				res.Padding += uint64(padding) //nolint:gosec // padding is non-negative
			}
		}
		layout := AlignedEntry{Name: entry.Name, InputOffset: inputDataOffset, Compressed: !entry.Stored(), Padding: padding}
		res.Layout = append(res.Layout, layout)
		a.log().Debug("entry copied", "name", entry.Name, "header_offset", headerOffset, "padding", padding)
		a.track.advance(StageCopying, step, entry.Name, layout.String())
	}

	return working, res, nil
}

// readLocalExtra reads the extra field of the local header at off and checks
// that the header belongs where the central directory order puts it.
func readLocalExtra(archive *Archive, off uint64, entry *Entry) ([]byte, error) {
	start, err := sizing.ToInt64(off, ErrSizeOverflow)
	if err != nil {
		return nil, err
	}
	raw, err := archive.ReadRaw(start, zipfmt.LocalHeaderLen)
	if err != nil {
		return nil, fmt.Errorf("entry %q: %w", entry.Name, err)
	}
	fixed, err := zipfmt.ParseLocalFixed(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: entry %q at offset %d: %w", ErrMalformed, entry.Name, off, err)
	}
	if int(fixed.NameLen) != len(entry.Name) {
		return nil, fmt.Errorf("%w: entry %q at offset %d: local name length %d differs from central directory", ErrMalformed, entry.Name, off, fixed.NameLen)
	}
	if fixed.ExtraLen == 0 {
		return nil, nil
	}
	extra, err := archive.ReadRaw(start+zipfmt.LocalHeaderLen+int64(fixed.NameLen), int(fixed.ExtraLen))
	if err != nil {
		return nil, fmt.Errorf("entry %q: %w", entry.Name, err)
	}
	return extra, nil
}

// localHeaderFor builds the output local header of entry. The padding is
// appended to the existing extra bytes without parsing them.
func localHeaderFor(entry *Entry, flags uint16, localExtra []byte, padding int) (*zipfmt.LocalHeader, error) {
	extra := make([]byte, len(localExtra)+padding)
	copy(extra, localExtra)
	if len(extra) > zipfmt.MaxUint16 {
		return nil, fmt.Errorf("entry %q: extra field of %d bytes: %w", entry.Name, len(extra), ErrSizeOverflow)
	}

	compressed, err := sizing.ToUint32(entry.CompressedSize, ErrSizeOverflow)
	if err != nil {
		return nil, fmt.Errorf("entry %q: compressed size: %w", entry.Name, err)
	}
	uncompressed, err := sizing.ToUint32(entry.UncompressedSize, ErrSizeOverflow)
	if err != nil {
		return nil, fmt.Errorf("entry %q: uncompressed size: %w", entry.Name, err)
	}

	date, tm := zipfmt.DOSDateTime(entry.Modified)
	return &zipfmt.LocalHeader{
		Flags:            flags,
		Method:           entry.Method,
		ModTime:          tm,
		ModDate:          date,
		CRC32:            entry.CRC32,
		CompressedSize:   compressed,
		UncompressedSize: uncompressed,
		Name:             entry.Name,
		Extra:            extra,
	}, nil
}

// copyPayload copies size bytes starting at input offset off to out.
func copyPayload(archive *Archive, out io.Writer, off, size uint64, buf []byte) error {
	if size == 0 {
		return nil
	}
	start, err := sizing.ToInt64(off, ErrSizeOverflow)
	if err != nil {
		return err
	}
	length, err := sizing.ToInt64(size, ErrSizeOverflow)
	if err != nil {
		return err
	}
	n, err := io.CopyBuffer(out, archive.section(start, length), buf)
	if err != nil {
		return err
	}
	if n != length {
		return fmt.Errorf("%w: payload at offset %d truncated after %d of %d bytes", ErrMalformed, off, n, length)
	}
	return nil
}

// writeCentralDirectory writes one central record per working entry, in
// order, followed by the end of central directory record.
func (a *aligner) writeCentralDirectory(ctx context.Context, archive *Archive, working []ziptype.WorkingEntry, out *zipfmt.OffsetWriter) error {
	start := out.N
	offset, err := out.Offset32()
	if err != nil {
		return fmt.Errorf("central directory offset %d: %w: %w", start, ErrSizeOverflow, err)
	}
	a.log().Debug("writing central directory", "offset", start)

	buf := make([]byte, 0, 512)
	for i := range working {
		if err := ctx.Err(); err != nil {
			return cancelled(ctx)
		}
		h, err := centralHeaderFor(&working[i])
		if err != nil {
			return err
		}
		buf = h.Append(buf[:0])
		if _, err := out.Write(buf); err != nil {
			return fmt.Errorf("write central directory record %q: %w", working[i].Entry.Name, err)
		}
	}
	if err := ctx.Err(); err != nil {
		return cancelled(ctx)
	}
	a.track.advance(StageWritingDirectory, weightDirectory/2, "", "")

	size, err := sizing.ToUint32(out.N-start, ErrSizeOverflow)
	if err != nil {
		return fmt.Errorf("central directory size %d: %w", out.N-start, err)
	}
	end := zipfmt.End{
		Entries: uint16(len(working)), //nolint:gosec // count checked against MaxUint16 before copying
		Size:    size,
		Offset:  offset,
		Comment: archive.Comment(),
	}
	if _, err := out.Write(end.Append(buf[:0])); err != nil {
		return fmt.Errorf("write end of central directory: %w", err)
	}
	a.track.advance(StageWritingDirectory, weightDirectory/2, "", "")
	return nil
}

// centralHeaderFor builds the central record of a working entry from the
// original entry's fields. The extra field is the central directory's own,
// so padding never appears in it.
func centralHeaderFor(w *ziptype.WorkingEntry) (*zipfmt.CentralHeader, error) {
	entry := w.Entry
	offset, err := sizing.ToUint32(w.HeaderOffset, ErrSizeOverflow)
	if err != nil {
		return nil, fmt.Errorf("entry %q: local header offset: %w", entry.Name, err)
	}
	// Sizes were validated when the local header was written.
	date, tm := zipfmt.DOSDateTime(entry.Modified)
	return &zipfmt.CentralHeader{
		Flags:            w.Flags,
		Method:           entry.Method,
		ModTime:          tm,
		ModDate:          date,
		CRC32:            entry.CRC32,
		CompressedSize:   uint32(entry.CompressedSize),   //nolint:gosec // validated in localHeaderFor
		UncompressedSize: uint32(entry.UncompressedSize), //nolint:gosec // validated in localHeaderFor
		Name:             entry.Name,
		Extra:            entry.Extra,
		Comment:          entry.Comment,
		Offset:           offset,
	}, nil
}
