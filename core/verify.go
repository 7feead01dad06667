package zipalign

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/meigma/zipalign/core/internal/sizing"
	"github.com/meigma/zipalign/core/internal/zipfmt"
)

// EntryReport is the verification outcome for one entry.
type EntryReport struct {
	// Name is the entry name.
	Name string

	// DataOffset is where the entry's payload starts in the archive.
	DataOffset uint64

	// Compressed is true for entries that are not stored. Compressed
	// entries are never checked and are always OK.
	Compressed bool

	// OK reports whether the entry satisfies the alignment.
	OK bool

	// Remainder is DataOffset modulo the alignment for stored entries.
	Remainder int
}

// Report is the outcome of a verification run.
type Report struct {
	// Alignment is the boundary the archive was checked against.
	Alignment int

	// Entries holds one report per scanned entry, in central directory order.
	// A cancelled or failed run holds the entries scanned so far.
	Entries []EntryReport

	// Aligned is true when every entry was scanned and every stored entry
	// is aligned.
	Aligned bool
}

// Bad returns the reports of the misaligned entries.
func (r *Report) Bad() []EntryReport {
	var bad []EntryReport
	for _, e := range r.Entries {
		if !e.OK {
			bad = append(bad, e)
		}
	}
	return bad
}

// Verify checks that every stored entry of the archive held by src starts
// its payload on the configured alignment.
//
// Payload offsets are recomputed from the raw extra length of each local
// header, which may differ from the central directory's copy. A misaligned
// entry does not stop the scan; it only clears Report.Aligned. A returned
// error means the scan did not complete: the report is still returned with
// Aligned false.
func Verify(ctx context.Context, src ByteSource, opts ...Option) (*Report, error) {
	v := newVerifier(opts)
	report, err := v.verifyStream(ctx, src)
	err = settle(ctx, err)
	if err == nil {
		v.track.advance(StageClosing, weightClose, "", "")
	}
	v.finish(report, err)
	return report, err
}

// VerifyFile checks the archive at path. See Verify.
func VerifyFile(ctx context.Context, path string, opts ...Option) (*Report, error) {
	v := newVerifier(opts)
	report, err := v.verifyFile(ctx, path)
	err = settle(ctx, err)
	v.finish(report, err)
	return report, err
}

type verifier struct {
	cfg   config
	track *tracker
}

func newVerifier(opts []Option) *verifier {
	cfg := newConfig(opts)
	return &verifier{cfg: cfg, track: newTracker(cfg.progress)}
}

func (v *verifier) finish(report *Report, err error) {
	msg := "verification succeeded"
	if !report.Aligned {
		msg = "verification FAILED"
	}
	v.track.finish(err, msg)
}

func (v *verifier) verifyFile(ctx context.Context, path string) (*Report, error) {
	report := &Report{Alignment: v.cfg.alignment}
	if err := v.cfg.validate(); err != nil {
		return report, err
	}
	v.track.message(StageOpening, "opening "+path)
	f, err := OpenFile(path)
	if err != nil {
		return report, err
	}
	v.track.advance(StageOpening, weightOpen, "", "")

	err = v.scan(ctx, f.Archive, report)
	if cerr := f.Close(); cerr != nil && err == nil {
		report.Aligned = false
		err = fmt.Errorf("close input: %w", cerr)
	}
	if err == nil {
		v.track.advance(StageClosing, weightClose, "", "")
	}
	return report, err
}

func (v *verifier) verifyStream(ctx context.Context, src ByteSource) (*Report, error) {
	report := &Report{Alignment: v.cfg.alignment}
	if err := v.cfg.validate(); err != nil {
		return report, err
	}
	archive, err := OpenArchive(src)
	if err != nil {
		return report, err
	}
	v.track.advance(StageOpening, weightOpen, "", "")
	return report, v.scan(ctx, archive, report)
}

// scan walks the local headers in central directory order, filling report.
func (v *verifier) scan(ctx context.Context, archive *Archive, report *Report) error {
	k := v.cfg.alignment
	v.cfg.log().Info("verifying archive", "entries", archive.Len(), "alignment", k)

	if archive.Len() == 0 {
		v.track.advance(StageScanning, weightScan, "", "")
		report.Aligned = true
		return nil
	}
	step := float64(weightScan) / float64(archive.Len())

	report.Entries = make([]EntryReport, 0, archive.Len())
	aligned := true
	var dataOffset uint64

	for entry, err := range archive.Entries() {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return cancelled(ctx)
		}

		extraLen, err := localExtraLen(archive, dataOffset)
		if err != nil {
			return fmt.Errorf("entry %q: %w", entry.Name, err)
		}
		headerSize := uint64(zipfmt.LocalHeaderLen + int(extraLen) + len(entry.Name)) //nolint:gosec // bounded by 16-bit lengths
		payloadOffset, ok := sizing.AddUint64(dataOffset, headerSize)
		if !ok {
			return ErrSizeOverflow
		}

		er := EntryReport{Name: entry.Name, DataOffset: payloadOffset, Compressed: !entry.Stored(), OK: true}
		status := "OK - compressed"
		if entry.Stored() {
			er.Remainder = int(payloadOffset % uint64(k)) //nolint:gosec // alignment validated positive
			er.OK = er.Remainder == 0
			status = "OK"
			if !er.OK {
				aligned = false
				status = fmt.Sprintf("BAD - %d", er.Remainder)
			}
		}
		report.Entries = append(report.Entries, er)
		v.track.advance(StageScanning, step, entry.Name, fmt.Sprintf("%15d  %s  (%s)", payloadOffset, entry.Name, status))

		next, ok := sizing.AddUint64(payloadOffset, payloadSize(entry, entryFlags(entry)))
		if !ok {
			return ErrSizeOverflow
		}
		dataOffset = next
	}

	report.Aligned = aligned
	v.cfg.log().Debug("verification finished", "aligned", aligned, "entries", len(report.Entries))
	return nil
}

// localExtraLen reads the extra length field of the local header at off.
func localExtraLen(archive *Archive, off uint64) (uint16, error) {
	start, err := sizing.ToInt64(off+zipfmt.ExtraLenOffset, ErrSizeOverflow)
	if err != nil {
		return 0, err
	}
	b, err := archive.ReadRaw(start, 2)
	if err != nil {
		return 0, fmt.Errorf("read extra field length: %w", err)
	}
	return binary.LittleEndian.Uint16(b), nil
}
