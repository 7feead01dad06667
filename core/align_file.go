package zipalign

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// AlignFile aligns the archive at inputPath and writes the result to
// outputPath.
//
// The output is streamed to a temporary file in the destination directory
// and renamed into place once complete. On any failure, including
// cancellation, the temporary file is removed and so is any file already at
// outputPath, unless that file is the input itself. An existing output is
// only replaced when WithOverwrite(true) is given.
func AlignFile(ctx context.Context, inputPath, outputPath string, opts ...Option) (*Result, error) {
	a := newAligner(opts)
	res, err := a.alignFile(ctx, inputPath, outputPath)
	err = settle(ctx, err)
	a.track.finish(err, "alignment done")
	return res, err
}

// AlignSource aligns the archive held by src and writes the result to
// outputPath, with the same output handling as AlignFile.
func AlignSource(ctx context.Context, src ByteSource, outputPath string, opts ...Option) (*Result, error) {
	a := newAligner(opts)
	res, err := a.alignSource(ctx, src, outputPath)
	err = settle(ctx, err)
	a.track.finish(err, "alignment done")
	return res, err
}

func (a *aligner) alignFile(ctx context.Context, inputPath, outputPath string) (res *Result, err error) {
	if err := a.cfg.validate(); err != nil {
		return nil, err
	}

	a.track.message(StageOpening, "opening "+inputPath)
	in, err := OpenFile(inputPath)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := in.Close(); cerr != nil {
			err = errors.Join(err, fmt.Errorf("close input: %w", cerr))
			res = nil
		}
	}()

	inInfo, err := in.file.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat input: %w", err)
	}
	outputIsInput, err := a.checkOutput(inInfo, outputPath)
	if err != nil {
		return nil, err
	}
	a.track.advance(StageOpening, weightOpen, "", "")

	// The input is closed before the rename so a close failure still
	// leaves no output behind.
	release := func() error {
		if err := in.Close(); err != nil {
			return fmt.Errorf("close input: %w", err)
		}
		return nil
	}
	res, err = a.writeOutput(ctx, in.Archive, outputPath, outputIsInput, release)
	if err != nil {
		return nil, err
	}
	a.log().Info("archive aligned", "input", inputPath, "output", outputPath, "size", res.Size)
	return res, nil
}

func (a *aligner) alignSource(ctx context.Context, src ByteSource, outputPath string) (*Result, error) {
	if err := a.cfg.validate(); err != nil {
		return nil, err
	}
	archive, err := OpenArchive(src)
	if err != nil {
		return nil, err
	}
	if _, err := a.checkOutput(nil, outputPath); err != nil {
		return nil, err
	}
	a.track.advance(StageOpening, weightOpen, "", "")

	res, err := a.writeOutput(ctx, archive, outputPath, false, nil)
	if err != nil {
		return nil, err
	}
	a.log().Info("archive aligned", "output", outputPath, "size", res.Size)
	return res, nil
}

// writeOutput aligns archive into a temporary file next to outputPath and
// renames it into place. release, if set, runs after the archive has been
// fully read and before the rename. Any failure removes the temporary file
// and, unless keepOutput is set, the file at outputPath.
func (a *aligner) writeOutput(ctx context.Context, archive *Archive, outputPath string, keepOutput bool, release func() error) (*Result, error) {
	tmp, err := os.CreateTemp(filepath.Dir(outputPath), ".zipalign-*")
	if err != nil {
		return nil, fmt.Errorf("create output: %w", err)
	}
	tmpPath := tmp.Name()
	a.log().Debug("writing temporary output", "path", tmpPath)

	cleanup := func() {
		os.Remove(tmpPath)
		if !keepOutput {
			os.Remove(outputPath)
		}
	}

	res, err := a.align(ctx, archive, tmp)
	if err != nil {
		tmp.Close()
		cleanup()
		return nil, err
	}

	a.track.message(StageClosing, "closing "+outputPath)
	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		cleanup()
		return nil, fmt.Errorf("set output mode: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return nil, fmt.Errorf("close output: %w", err)
	}
	if release != nil {
		if err := release(); err != nil {
			cleanup()
			return nil, err
		}
	}
	if err := os.Rename(tmpPath, outputPath); err != nil {
		cleanup()
		return nil, fmt.Errorf("rename output: %w", err)
	}
	a.track.advance(StageClosing, weightClose, "", "")
	return res, nil
}

// checkOutput refuses to replace an existing output unless overwriting is
// enabled, and reports whether outputPath names the input file described by
// inInfo, which may be nil.
func (a *aligner) checkOutput(inInfo fs.FileInfo, outputPath string) (bool, error) {
	outInfo, err := os.Stat(outputPath)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("stat output: %w", err)
	}
	if outInfo.IsDir() {
		return false, fmt.Errorf("output %s: is a directory", outputPath)
	}
	if !a.cfg.overwrite {
		return false, fmt.Errorf("output %s: %w", outputPath, fs.ErrExist)
	}
	return inInfo != nil && os.SameFile(inInfo, outInfo), nil
}
