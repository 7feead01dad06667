package zipalign

import (
	"context"
	"fmt"
	"strings"

	aligncore "github.com/meigma/zipalign/core"
	"github.com/meigma/zipalign/core/cache"
	alignhttp "github.com/meigma/zipalign/core/http"
)

// IsRemote reports whether input names an archive served over HTTP(S)
// rather than a local path.
func IsRemote(input string) bool {
	return strings.HasPrefix(input, "http://") || strings.HasPrefix(input, "https://")
}

// StartAlign aligns input into outputPath in the background. input is a
// local path or an http(s) URL; remote archives are read with range
// requests through a block cache.
func StartAlign(ctx context.Context, input, outputPath string, opts ...Option) *Task[*Result] {
	cfg := newConfig(opts)
	return startTask(ctx, cfg.eventBuffer, func(ctx context.Context, emit aligncore.ProgressFunc) (*Result, error) {
		coreOpts := append(cfg.coreOpts, aligncore.WithProgress(emit)) //nolint:gocritic // cfg.coreOpts is not reused
		if !IsRemote(input) {
			return aligncore.AlignFile(ctx, input, outputPath, coreOpts...)
		}
		src, err := cfg.openRemote(ctx, input)
		if err != nil {
			return nil, err
		}
		return aligncore.AlignSource(ctx, src, outputPath, coreOpts...)
	})
}

// StartVerify checks input in the background. input is a local path or an
// http(s) URL. With WithStrict, a misaligned archive ends the task with
// ErrNotAligned.
func StartVerify(ctx context.Context, input string, opts ...Option) *Task[*Report] {
	cfg := newConfig(opts)
	return startTask(ctx, cfg.eventBuffer, func(ctx context.Context, emit aligncore.ProgressFunc) (*Report, error) {
		report, err := cfg.verify(ctx, input, emit)
		if err == nil && cfg.strict && !report.Aligned {
			bad := report.Bad()
			err = fmt.Errorf("%w: %d of %d entries misaligned, first %q", ErrNotAligned, len(bad), len(report.Entries), bad[0].Name)
		}
		return report, err
	})
}

func (c *config) verify(ctx context.Context, input string, emit aligncore.ProgressFunc) (*Report, error) {
	coreOpts := append(c.coreOpts, aligncore.WithProgress(emit)) //nolint:gocritic // c.coreOpts is not reused
	if !IsRemote(input) {
		return aligncore.VerifyFile(ctx, input, coreOpts...)
	}
	src, err := c.openRemote(ctx, input)
	if err != nil {
		return &Report{}, err
	}
	return aligncore.Verify(ctx, src, coreOpts...)
}

// openRemote probes url and wraps it in the configured block cache.
func (c *config) openRemote(ctx context.Context, url string) (aligncore.ByteSource, error) {
	src, err := alignhttp.NewSource(ctx, url, c.httpOpts...)
	if err != nil {
		return nil, err
	}
	c.log().Debug("remote archive", "url", url, "size", src.Size())
	if c.noCache {
		return src, nil
	}
	bc := c.blockCache
	if bc == nil {
		bc = cache.NewBlockCache()
	}
	return bc.Wrap(src)
}

// AlignFile aligns input into outputPath and waits for the result.
// See StartAlign.
func AlignFile(ctx context.Context, input, outputPath string, opts ...Option) (*Result, error) {
	return StartAlign(ctx, input, outputPath, opts...).Wait()
}

// Verify checks input and waits for the report. See StartVerify.
func Verify(ctx context.Context, input string, opts ...Option) (*Report, error) {
	return StartVerify(ctx, input, opts...).Wait()
}
