// Command zipalign aligns the stored entries of ZIP archives such as
// Android APKs, or checks that archives are already aligned.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"sync"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/meigma/zipalign"
)

// Exit codes.
const (
	exitOK          = 0
	exitFailure     = 1
	exitInterrupted = 130
)

type config struct {
	check     bool
	overwrite bool
	verbose   bool
	quiet     bool
	jobs      int
	alignment int
	inputs    []string
	output    string
}

func usage() {
	out := flag.CommandLine.Output()
	fmt.Fprintln(out, "Zip alignment utility")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Usage: zipalign [-f] [-v] [-q] <align> infile.apk outfile.apk")
	fmt.Fprintln(out, "       zipalign -c [-v] [-j N] <align> infile.apk [more.apk|https://...]...")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "  <align>: alignment in bytes, e.g. '4' provides 32-bit alignment")
	flag.PrintDefaults()
}

func main() {
	log.SetFlags(0)
	flag.Usage = usage
	cfg := parseFlags()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	var code int
	if cfg.check {
		code = runCheck(ctx, cfg, os.Stdout)
	} else {
		code = runAlign(ctx, cfg, os.Stdout)
	}
	stop()
	os.Exit(code)
}

func parseFlags() config {
	var cfg config
	flag.BoolVar(&cfg.check, "c", false, "check alignment only (does not modify file)")
	flag.BoolVar(&cfg.overwrite, "f", false, "overwrite existing outfile.apk")
	flag.BoolVar(&cfg.verbose, "v", false, "verbose output: one line per entry and debug logs")
	flag.BoolVar(&cfg.quiet, "q", false, "do not report progress")
	flag.IntVar(&cfg.jobs, "j", runtime.NumCPU(), "number of archives checked in parallel")
	flag.Parse()

	args := flag.Args()
	if len(args) < 2 {
		flag.Usage()
		os.Exit(exitFailure)
	}
	alignment, err := strconv.Atoi(args[0])
	if err != nil || alignment < 1 {
		log.Fatalf("invalid alignment: %s", args[0])
	}
	cfg.alignment = alignment

	if cfg.check {
		cfg.inputs = args[1:]
		return cfg
	}
	if len(args) != 3 {
		flag.Usage()
		os.Exit(exitFailure)
	}
	cfg.inputs = args[1:2]
	cfg.output = args[2]
	return cfg
}

func (cfg config) options() []zipalign.Option {
	opts := []zipalign.Option{
		zipalign.WithAlignment(cfg.alignment),
		zipalign.WithOverwrite(cfg.overwrite),
	}
	if cfg.verbose {
		logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
		opts = append(opts, zipalign.WithLogger(logger))
	}
	return opts
}

// exitCode maps a task error to the process exit status.
func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, zipalign.ErrCancelled), errors.Is(err, context.Canceled):
		return exitInterrupted
	default:
		return exitFailure
	}
}

// runAlign aligns one archive, then verifies the result.
func runAlign(ctx context.Context, cfg config, out io.Writer) int {
	input := cfg.inputs[0]
	task := zipalign.StartAlign(ctx, input, cfg.output, cfg.options()...)
	progress := newProgressPrinter(os.Stderr, cfg.quiet)
	var last zipalign.ProgressEvent
	for ev := range task.Events() {
		progress.report(ev)
		last = ev
	}
	res, err := task.Wait()
	if err != nil {
		log.Printf("Unable to align %s: %s", input, last.Short)
		if cfg.verbose && last.Detail != "" {
			log.Print(last.Detail)
		}
		return exitCode(err)
	}
	if cfg.verbose {
		for _, e := range res.Layout {
			fmt.Fprintln(out, e)
		}
	}
	fmt.Fprintf(out, "Aligned %d entries (%d stored, %d padded, %s of padding) into %s\n",
		res.Entries, res.Stored, res.Padded, formatSize(res.Padding), cfg.output)
	fmt.Fprintf(out, "%s  %s\n", res.Digest, formatSize(res.Size))

	check := cfg
	check.inputs = []string{cfg.output}
	check.quiet = true
	return runCheck(ctx, check, out)
}

// checkResult is the captured output of one verification.
type checkResult struct {
	lines []string
	code  int
}

// runCheck verifies every input, up to cfg.jobs at a time, and prints each
// archive's report as one uninterrupted block in argument order.
func runCheck(ctx context.Context, cfg config, out io.Writer) int {
	results := make([]checkResult, len(cfg.inputs))
	var mu sync.Mutex // serializes progress output
	progress := newProgressPrinter(os.Stderr, cfg.quiet || len(cfg.inputs) > 1)

	var g errgroup.Group
	g.SetLimit(max(cfg.jobs, 1))
	for i, input := range cfg.inputs {
		g.Go(func() error {
			results[i] = checkOne(ctx, cfg, input, func(ev zipalign.ProgressEvent) {
				mu.Lock()
				defer mu.Unlock()
				progress.report(ev)
			})
			return nil
		})
	}
	_ = g.Wait() //nolint:errcheck // workers record failures in results

	code := exitOK
	for _, r := range results {
		for _, line := range r.lines {
			fmt.Fprintln(out, line)
		}
		code = max(code, r.code)
	}
	return code
}

// entryLine formats one verified entry the way the Android SDK tool does.
func entryLine(e zipalign.EntryReport) string {
	status := "OK"
	switch {
	case e.Compressed:
		status = "OK - compressed"
	case !e.OK:
		status = "BAD - " + strconv.Itoa(e.Remainder)
	}
	return fmt.Sprintf("%15d  %s  (%s)", e.DataOffset, e.Name, status)
}

func checkOne(ctx context.Context, cfg config, input string, onEvent func(zipalign.ProgressEvent)) checkResult {
	lines := []string{fmt.Sprintf("Verifying alignment of %s (%d)...", input, cfg.alignment)}
	task := zipalign.StartVerify(ctx, input, cfg.options()...)
	for ev := range task.Events() {
		onEvent(ev)
	}
	report, err := task.Wait()
	if report != nil {
		for _, e := range report.Entries {
			if cfg.verbose || !e.OK {
				lines = append(lines, entryLine(e))
			}
		}
	}
	switch {
	case err != nil:
		lines = append(lines, "Verification FAILED: "+err.Error())
		return checkResult{lines: lines, code: exitCode(err)}
	case !report.Aligned:
		lines = append(lines, "Verification FAILED")
		return checkResult{lines: lines, code: exitFailure}
	default:
		lines = append(lines, "Verification succeeded")
		return checkResult{lines: lines, code: exitOK}
	}
}
