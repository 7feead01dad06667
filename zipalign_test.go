package zipalign_test

import (
	"bytes"
	"context"
	"errors"
	nethttp "net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/zipalign"
	"github.com/meigma/zipalign/core/cache"
	"github.com/meigma/zipalign/core/testutil"
)

func writeAPK(t *testing.T) (dir, path string) {
	t.Helper()
	dir = t.TempDir()
	path = filepath.Join(dir, "app.apk")
	require.NoError(t, os.WriteFile(path, testutil.BuildSampleAPK(), 0o600))
	return dir, path
}

func serveAPK(t *testing.T, data []byte) (*httptest.Server, *atomic.Int64) {
	t.Helper()
	var requests atomic.Int64
	server := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		requests.Add(1)
		nethttp.ServeContent(w, r, "app.apk", time.Time{}, bytes.NewReader(data))
	}))
	t.Cleanup(server.Close)
	return server, &requests
}

func TestIsRemote(t *testing.T) {
	t.Parallel()

	assert.True(t, zipalign.IsRemote("https://example.com/app.apk"))
	assert.True(t, zipalign.IsRemote("http://localhost:8080/app.apk"))
	assert.False(t, zipalign.IsRemote("app.apk"))
	assert.False(t, zipalign.IsRemote("/tmp/http/app.apk"))
}

func TestAlignThenVerify(t *testing.T) {
	t.Parallel()

	dir, in := writeAPK(t)
	out := filepath.Join(dir, "aligned.apk")

	for _, k := range []int{4, 4096} {
		res, err := zipalign.AlignFile(context.Background(), in, out,
			zipalign.WithAlignment(k), zipalign.WithOverwrite(true))
		require.NoError(t, err)
		assert.Equal(t, len(testutil.SampleAPK()), res.Entries)

		report, err := zipalign.Verify(context.Background(), out, zipalign.WithAlignment(k), zipalign.WithStrict())
		require.NoError(t, err)
		assert.True(t, report.Aligned)
	}
}

func TestVerifyStrict(t *testing.T) {
	t.Parallel()

	_, in := writeAPK(t)

	// The sample's first stored entry is not 4096-aligned as built.
	report, err := zipalign.Verify(context.Background(), in, zipalign.WithAlignment(4096))
	require.NoError(t, err)
	require.False(t, report.Aligned)

	_, err = zipalign.Verify(context.Background(), in, zipalign.WithAlignment(4096), zipalign.WithStrict())
	require.ErrorIs(t, err, zipalign.ErrNotAligned)
}

func TestStartAlignEvents(t *testing.T) {
	t.Parallel()

	dir, in := writeAPK(t)
	task := zipalign.StartAlign(context.Background(), in, filepath.Join(dir, "out.apk"),
		zipalign.WithEventBuffer(256))

	var events []zipalign.ProgressEvent
	for ev := range task.Events() {
		events = append(events, ev)
	}
	res, err := task.Wait()
	require.NoError(t, err)
	require.NotNil(t, res)

	require.NotEmpty(t, events)
	var terminal int
	for _, ev := range events {
		if ev.Stage.Terminal() {
			terminal++
		}
	}
	assert.Equal(t, 1, terminal)
	assert.Equal(t, zipalign.StageDone, events[len(events)-1].Stage)
	assert.InDelta(t, 100, task.Percent(), 0.001)

	select {
	case <-task.Done():
	default:
		t.Fatal("Done not closed after Wait")
	}
}

func TestStartAlignCancel(t *testing.T) {
	t.Parallel()

	dir, in := writeAPK(t)
	out := filepath.Join(dir, "out.apk")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	task := zipalign.StartAlign(ctx, in, out)

	var last zipalign.ProgressEvent
	for ev := range task.Events() {
		last = ev
	}
	_, err := task.Wait()
	require.ErrorIs(t, err, zipalign.ErrCancelled)
	assert.Equal(t, zipalign.StageCancelled, last.Stage)

	_, err = os.Stat(out)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestTaskCancelMethod(t *testing.T) {
	t.Parallel()

	_, in := writeAPK(t)
	task := zipalign.StartVerify(context.Background(), in)
	task.Cancel()

	report, err := task.Wait()
	// The scan may finish before the cancellation is observed.
	if err != nil {
		require.ErrorIs(t, err, context.Canceled)
		assert.False(t, report.Aligned)
	}
}

func TestTaskTerminalEventSurvivesFullBuffer(t *testing.T) {
	t.Parallel()

	_, in := writeAPK(t)
	task := zipalign.StartVerify(context.Background(), in, zipalign.WithEventBuffer(1))

	_, err := task.Wait()
	require.NoError(t, err)

	var events []zipalign.ProgressEvent
	for ev := range task.Events() {
		events = append(events, ev)
	}
	require.Len(t, events, 1)
	assert.Equal(t, zipalign.StageDone, events[0].Stage)
}

func TestTaskFailureBeforeEngine(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, _ *nethttp.Request) {
		w.WriteHeader(nethttp.StatusNotFound)
	}))
	t.Cleanup(server.Close)

	task := zipalign.StartVerify(context.Background(), server.URL+"/missing.apk")
	var last zipalign.ProgressEvent
	for ev := range task.Events() {
		last = ev
	}
	report, err := task.Wait()
	require.Error(t, err)
	assert.False(t, report.Aligned)
	assert.Equal(t, zipalign.StageFailed, last.Stage)
	assert.NotEmpty(t, last.Detail)
}

func TestVerifyRemote(t *testing.T) {
	t.Parallel()

	data := testutil.BuildSampleAPK()
	server, requests := serveAPK(t, data)

	shared := cache.NewBlockCache()
	remote, err := zipalign.Verify(context.Background(), server.URL+"/app.apk", zipalign.WithBlockCache(shared))
	require.NoError(t, err)

	_, path := writeAPK(t)
	local, err := zipalign.Verify(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, local, remote)

	// The whole sample fits in one block: the range probe and one fetch.
	assert.Equal(t, int64(2), requests.Load())
	_, misses := shared.Stats()
	assert.Equal(t, int64(1), misses)
}

func TestAlignRemote(t *testing.T) {
	t.Parallel()

	server, _ := serveAPK(t, testutil.BuildSampleAPK())
	out := filepath.Join(t.TempDir(), "out.apk")

	_, err := zipalign.AlignFile(context.Background(), server.URL+"/app.apk", out, zipalign.WithBlockCache(nil))
	require.NoError(t, err)

	report, err := zipalign.Verify(context.Background(), out, zipalign.WithStrict())
	require.NoError(t, err)
	assert.True(t, report.Aligned)
}

// serveStallingAPK answers the one-byte size request normally but holds every
// later read open until the client goes away, signalling stalled when one
// arrives.
func serveStallingAPK(t *testing.T, data []byte) (*httptest.Server, <-chan struct{}) {
	t.Helper()
	stalled := make(chan struct{}, 1)
	server := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if r.Header.Get("Range") == "bytes=0-0" {
			nethttp.ServeContent(w, r, "app.apk", time.Time{}, bytes.NewReader(data))
			return
		}
		select {
		case stalled <- struct{}{}:
		default:
		}
		select {
		case <-r.Context().Done():
		case <-time.After(10 * time.Second):
		}
	}))
	t.Cleanup(server.Close)
	return server, stalled
}

func TestStartAlignRemoteCancelledMidRead(t *testing.T) {
	t.Parallel()

	server, stalled := serveStallingAPK(t, testutil.BuildSampleAPK())
	dir := t.TempDir()
	out := filepath.Join(dir, "out.apk")

	task := zipalign.StartAlign(context.Background(), server.URL+"/app.apk", out, zipalign.WithBlockCache(nil))
	select {
	case <-stalled:
	case <-time.After(5 * time.Second):
		t.Fatal("no read reached the server")
	}
	task.Cancel()

	var last zipalign.ProgressEvent
	for ev := range task.Events() {
		last = ev
	}
	_, err := task.Wait()
	require.ErrorIs(t, err, zipalign.ErrCancelled)
	assert.Equal(t, zipalign.StageCancelled, last.Stage)

	_, err = os.Stat(out)
	assert.True(t, errors.Is(err, os.ErrNotExist))
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "temporary output left behind")
}

func TestStartVerifyRemoteCancelledMidRead(t *testing.T) {
	t.Parallel()

	server, stalled := serveStallingAPK(t, testutil.BuildSampleAPK())

	task := zipalign.StartVerify(context.Background(), server.URL+"/app.apk", zipalign.WithBlockCache(nil))
	select {
	case <-stalled:
	case <-time.After(5 * time.Second):
		t.Fatal("no read reached the server")
	}
	task.Cancel()

	var last zipalign.ProgressEvent
	for ev := range task.Events() {
		last = ev
	}
	report, err := task.Wait()
	require.ErrorIs(t, err, zipalign.ErrCancelled)
	assert.Equal(t, zipalign.StageCancelled, last.Stage)
	assert.False(t, report.Aligned)
}
