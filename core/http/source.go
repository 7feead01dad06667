// Package http reads remote archives through HTTP range requests, so an APK
// can be verified or aligned without downloading it first.
package http //nolint:revive // intentional naming for domain clarity

import (
	"context"
	"errors"
	"fmt"
	"io"
	nethttp "net/http"
	"strconv"
	"strings"
)

var (
	// ErrRangeUnsupported is returned when the server ignores range requests.
	ErrRangeUnsupported = errors.New("zipalign: server does not support range requests")

	// ErrRemoteChanged is returned when the remote archive no longer matches
	// the version probed by NewSource.
	ErrRemoteChanged = errors.New("zipalign: remote archive changed")
)

// version identifies one revision of the remote content.
type version struct {
	size         int64
	etag         string
	lastModified string
}

// strongETag reports whether etag can be used with If-Match, which
// requires strong comparison.
func (v version) strongETag() bool {
	return v.etag != "" && !strings.HasPrefix(v.etag, "W/")
}

// check compares a partial response against v.
func (v version) check(resp *nethttp.Response, total int64) error {
	if total != v.size {
		return fmt.Errorf("%w: size %d, was %d", ErrRemoteChanged, total, v.size)
	}
	if etag := resp.Header.Get("ETag"); etag != "" && v.etag != "" && etag != v.etag {
		return fmt.Errorf("%w: etag %s, was %s", ErrRemoteChanged, etag, v.etag)
	}
	return nil
}

// Source implements random access reads via HTTP range requests.
// It satisfies zipalign.ByteSource (io.ReaderAt plus Size).
//
// Every read is checked against the version seen when the Source was
// created; a mismatch fails with ErrRemoteChanged rather than mixing bytes
// from two revisions.
type Source struct {
	ctx         context.Context //nolint:containedctx // io.ReaderAt has no context parameter
	url         string
	client      *nethttp.Client
	headers     nethttp.Header
	conditional bool
	remote      version
}

// Option configures a Source.
type Option func(*Source)

// WithClient sets the HTTP client used for requests.
func WithClient(client *nethttp.Client) Option {
	return func(s *Source) {
		s.client = client
	}
}

// WithHeaders sets additional headers on each request.
func WithHeaders(headers nethttp.Header) Option {
	return func(s *Source) {
		if headers == nil {
			return
		}
		s.headers = headers.Clone()
	}
}

// WithHeader sets a single header on each request.
func WithHeader(key, value string) Option {
	return func(s *Source) {
		if s.headers == nil {
			s.headers = make(nethttp.Header)
		}
		s.headers.Set(key, value)
	}
}

// WithConditionalHeaders sends If-Match (strong ETags) or
// If-Unmodified-Since with every range read, so the server itself rejects
// reads of a replaced file.
func WithConditionalHeaders() Option {
	return func(s *Source) {
		s.conditional = true
	}
}

// NewSource probes url with a one-byte range request and returns a Source
// for it. ctx bounds the probe and every later read made through the Source.
func NewSource(ctx context.Context, url string, opts ...Option) (*Source, error) {
	s := &Source{
		ctx:    ctx,
		url:    url,
		client: nethttp.DefaultClient,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.client == nil {
		s.client = nethttp.DefaultClient
	}

	remote, err := s.probe()
	if err != nil {
		return nil, fmt.Errorf("probe %s: %w", url, err)
	}
	s.remote = remote
	return s, nil
}

// Size returns the total size of the remote content.
func (s *Source) Size() int64 {
	return s.remote.size
}

// URL returns the address the Source reads from.
func (s *Source) URL() string {
	return s.url
}

// ReadAt reads len(p) bytes at off with one range request. It implements
// [io.ReaderAt]: reads that run past the end return the available bytes
// and io.EOF.
func (s *Source) ReadAt(p []byte, off int64) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if off < 0 {
		return 0, fmt.Errorf("read at %d: negative offset", off)
	}
	if off >= s.remote.size {
		return 0, io.EOF
	}
	want := min(int64(len(p)), s.remote.size-off)

	resp, err := s.get(off, off+want-1, s.conditional)
	if err != nil {
		return 0, err
	}
	defer drain(resp)

	switch resp.StatusCode {
	case nethttp.StatusPartialContent:
	case nethttp.StatusPreconditionFailed:
		return 0, fmt.Errorf("read at %d: %w", off, ErrRemoteChanged)
	case nethttp.StatusRequestedRangeNotSatisfiable:
		return 0, fmt.Errorf("read at %d: %w: range not satisfiable", off, ErrRemoteChanged)
	case nethttp.StatusOK:
		return 0, ErrRangeUnsupported
	default:
		return 0, fmt.Errorf("read at %d: %s", off, resp.Status)
	}

	start, _, total, err := parseContentRange(resp.Header.Get("Content-Range"))
	if err != nil {
		return 0, err
	}
	if err := s.remote.check(resp, total); err != nil {
		return 0, fmt.Errorf("read at %d: %w", off, err)
	}
	if start != off {
		return 0, fmt.Errorf("read at %d: server returned range starting at %d", off, start)
	}

	n, err := io.ReadFull(resp.Body, p[:want])
	if err != nil {
		return n, fmt.Errorf("read at %d: %w", off, err)
	}
	if int(want) < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// probe requests the first byte to learn the size and validators of the
// remote content and to confirm range support.
func (s *Source) probe() (version, error) {
	resp, err := s.get(0, 0, false)
	if err != nil {
		return version{}, err
	}
	defer drain(resp)

	switch resp.StatusCode {
	case nethttp.StatusPartialContent:
	case nethttp.StatusOK:
		return version{}, ErrRangeUnsupported
	default:
		return version{}, fmt.Errorf("range probe failed: %s", resp.Status)
	}

	_, _, total, err := parseContentRange(resp.Header.Get("Content-Range"))
	if err != nil {
		return version{}, err
	}
	return version{
		size:         total,
		etag:         resp.Header.Get("ETag"),
		lastModified: resp.Header.Get("Last-Modified"),
	}, nil
}

// get issues a GET for the inclusive byte range [off, end].
func (s *Source) get(off, end int64, conditional bool) (*nethttp.Response, error) {
	req, err := nethttp.NewRequestWithContext(s.ctx, nethttp.MethodGet, s.url, nethttp.NoBody)
	if err != nil {
		return nil, err
	}
	for key, values := range s.headers {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}
	if req.Header.Get("Accept-Encoding") == "" {
		req.Header.Set("Accept-Encoding", "identity")
	}
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", "zipalign")
	}
	if conditional {
		switch {
		case s.remote.strongETag():
			req.Header.Set("If-Match", s.remote.etag)
		case s.remote.lastModified != "":
			req.Header.Set("If-Unmodified-Since", s.remote.lastModified)
		}
	}
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", off, end))
	return s.client.Do(req)
}

// drain discards the rest of the body so the connection can be reused.
func drain(resp *nethttp.Response) {
	_, _ = io.Copy(io.Discard, resp.Body) //nolint:errcheck // best-effort drain for connection reuse
	_ = resp.Body.Close()
}

// parseContentRange parses a "bytes start-end/size" header value.
func parseContentRange(value string) (start, end, size int64, err error) {
	bad := fmt.Errorf("invalid Content-Range %q", value)
	rest, ok := strings.CutPrefix(strings.TrimSpace(value), "bytes ")
	if !ok {
		return 0, 0, 0, bad
	}
	span, total, ok := strings.Cut(rest, "/")
	if !ok || total == "*" {
		return 0, 0, 0, bad
	}
	first, last, ok := strings.Cut(span, "-")
	if !ok {
		return 0, 0, 0, bad
	}
	if start, err = strconv.ParseInt(first, 10, 64); err != nil {
		return 0, 0, 0, bad
	}
	if end, err = strconv.ParseInt(last, 10, 64); err != nil {
		return 0, 0, 0, bad
	}
	if size, err = strconv.ParseInt(total, 10, 64); err != nil || start < 0 || end < start || size <= end {
		return 0, 0, 0, bad
	}
	return start, end, size, nil
}
