// Package testutil provides in-memory byte sources and archive builders for
// tests.
package testutil

import (
	"bytes"
	"hash/crc32"
	"io"
	"sync/atomic"
	"time"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zip"

	"github.com/meigma/zipalign/core/internal/zipfmt"
)

// MockByteSource implements a simple in-memory byte source for tests.
type MockByteSource struct {
	data  []byte
	reads atomic.Int64
}

// NewMockByteSource returns a byte source backed by the provided data.
func NewMockByteSource(data []byte) *MockByteSource {
	return &MockByteSource{data: data}
}

// ReadAt implements io.ReaderAt semantics over the backing slice.
func (m *MockByteSource) ReadAt(p []byte, off int64) (int, error) {
	m.reads.Add(1)
	if off >= int64(len(m.data)) {
		return 0, io.EOF
	}
	n := copy(p, m.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// Size returns the total size of the backing data.
func (m *MockByteSource) Size() int64 {
	return int64(len(m.data))
}

// Bytes returns the backing slice for tests that need to mutate data.
func (m *MockByteSource) Bytes() []byte {
	return m.data
}

// Reads returns the number of ReadAt calls served so far.
func (m *MockByteSource) Reads() int64 {
	return m.reads.Load()
}

// FixtureTime is the modification time given to fixture entries.
var FixtureTime = time.Date(2024, time.March, 14, 15, 9, 26, 0, time.UTC)

// File describes one entry of a fixture archive.
type File struct {
	Name    string
	Data    []byte
	Stored  bool
	Extra   []byte
	Comment string
}

// Deflate compresses data with raw DEFLATE.
func Deflate(data []byte) []byte {
	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, flate.BestCompression)
	if err != nil {
		panic(err)
	}
	if _, err := w.Write(data); err != nil {
		panic(err)
	}
	if err := w.Close(); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// BuildArchive writes files to a new archive the way APK tooling does:
// deflated entries are followed by a data descriptor, stored entries are
// not. Directory entries (names ending in "/") must be stored.
func BuildArchive(files []File, comment string) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	date, tm := zipfmt.DOSDateTime(FixtureTime)

	for _, f := range files {
		fh := &zip.FileHeader{
			Name:               f.Name,
			Comment:            f.Comment,
			Extra:              f.Extra,
			CRC32:              crc32.ChecksumIEEE(f.Data),
			UncompressedSize64: uint64(len(f.Data)),
			ModifiedDate:       date,
			ModifiedTime:       tm,
		}
		payload := f.Data
		if f.Stored {
			fh.Method = zip.Store
		} else {
			fh.Method = zip.Deflate
			fh.Flags = zipfmt.FlagDataDescriptor
			payload = Deflate(f.Data)
		}
		fh.CompressedSize64 = uint64(len(payload))

		w, err := zw.CreateRaw(fh)
		if err != nil {
			return nil, err
		}
		if _, err := w.Write(payload); err != nil {
			return nil, err
		}
	}
	if err := zw.SetComment(comment); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// SampleAPK returns the files of a small APK-shaped archive mixing stored,
// deflated, directory and extra-carrying entries.
func SampleAPK() []File {
	return []File{
		{Name: "AndroidManifest.xml", Data: bytes.Repeat([]byte("<manifest/>"), 40)},
		{Name: "resources.arsc", Data: []byte("\x02\x00\x0c\x00arsc table"), Stored: true},
		{Name: "res/", Stored: true},
		{Name: "res/raw/a.ogg", Data: []byte("OggS....."), Stored: true, Extra: []byte{0xfe, 0xca, 0x00, 0x00}},
		{Name: "classes.dex", Data: bytes.Repeat([]byte("dex\n035\x00"), 128), Comment: "dex"},
		{Name: "lib/arm64-v8a/libnative.so", Data: bytes.Repeat([]byte{0x7f, 'E', 'L', 'F', 1}, 33), Stored: true},
		{Name: "assets/odd.bin", Data: []byte{1, 2, 3}, Stored: true},
		{Name: "META-INF/MANIFEST.MF", Data: []byte("Manifest-Version: 1.0\r\n")},
	}
}

// BuildSampleAPK builds SampleAPK with an archive comment.
func BuildSampleAPK() []byte {
	data, err := BuildArchive(SampleAPK(), "sample apk")
	if err != nil {
		panic(err)
	}
	return data
}

// RawEntry describes one entry of an archive assembled byte by byte, for
// layouts the zip writer cannot produce, such as a local extra field that
// differs from the central one.
type RawEntry struct {
	Name         string
	Data         []byte
	Stored       bool
	LocalExtra   []byte
	CentralExtra []byte
}

// BuildRaw assembles an archive from entries without any writer library.
// Non-stored entries keep Data as their payload verbatim, carry method
// deflate and are followed by a 16-byte data descriptor.
func BuildRaw(entries []RawEntry, comment string) []byte {
	date, tm := zipfmt.DOSDateTime(FixtureTime)
	var body, dir []byte
	for _, e := range entries {
		method := uint16(8)
		flags := zipfmt.FlagUTF8
		if e.Stored {
			method = 0
		} else {
			flags |= zipfmt.FlagDataDescriptor
		}
		crc := crc32.ChecksumIEEE(e.Data)
		size := uint32(len(e.Data)) //nolint:gosec // fixtures are small
		offset := uint32(len(body)) //nolint:gosec // fixtures are small

		lh := zipfmt.LocalHeader{
			Flags: flags, Method: method, ModTime: tm, ModDate: date,
			CRC32: crc, CompressedSize: size, UncompressedSize: size,
			Name: e.Name, Extra: e.LocalExtra,
		}
		body = lh.Append(body)
		body = append(body, e.Data...)
		if !e.Stored {
			body = append(body, 0x50, 0x4b, 0x07, 0x08)
			body = appendUint32(body, crc)
			body = appendUint32(body, size)
			body = appendUint32(body, size)
		}

		ch := zipfmt.CentralHeader{
			Flags: flags, Method: method, ModTime: tm, ModDate: date,
			CRC32: crc, CompressedSize: size, UncompressedSize: size,
			Name: e.Name, Extra: e.CentralExtra, Offset: offset,
		}
		dir = ch.Append(dir)
	}
	end := zipfmt.End{
		Entries: uint16(len(entries)), //nolint:gosec // fixtures are small
		Size:    uint32(len(dir)),     //nolint:gosec // fixtures are small
		Offset:  uint32(len(body)),    //nolint:gosec // fixtures are small
		Comment: comment,
	}
	out := append(body, dir...)
	return end.Append(out)
}

func appendUint32(b []byte, v uint32) []byte {
	return append(b, byte(v), byte(v>>8), byte(v>>16), byte(v>>24))
}
