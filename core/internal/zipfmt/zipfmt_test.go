package zipfmt

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDOSDateTime(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		in       time.Time
		wantDate uint16
		wantTime uint16
	}{
		{
			name:     "regular timestamp",
			in:       time.Date(2012, time.March, 14, 15, 9, 26, 0, time.UTC),
			wantDate: (2012-1980)<<9 | 3<<5 | 14,
			wantTime: 15<<11 | 9<<5 | 26>>1,
		},
		{
			name:     "odd seconds round down",
			in:       time.Date(1980, time.January, 1, 0, 0, 59, 0, time.UTC),
			wantDate: 0x21,
			wantTime: 29,
		},
		{
			name:     "before 1980 clamps",
			in:       time.Date(1979, time.December, 31, 23, 59, 58, 0, time.UTC),
			wantDate: MinDOSDate,
			wantTime: MinDOSTime,
		},
		{
			name:     "zero time clamps",
			in:       time.Time{},
			wantDate: MinDOSDate,
			wantTime: MinDOSTime,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			date, tm := DOSDateTime(tt.in)
			assert.Equal(t, tt.wantDate, date)
			assert.Equal(t, tt.wantTime, tm)
		})
	}
}

func TestFromDOSDateTimeRoundTrip(t *testing.T) {
	t.Parallel()

	date := uint16((2020-1980)<<9 | 6<<5 | 30)
	tm := uint16(23<<11 | 59<<5 | 29)

	got := FromDOSDateTime(date, tm)
	assert.Equal(t, time.Date(2020, time.June, 30, 23, 59, 58, 0, time.UTC), got)

	gotDate, gotTime := DOSDateTime(got)
	assert.Equal(t, date, gotDate)
	assert.Equal(t, tm, gotTime)
}

func TestFromDOSDateTimeZeroDate(t *testing.T) {
	t.Parallel()

	// Day 0 of month 0 normalizes to a 1979 date, which re-encodes as the minimum.
	date, tm := DOSDateTime(FromDOSDateTime(0, 0))
	assert.Equal(t, MinDOSDate, date)
	assert.Equal(t, MinDOSTime, tm)
}

func TestPadding(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 3, Padding(33, 4))
	assert.Equal(t, 0, Padding(36, 4))
	assert.Equal(t, 0, Padding(12345, 1))
	assert.Equal(t, 4095, Padding(4097, 4096))
}

func TestLocalHeaderAppend(t *testing.T) {
	t.Parallel()

	h := LocalHeader{
		Flags:            FlagUTF8,
		Method:           0,
		ModTime:          0x1234,
		ModDate:          0x5678,
		CRC32:            0xdeadbeef,
		CompressedSize:   5,
		UncompressedSize: 5,
		Name:             "x",
		Extra:            []byte{0, 0, 0},
	}
	b := h.Append(nil)
	require.Len(t, b, h.Size())
	assert.Equal(t, 34, h.Size())

	le := binary.LittleEndian
	assert.Equal(t, LocalHeaderSignature, le.Uint32(b[0:]))
	assert.Equal(t, Version, le.Uint16(b[4:]))
	assert.Equal(t, FlagUTF8, le.Uint16(b[6:]))
	assert.Equal(t, uint16(0), le.Uint16(b[8:]))
	assert.Equal(t, uint16(0x1234), le.Uint16(b[10:]))
	assert.Equal(t, uint16(0x5678), le.Uint16(b[12:]))
	assert.Equal(t, uint32(0xdeadbeef), le.Uint32(b[14:]))
	assert.Equal(t, uint32(5), le.Uint32(b[18:]))
	assert.Equal(t, uint32(5), le.Uint32(b[22:]))
	assert.Equal(t, uint16(1), le.Uint16(b[26:]))
	assert.Equal(t, uint16(3), le.Uint16(b[ExtraLenOffset:]))
	assert.Equal(t, []byte("x\x00\x00\x00"), b[LocalHeaderLen:])

	fixed, err := ParseLocalFixed(b)
	require.NoError(t, err)
	assert.Equal(t, LocalFixed{NameLen: 1, ExtraLen: 3}, fixed)
}

func TestParseLocalFixedErrors(t *testing.T) {
	t.Parallel()

	_, err := ParseLocalFixed(make([]byte, 10))
	require.Error(t, err)

	_, err = ParseLocalFixed(make([]byte, LocalHeaderLen))
	require.ErrorContains(t, err, "bad signature")
}

func TestCentralHeaderAppend(t *testing.T) {
	t.Parallel()

	long := string(bytes.Repeat([]byte("c"), MaxUint16+10))
	h := CentralHeader{
		Flags:   FlagUTF8 | FlagDataDescriptor,
		Method:  8,
		Name:    "a.txt",
		Extra:   []byte{1, 2},
		Comment: long,
		Offset:  0x01020304,
	}
	b := h.Append(nil)
	require.Len(t, b, CentralHeaderLen+5+2+MaxUint16)

	le := binary.LittleEndian
	assert.Equal(t, CentralHeaderSignature, le.Uint32(b[0:]))
	assert.Equal(t, Version, le.Uint16(b[4:]))
	assert.Equal(t, Version, le.Uint16(b[6:]))
	assert.Equal(t, FlagUTF8|FlagDataDescriptor, le.Uint16(b[8:]))
	assert.Equal(t, uint16(8), le.Uint16(b[10:]))
	assert.Equal(t, uint16(5), le.Uint16(b[28:]))
	assert.Equal(t, uint16(2), le.Uint16(b[30:]))
	assert.Equal(t, uint16(MaxUint16), le.Uint16(b[32:]))
	assert.Equal(t, uint32(0), le.Uint32(b[38:]))
	assert.Equal(t, uint32(0x01020304), le.Uint32(b[42:]))
	assert.Equal(t, "a.txt", string(b[46:51]))
}

func TestEndAppend(t *testing.T) {
	t.Parallel()

	e := End{Entries: 3, Size: 100, Offset: 200, Comment: "hi"}
	b := e.Append(nil)
	require.Len(t, b, EndLen+2)

	le := binary.LittleEndian
	assert.Equal(t, EndSignature, le.Uint32(b[0:]))
	assert.Equal(t, uint16(0), le.Uint16(b[4:]))
	assert.Equal(t, uint16(0), le.Uint16(b[6:]))
	assert.Equal(t, uint16(3), le.Uint16(b[8:]))
	assert.Equal(t, uint16(3), le.Uint16(b[10:]))
	assert.Equal(t, uint32(100), le.Uint32(b[12:]))
	assert.Equal(t, uint32(200), le.Uint32(b[16:]))
	assert.Equal(t, uint16(2), le.Uint16(b[20:]))
	assert.Equal(t, "hi", string(b[22:]))
}

type failingWriter struct{ after int }

func (w *failingWriter) Write(p []byte) (int, error) {
	if len(p) > w.after {
		return w.after, errors.New("disk full")
	}
	w.after -= len(p)
	return len(p), nil
}

func TestOffsetWriter(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	w := &OffsetWriter{W: &buf}
	_, err := w.Write([]byte("hello"))
	require.NoError(t, err)
	_, err = w.Write([]byte(" world"))
	require.NoError(t, err)
	assert.Equal(t, uint64(11), w.N)
	off, err := w.Offset32()
	require.NoError(t, err)
	assert.Equal(t, uint32(11), off)

	w = &OffsetWriter{W: &failingWriter{after: 3}}
	n, err := w.Write([]byte("hello"))
	require.Error(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, uint64(3), w.N)

	w = &OffsetWriter{W: &buf, N: 1 << 32}
	_, err = w.Offset32()
	require.ErrorIs(t, err, ErrOffsetOverflow)

	w = &OffsetWriter{W: &buf, N: ^uint64(0)}
	_, err = w.Write([]byte("x"))
	require.ErrorIs(t, err, ErrOffsetOverflow)
}
