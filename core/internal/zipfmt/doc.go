// Package zipfmt encodes the ZIP records an alignment run writes: local file
// headers, central directory records and the end of central directory
// record, plus the MS-DOS timestamp codec and a counting writer that tracks
// the output offset. All multi-byte integers are little-endian.
package zipfmt
