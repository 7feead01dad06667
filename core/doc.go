// Package zipalign rewrites ZIP archives, Android APKs in particular, so
// that the payload of every stored (uncompressed) entry starts at an offset
// that is a multiple of a chosen alignment. Aligned payloads can be
// memory-mapped directly by the platform.
//
// Alignment is achieved by appending zero bytes to the extra field of each
// stored entry's local header. Compressed entries are copied untouched and
// the central directory is rebuilt with updated offsets; its extra fields
// never carry the padding.
//
// [Align] and [AlignFile] perform the rewrite, [Verify] and [VerifyFile]
// check an existing archive without modifying it. Every run reports progress
// through an optional [ProgressFunc] and stops at the next entry boundary
// once its context is cancelled.
package zipalign
