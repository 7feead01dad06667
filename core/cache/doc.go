// Package cache provides an in-memory block cache for byte sources.
//
// Verification reads a two-byte field from every local header, and an
// alignment run copies payloads in large sequential chunks. Over a remote
// source each of those reads is an HTTP round trip; wrapping the source in
// a block cache turns the many small reads into a few block-sized ones.
package cache
