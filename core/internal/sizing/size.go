// Package sizing provides safe size arithmetic and the narrowing conversions
// needed to fill the 16- and 32-bit fields of ZIP records.
package sizing

import "math"

// ToUint16 converts n to uint16, returning overflowErr if it doesn't fit.
func ToUint16(n int, overflowErr error) (uint16, error) {
	if n < 0 || n > math.MaxUint16 {
		return 0, overflowErr
	}
	return uint16(n), nil
}

// ToUint32 converts n to uint32, returning overflowErr if it doesn't fit.
func ToUint32(n uint64, overflowErr error) (uint32, error) {
	if n > math.MaxUint32 {
		return 0, overflowErr
	}
	return uint32(n), nil
}

// ToInt64 converts a uint64 to int64, returning overflowErr if it doesn't fit.
func ToInt64(size uint64, overflowErr error) (int64, error) {
	if size > uint64(math.MaxInt64) {
		return 0, overflowErr
	}
	return int64(size), nil
}

// AddUint64 adds two uint64 values, returning (result, false) on overflow.
func AddUint64(a, b uint64) (uint64, bool) {
	sum := a + b
	if sum < a {
		return 0, false
	}
	return sum, true
}
