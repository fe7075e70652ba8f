/*
 * Author: Markus Stenberg <fingon@iki.fi>
 *
 * Copyright (c) 2018 Markus Stenberg
 *
 * Created:       Fri Jan  5 12:21:41 2018 mstenber
 * Last modified: Sun Feb 17 09:52:30 2019 mstenber
 * Edit time:     22 min
 *
 */

package util

import (
	"encoding/binary"
	"math/bits"
)

func Uint64Bytes(n uint64) []byte {
	nb := make([]byte, 8)
	binary.BigEndian.PutUint64(nb, n)
	return nb
}

// PrefixedUint64Bytes is Uint64Bytes with prefix in front; the
// big-endian encoding keeps keys in block address order.
func PrefixedUint64Bytes(prefix []byte, n uint64) []byte {
	nb := make([]byte, len(prefix)+8)
	copy(nb, prefix)
	binary.BigEndian.PutUint64(nb[len(prefix):], n)
	return nb
}

// MulOverflows reports whether a*b does not fit in uint64.
func MulOverflows(a, b uint64) bool {
	hi, _ := bits.Mul64(a, b)
	return hi != 0
}

// IsZero reports whether b consists only of zero bytes.
func IsZero(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}

func IMin(i int, ints ...int) int {
	for _, v := range ints {
		if v < i {
			i = v
		}
	}
	return i
}

func IMax(i int, ints ...int) int {
	for _, v := range ints {
		if v > i {
			i = v
		}
	}
	return i
}

func SOr(strings ...string) string {
	for _, v := range strings {
		if v != "" {
			return v
		}
	}
	return ""
}
