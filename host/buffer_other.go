//go:build !darwin && !dragonfly && !freebsd && !linux && !netbsd && !openbsd
// +build !darwin,!dragonfly,!freebsd,!linux,!netbsd,!openbsd

/*
 * Author: Markus Stenberg <fingon@iki.fi>
 *
 * Copyright (c) 2019 Markus Stenberg
 *
 * Created:       Mon Feb 18 13:22:51 2019 mstenber
 * Last modified: Mon Feb 18 13:23:40 2019 mstenber
 * Edit time:     1 min
 *
 */

package host

// The collector does not move heap objects, so plain slice is stable
// enough here.
func allocBuffer(size int) ([]byte, error) {
	return make([]byte, size), nil
}

func releaseBuffer(b []byte) {
}
