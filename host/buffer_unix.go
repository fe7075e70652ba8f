//go:build darwin || dragonfly || freebsd || linux || netbsd || openbsd
// +build darwin dragonfly freebsd linux netbsd openbsd

/*
 * Author: Markus Stenberg <fingon@iki.fi>
 *
 * Copyright (c) 2019 Markus Stenberg
 *
 * Created:       Mon Feb 18 13:20:10 2019 mstenber
 * Last modified: Mon Feb 18 13:41:26 2019 mstenber
 * Edit time:     9 min
 *
 */

package host

import (
	"log"
	"os"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// allocBuffer maps anonymous memory; it is page aligned and never
// moved or touched by the collector.
func allocBuffer(size int) ([]byte, error) {
	pagesize := os.Getpagesize()
	size = (size + pagesize - 1) / pagesize * pagesize
	b, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, errors.Wrap(err, "mmap")
	}
	return b, nil
}

func releaseBuffer(b []byte) {
	if err := unix.Munmap(b); err != nil {
		log.Panic("munmap:", err)
	}
}
