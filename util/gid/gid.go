/*
 * Author: Markus Stenberg <fingon@iki.fi>
 *
 * Copyright (c) 2018 Markus Stenberg
 *
 * Created:       Thu Jan  4 12:49:31 2018 mstenber
 * Last modified: Sat Feb 16 18:21:40 2019 mstenber
 * Edit time:     14 min
 *
 */

// gid provides the current goroutine id. go-spd dispatcher workers
// lock themselves to an OS thread for their lifetime, so within a
// worker the goroutine id doubles as the dispatch thread identity
// (per-thread buffers, TID tags in the debug log).
package gid

import (
	"bytes"
	"runtime"
	"strconv"
	"sync"
)

var goroutinePrefix = []byte("goroutine ")

var stackBuffers = sync.Pool{New: func() interface{} {
	b := make([]byte, 64)
	return &b
}}

// GetGoroutineID parses the id out of the first line of
// runtime.Stack output ("goroutine 42 [running]:").
//
// From http://blog.sgmansfield.com/2015/12/goroutine-ids/
func GetGoroutineID() uint64 {
	bp := stackBuffers.Get().(*[]byte)
	defer stackBuffers.Put(bp)
	b := *bp
	b = b[:runtime.Stack(b, false)]
	b = bytes.TrimPrefix(b, goroutinePrefix)
	i := bytes.IndexByte(b, ' ')
	if i < 0 {
		return 0
	}
	n, _ := strconv.ParseUint(string(b[:i]), 10, 64)
	return n
}
