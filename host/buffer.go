/*
 * Author: Markus Stenberg <fingon@iki.fi>
 *
 * Copyright (c) 2019 Markus Stenberg
 *
 * Created:       Mon Feb 18 13:01:44 2019 mstenber
 * Last modified: Tue Feb 19 10:05:31 2019 mstenber
 * Edit time:     27 min
 *
 */

package host

import (
	"log"

	"github.com/fingon/go-spd/mlog"
	"github.com/fingon/go-spd/util"
	"github.com/fingon/go-spd/util/gid"
)

// threadBuffers keeps one transfer buffer per dispatch thread. The
// dispatch workers are locked to their OS threads, so goroutine id
// identifies the thread.
type threadBuffers struct {
	lock    util.MutexLocked
	buffers map[uint64][]byte
}

func newThreadBuffers() *threadBuffers {
	return &threadBuffers{buffers: make(map[uint64][]byte)}
}

// alloc returns buffer of at least size bytes owned by the calling
// thread. A smaller buffer the thread had is released.
func (self *threadBuffers) alloc(size int) []byte {
	id := gid.GetGoroutineID()
	defer self.lock.Locked()()
	old, ok := self.buffers[id]
	if ok {
		if len(old) >= size {
			return old
		}
		releaseBuffer(old)
		delete(self.buffers, id)
	}
	b, err := allocBuffer(util.IMax(size, 1))
	if err != nil {
		log.Panicf("host: unable to allocate %d byte buffer: %v", size, err)
	}
	mlog.Printf2("host/buffer", "alloc %d for thread %d", len(b), id)
	self.buffers[id] = b
	return b
}

func (self *threadBuffers) free(buffer []byte) {
	id := gid.GetGoroutineID()
	defer self.lock.Locked()()
	b, ok := self.buffers[id]
	if !ok || len(buffer) == 0 || &b[0] != &buffer[0] {
		log.Panicf("host: thread %d freeing buffer it does not own", id)
	}
	mlog.Printf2("host/buffer", "free %d for thread %d", len(b), id)
	delete(self.buffers, id)
	releaseBuffer(b)
}

func (self *threadBuffers) count() int {
	defer self.lock.Locked()()
	return len(self.buffers)
}
