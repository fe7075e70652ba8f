/*
 * Author: Markus Stenberg <fingon@iki.fi>
 *
 * Copyright (c) 2018 Markus Stenberg
 *
 * Created:       Wed Mar 21 11:19:49 2018 mstenber
 * Last modified: Sun Feb 17 09:12:30 2019 mstenber
 * Edit time:     11 min
 *
 */

package util

import "sync/atomic"

// AtomicInt is int64 counter which is always accessed atomically;
// the dispatcher uses these for its per-kind request statistics.
type AtomicInt int64

func (self *AtomicInt) Get() int64 {
	return atomic.LoadInt64((*int64)(self))
}

func (self *AtomicInt) GetInt() int {
	return int(self.Get())
}

func (self *AtomicInt) Add(value int64) int64 {
	return atomic.AddInt64((*int64)(self), value)
}

func (self *AtomicInt) AddInt(value int) int {
	return int(self.Add(int64(value)))
}

func (self *AtomicInt) Inc() int64 {
	return self.Add(1)
}

func (self *AtomicInt) Set(value int64) {
	atomic.StoreInt64((*int64)(self), value)
}

func (self *AtomicInt) SetInt(value int) {
	self.Set(int64(value))
}

// CompareAndSwap sets the value to new only if it is currently old.
func (self *AtomicInt) CompareAndSwap(old, new int64) bool {
	return atomic.CompareAndSwapInt64((*int64)(self), old, new)
}
