/*
 * Author: Markus Stenberg <fingon@iki.fi>
 *
 * Copyright (c) 2018 Markus Stenberg
 *
 * Created:       Mon Jan  1 10:02:23 2018 mstenber
 * Last modified: Sat Feb 16 18:40:11 2019 mstenber
 * Edit time:     41 min
 *
 */

package util

import "sync"

// MutexLocked is sync.Mutex with convenience feature (just defer
// x.Locked()()).
type MutexLocked sync.Mutex

func (self *MutexLocked) Lock() {
	(*sync.Mutex)(self).Lock()
}

func (self *MutexLocked) Unlock() {
	(*sync.Mutex)(self).Unlock()
}

func (self *MutexLocked) Locked() (unlock func()) {
	mut := (*sync.Mutex)(self)
	mut.Lock()
	return mut.Unlock
}

// RWMutexLocked is sync.RWMutex with the same convenience; RLocked
// for shared and Locked for exclusive access.
type RWMutexLocked sync.RWMutex

func (self *RWMutexLocked) Locked() (unlock func()) {
	mut := (*sync.RWMutex)(self)
	mut.Lock()
	return mut.Unlock
}

func (self *RWMutexLocked) RLocked() (unlock func()) {
	mut := (*sync.RWMutex)(self)
	mut.RLock()
	return mut.RUnlock
}
