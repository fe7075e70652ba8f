/*
 * Author: Markus Stenberg <fingon@iki.fi>
 *
 * Copyright (c) 2018 Markus Stenberg
 *
 * Created:       Mon Jan  8 10:19:05 2018 mstenber
 * Last modified: Sun Feb 17 09:20:44 2019 mstenber
 * Edit time:     6 min
 *
 */

package util

import "sync"

// SimpleWaitGroup is sync.WaitGroup that also starts the goroutines.
type SimpleWaitGroup struct {
	sync.WaitGroup
}

func (self *SimpleWaitGroup) Go(cb func()) {
	self.Add(1)
	go func() {
		defer self.Done()
		cb()
	}()
}

// GoN starts n goroutines; each gets its index as argument.
func (self *SimpleWaitGroup) GoN(n int, cb func(i int)) {
	for i := 0; i < n; i++ {
		i := i
		self.Go(func() {
			cb(i)
		})
	}
}
