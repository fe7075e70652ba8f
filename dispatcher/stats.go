/*
 * Author: Markus Stenberg <fingon@iki.fi>
 *
 * Copyright (c) 2019 Markus Stenberg
 *
 * Created:       Sun Feb 17 12:36:15 2019 mstenber
 * Last modified: Sun Feb 17 12:44:30 2019 mstenber
 * Edit time:     6 min
 *
 */

package dispatcher

import (
	"fmt"

	"github.com/fingon/go-spd/scsi"
	"github.com/fingon/go-spd/util"
)

// Stats counts requests processed by dispatch workers of a unit.
type Stats struct {
	Requests [KindCount]util.AtomicInt
	Errors   util.AtomicInt
}

func (self *Stats) count(kind Kind, status *scsi.Status) {
	if kind < KindCount {
		self.Requests[kind].Inc()
	}
	if !status.Good() {
		self.Errors.Inc()
	}
}

func (self *Stats) String() string {
	return fmt.Sprintf("Read=%d Write=%d Flush=%d Unmap=%d Errors=%d",
		self.Requests[KindRead].Get(), self.Requests[KindWrite].Get(),
		self.Requests[KindFlush].Get(), self.Requests[KindUnmap].Get(),
		self.Errors.Get())
}
