/*
 * Author: Markus Stenberg <fingon@iki.fi>
 *
 * Copyright (c) 2019 Markus Stenberg
 *
 * Created:       Sun Feb 17 12:20:49 2019 mstenber
 * Last modified: Tue Feb 19 10:48:02 2019 mstenber
 * Edit time:     17 min
 *
 */

package dispatcher

import (
	"fmt"
	"io"

	"github.com/fingon/go-spd/mlog"
	"github.com/fingon/go-spd/scsi"
	"github.com/fingon/go-spd/util"
	"github.com/fingon/go-spd/util/gid"
)

var debugLog io.Writer
var debugLogLock util.MutexLocked

// setDebugLogHandle sets the process-wide debug log target; nil
// means mlog.
func setDebugLogHandle(w io.Writer) {
	defer debugLogLock.Locked()()
	debugLog = w
}

func debugLogf(format string, args ...interface{}) {
	defer debugLogLock.Locked()()
	w := debugLog
	if w == nil {
		w = mlog.Writer("dispatcher/debuglog")
	}
	fmt.Fprintf(w, "spd[TID=%04x]: "+format+"\n",
		append([]interface{}{gid.GetGoroutineID()}, args...)...)
}

func (self *storageUnit) debugEnabled(kind Kind) bool {
	return self.getDebugLog()&(1<<uint(kind)) != 0
}

func (self *storageUnit) debugRequest(req *Request) {
	if !self.debugEnabled(req.Kind) {
		return
	}
	debugLogf("%p: >>%v", self, req)
	if req.Kind == KindUnmap {
		for i, d := range req.Descriptors {
			debugLogf("%p:   [%d] BlockAddress=%d, BlockCount=%d", self, i, d.BlockAddress, d.BlockCount)
		}
	}
}

func (self *storageUnit) debugResponse(req *Request, status *scsi.Status) {
	if !self.debugEnabled(req.Kind) {
		return
	}
	debugLogf("%p: <<%v Hint=%#x, Status=%v", self, req.Kind, req.Hint, status)
}
