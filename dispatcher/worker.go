/*
 * Author: Markus Stenberg <fingon@iki.fi>
 *
 * Copyright (c) 2019 Markus Stenberg
 *
 * Created:       Sun Feb 17 14:12:09 2019 mstenber
 * Last modified: Tue Feb 19 12:31:48 2019 mstenber
 * Edit time:     58 min
 *
 */

package dispatcher

import (
	"context"
	"runtime"

	"github.com/fingon/go-spd/mlog"
	"github.com/fingon/go-spd/scsi"
	"github.com/pkg/errors"
)

// dispatch is the loop of single dispatch worker. The worker stays on
// one OS thread for its lifetime; its transfer buffer is allocated
// lazily on that thread, grown when a larger transfer arrives, and
// freed there when the loop ends.
func (self *storageUnit) dispatch(ctx context.Context) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	alloc, free := self.allocator()
	var buffer []byte
	defer func() {
		if buffer != nil {
			free(buffer)
		}
	}()
	for {
		p, ok := self.queue.next(ctx)
		if !ok {
			return nil
		}
		var data []byte
		if p.Kind == KindRead || p.Kind == KindWrite {
			n := int(p.BlockCount) * int(self.params.BlockLength)
			if len(buffer) < n {
				buffer = alloc(n)
			}
			data = buffer[:n]
			if p.Kind == KindWrite {
				copy(data, p.data)
			}
		}
		var status scsi.Status
		err := self.process(&p.Request, data, &status)
		if p.Kind == KindRead && status.Good() {
			copy(p.data, data)
		}
		self.queue.complete(p, &status)
		if err != nil {
			return err
		}
	}
}

// process invokes the callback of the unit. Panicking callback is
// reported as target failure, and it also stops the dispatcher.
func (self *storageUnit) process(req *Request, data []byte, status *scsi.Status) (err error) {
	self.debugRequest(req)
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("%v callback panic: %v", req.Kind, r)
			status.SetSense(scsi.SenseHardwareError, scsi.ASCInternalTargetFailure)
		}
		self.debugResponse(req, status)
		self.stats.count(req.Kind, status)
	}()
	handled := true
	iface := &self.iface
	switch {
	case req.Kind == KindRead && iface.Read != nil:
		handled = iface.Read(self.handle, data, req.BlockAddress, req.BlockCount, req.ForceUnitAccess, status)
	case req.Kind == KindWrite && iface.Write != nil:
		handled = iface.Write(self.handle, data, req.BlockAddress, req.BlockCount, req.ForceUnitAccess, status)
	case req.Kind == KindFlush && iface.Flush != nil:
		handled = iface.Flush(self.handle, req.BlockAddress, req.BlockCount, status)
	case req.Kind == KindUnmap && iface.Unmap != nil:
		handled = iface.Unmap(self.handle, req.Descriptors, status)
	default:
		status.SetSense(scsi.SenseIllegalRequest, scsi.ASCIllegalCommand)
	}
	if !handled {
		// There is no way to complete request later
		mlog.Printf2("dispatcher/worker", "%v not handled by %#x", req, self.handle)
		*status = abortedStatus()
	}
	return
}

// finalFlush flushes units with cache once the workers have exited.
func (self *storageUnit) finalFlush() {
	if !self.params.CacheSupported() || self.iface.Flush == nil {
		return
	}
	req := Request{Kind: KindFlush}
	var status scsi.Status
	if err := self.process(&req, nil, &status); err != nil {
		mlog.Printf2("dispatcher/worker", "final flush of %#x: %v", self.handle, err)
	}
}
