/*
 * Author: Markus Stenberg <fingon@iki.fi>
 *
 * Copyright (c) 2019 Markus Stenberg
 *
 * Created:       Sun Feb 17 10:30:55 2019 mstenber
 * Last modified: Tue Feb 19 11:40:03 2019 mstenber
 * Edit time:     93 min
 *
 */

package dispatcher

import (
	"context"
	"sync"

	"github.com/fingon/go-spd/mlog"
	"github.com/fingon/go-spd/scsi"
	"github.com/fingon/go-spd/unit"
	"github.com/fingon/go-spd/util"
	"github.com/pkg/errors"
)

var ErrShutdown = errors.New("storage unit is shut down")
var ErrShortBuffer = errors.New("data buffer too short")

type pending struct {
	Request
	data   []byte
	status scsi.Status
	done   chan struct{}
}

// Queue is the initiator side of a storage unit: requests are
// submitted to it, validated against the unit parameters the way a
// SCSI target would, and handed one at a time to dispatch workers.
//
// The hand-off channel is unbuffered, so a request is either being
// processed by a worker or still owned by its submitter; shutting the
// queue down never strands requests.
type Queue struct {
	params   unit.Params
	requests chan *pending
	quit     chan struct{}
	quitOnce sync.Once
	hints    util.AtomicInt
}

func newQueue(params *unit.Params) *Queue {
	return &Queue{params: *params,
		requests: make(chan *pending),
		quit:     make(chan struct{})}
}

// Params returns the parameters of the unit behind the queue.
func (self *Queue) Params() unit.Params {
	return self.params
}

// Done is closed when the queue has been shut down.
func (self *Queue) Done() <-chan struct{} {
	return self.quit
}

func (self *Queue) Shutdown() {
	self.quitOnce.Do(func() {
		mlog.Printf2("dispatcher/queue", "q.Shutdown %p", self)
		close(self.quit)
	})
}

func abortedStatus() (status scsi.Status) {
	status.SetSense(scsi.SenseAbortedCommand, scsi.ASCNoSense)
	return
}

// check validates req. It returns true if the request was completed
// without reaching the storage unit.
func (self *Queue) check(req *Request, data []byte, status *scsi.Status) (bool, error) {
	p := &self.params
	switch req.Kind {
	case KindRead, KindWrite:
		if req.BlockCount == 0 {
			return true, nil
		}
		if req.BlockAddress >= p.BlockCount || uint64(req.BlockCount) > p.BlockCount-req.BlockAddress {
			status.SetSenseInformation(scsi.SenseIllegalRequest, scsi.ASCIllegalBlock, req.BlockAddress)
			return true, nil
		}
		if req.BlockCount > p.MaxTransferLength {
			status.SetSense(scsi.SenseIllegalRequest, scsi.ASCInvalidCDB)
			return true, nil
		}
		if req.Kind == KindWrite && p.WriteProtected() {
			status.SetSense(scsi.SenseDataProtect, scsi.ASCWriteProtect)
			return true, nil
		}
		if uint64(len(data)) < uint64(req.BlockCount)*uint64(p.BlockLength) {
			return true, ErrShortBuffer
		}
	case KindFlush:
		if !p.CacheSupported() {
			return true, nil
		}
		if req.BlockAddress > p.BlockCount || uint64(req.BlockCount) > p.BlockCount-req.BlockAddress {
			status.SetSenseInformation(scsi.SenseIllegalRequest, scsi.ASCIllegalBlock, req.BlockAddress)
			return true, nil
		}
	case KindUnmap:
		if !p.UnmapSupported() {
			status.SetSense(scsi.SenseIllegalRequest, scsi.ASCInvalidCDB)
			return true, nil
		}
		if p.WriteProtected() {
			status.SetSense(scsi.SenseDataProtect, scsi.ASCWriteProtect)
			return true, nil
		}
		for _, d := range req.Descriptors {
			if d.BlockAddress >= p.BlockCount || uint64(d.BlockCount) > p.BlockCount-d.BlockAddress {
				status.SetSenseInformation(scsi.SenseIllegalRequest, scsi.ASCIllegalBlock, d.BlockAddress)
				return true, nil
			}
		}
		if len(req.Descriptors) == 0 {
			return true, nil
		}
	default:
		status.SetSense(scsi.SenseIllegalRequest, scsi.ASCIllegalCommand)
		return true, nil
	}
	return false, nil
}

// Submit issues req and waits for its completion. For reads data is
// filled with the result, and for writes it provides the blocks to
// write. Unmaps with more than scsi.MaxUnmapDescriptors descriptors
// are split; the first failing part determines the status.
//
// ctx only covers waiting for a dispatch worker; once a worker has
// the request, Submit waits for it to finish.
func (self *Queue) Submit(ctx context.Context, req Request, data []byte) (status scsi.Status, err error) {
	done, err := self.check(&req, data, &status)
	if done || err != nil {
		return
	}
	if req.Kind != KindUnmap {
		return self.submit(ctx, req, data)
	}
	descriptors := req.Descriptors
	for len(descriptors) > 0 {
		n := util.IMin(len(descriptors), scsi.MaxUnmapDescriptors)
		part := req
		part.Descriptors = append([]scsi.UnmapDescriptor(nil), descriptors[:n]...)
		descriptors = descriptors[n:]
		status, err = self.submit(ctx, part, nil)
		if err != nil || !status.Good() {
			return
		}
	}
	return
}

func (self *Queue) submit(ctx context.Context, req Request, data []byte) (scsi.Status, error) {
	req.Hint = uint64(self.hints.Inc())
	p := &pending{Request: req, data: data, done: make(chan struct{})}
	select {
	case self.requests <- p:
	case <-self.quit:
		return abortedStatus(), ErrShutdown
	case <-ctx.Done():
		return abortedStatus(), ctx.Err()
	}
	<-p.done
	return p.status, nil
}

// next returns the next request for a dispatch worker, or false once
// the queue is shut down.
func (self *Queue) next(ctx context.Context) (*pending, bool) {
	select {
	case p := <-self.requests:
		return p, true
	case <-self.quit:
	case <-ctx.Done():
	}
	return nil, false
}

func (self *Queue) complete(p *pending, status *scsi.Status) {
	p.status = *status
	close(p.done)
}
