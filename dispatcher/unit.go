/*
 * Author: Markus Stenberg <fingon@iki.fi>
 *
 * Copyright (c) 2019 Markus Stenberg
 *
 * Created:       Sun Feb 17 13:02:40 2019 mstenber
 * Last modified: Tue Feb 19 12:10:27 2019 mstenber
 * Edit time:     104 min
 *
 */

package dispatcher

import (
	"context"
	"runtime"
	"sync/atomic"

	"github.com/fingon/go-spd/mlog"
	"github.com/fingon/go-spd/native"
	"github.com/fingon/go-spd/scsi"
	"github.com/fingon/go-spd/unit"
	"github.com/fingon/go-spd/util"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// MaxThreadCount is the most dispatch workers one unit may have.
const MaxThreadCount = 1024

type storageUnit struct {
	handle   native.Handle
	params   unit.Params
	iface    native.Interface
	queue    *Queue
	frontend Frontend
	debugLog uint32
	stats    Stats

	// lock protects the rest
	lock        util.MutexLocked
	bufferAlloc native.BufferAlloc
	bufferFree  native.BufferFree
	started     bool
	finished    chan struct{}
	err         native.Errno
}

var units = map[native.Handle]*storageUnit{}
var unitsByGuid = map[uuid.UUID]*storageUnit{}
var unitsLock util.RWMutexLocked
var lastHandle util.AtomicInt

func getUnit(h native.Handle) *storageUnit {
	defer unitsLock.RLocked()()
	return units[h]
}

// QueueOf returns the queue of the unit, or nil if the handle is not
// known.
func QueueOf(h native.Handle) *Queue {
	self := getUnit(h)
	if self == nil {
		return nil
	}
	return self.queue
}

// Lookup returns the queue of the unit with guid, or nil.
func Lookup(guid uuid.UUID) *Queue {
	defer unitsLock.RLocked()()
	self := unitsByGuid[guid]
	if self == nil {
		return nil
	}
	return self.queue
}

// StatsOf returns the live request statistics of the unit, or nil.
func StatsOf(h native.Handle) *Stats {
	self := getUnit(h)
	if self == nil {
		return nil
	}
	return &self.stats
}

func createUnit(deviceName string, params *unit.Params, iface *native.Interface) (native.Handle, native.Errno) {
	if params == nil || iface == nil {
		return 0, native.ErrorInvalidParameter
	}
	if err := params.Validate(); err != nil {
		mlog.Printf2("dispatcher/unit", "create: %v", err)
		return 0, native.ErrorInvalidParameter
	}
	scheme, target := parseDeviceName(deviceName)
	var open FrontendOpener
	if scheme != "" {
		open = getFrontend(scheme)
		if open == nil {
			mlog.Printf2("dispatcher/unit", "create: no frontend for %s", deviceName)
			return 0, native.ErrorFileNotFound
		}
	}
	self := &storageUnit{params: *params,
		iface:    *iface,
		finished: make(chan struct{})}
	self.queue = newQueue(&self.params)
	self.handle = native.Handle(lastHandle.Inc())
	guid := self.params.GetGuid()

	unlock := unitsLock.Locked()
	if _, ok := unitsByGuid[guid]; ok {
		unlock()
		return 0, native.ErrorAlreadyExists
	}
	unitsByGuid[guid] = self
	unlock()

	if open != nil {
		fe, err := open(target, self.queue)
		if err != nil {
			mlog.Printf2("dispatcher/unit", "create: frontend %s: %v", deviceName, err)
			unlock := unitsLock.Locked()
			delete(unitsByGuid, guid)
			unlock()
			return 0, native.ErrnoOf(err)
		}
		self.frontend = fe
	}

	defer unitsLock.Locked()()
	units[self.handle] = self
	mlog.Printf2("dispatcher/unit", "create %s %v -> %#x", deviceName, guid, self.handle)
	return self.handle, native.ErrorSuccess
}

func deleteUnit(h native.Handle) {
	self := getUnit(h)
	if self == nil {
		return
	}
	mlog.Printf2("dispatcher/unit", "delete %#x", h)
	if self.frontend != nil {
		if err := self.frontend.Close(); err != nil {
			mlog.Printf2("dispatcher/unit", " frontend.Close: %v", err)
		}
	}
	shutdownDispatcher(h)
	waitDispatcher(h)

	defer unitsLock.Locked()()
	delete(units, h)
	delete(unitsByGuid, self.params.GetGuid())
}

func startDispatcher(h native.Handle, threadCount uint32) native.Errno {
	self := getUnit(h)
	if self == nil {
		return native.ErrorInvalidParameter
	}
	if threadCount == 0 {
		threadCount = uint32(runtime.NumCPU())
	}
	if threadCount > MaxThreadCount {
		return native.ErrorInvalidParameter
	}
	defer self.lock.Locked()()
	if self.started {
		return native.ErrorInvalidParameter
	}
	self.started = true
	mlog.Printf2("dispatcher/unit", "startDispatcher %#x with %d threads", h, threadCount)
	group, ctx := errgroup.WithContext(context.Background())
	for i := uint32(0); i < threadCount; i++ {
		group.Go(func() error {
			return self.dispatch(ctx)
		})
	}
	go func() {
		err := group.Wait()
		if err != nil {
			mlog.Printf2("dispatcher/unit", "dispatcher %#x failed: %v", h, err)
			self.setError(native.ErrnoOf(err))
			self.queue.Shutdown()
		}
		self.finalFlush()
		close(self.finished)
	}()
	return native.ErrorSuccess
}

func shutdownDispatcher(h native.Handle) {
	self := getUnit(h)
	if self == nil {
		return
	}
	self.queue.Shutdown()
}

func waitDispatcher(h native.Handle) {
	self := getUnit(h)
	if self == nil {
		return
	}
	unlock := self.lock.Locked()
	started := self.started
	unlock()
	if started {
		<-self.finished
	}
}

func (self *storageUnit) setError(errno native.Errno) {
	defer self.lock.Locked()()
	if self.err == native.ErrorSuccess {
		self.err = errno
	}
}

func getDispatcherError(h native.Handle) native.Errno {
	self := getUnit(h)
	if self == nil {
		return native.ErrorInvalidParameter
	}
	defer self.lock.Locked()()
	return self.err
}

func setBufferAllocator(h native.Handle, alloc native.BufferAlloc, free native.BufferFree) {
	self := getUnit(h)
	if self == nil {
		return
	}
	defer self.lock.Locked()()
	self.bufferAlloc = alloc
	self.bufferFree = free
}

func (self *storageUnit) allocator() (native.BufferAlloc, native.BufferFree) {
	defer self.lock.Locked()()
	if self.bufferAlloc == nil || self.bufferFree == nil {
		return func(size int) []byte {
				return make([]byte, size)
			}, func(buffer []byte) {
			}
	}
	return self.bufferAlloc, self.bufferFree
}

func setDebugLog(h native.Handle, mask uint32) {
	self := getUnit(h)
	if self == nil {
		return
	}
	atomic.StoreUint32(&self.debugLog, mask)
}

func (self *storageUnit) getDebugLog() uint32 {
	return atomic.LoadUint32(&self.debugLog)
}

func definePartitionTable(partitions []scsi.Partition, buffer []byte) native.Errno {
	if err := scsi.DefinePartitionTable(partitions, buffer); err != nil {
		return native.ErrorInvalidParameter
	}
	return native.ErrorSuccess
}
