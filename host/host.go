/*
 * Author: Markus Stenberg <fingon@iki.fi>
 *
 * Copyright (c) 2019 Markus Stenberg
 *
 * Created:       Mon Feb 18 11:02:33 2019 mstenber
 * Last modified: Wed Feb 20 09:41:12 2019 mstenber
 * Edit time:     143 min
 *
 */

// host runs a unit.StorageUnit as a virtual disk: it registers the
// unit with the dispatcher, owns its lifecycle, and turns the
// dispatcher callbacks into calls of the storage unit.
//
// Typical use:
//
//	h := host.New(myUnit)
//	if err := h.Start(pipeName, 0); err != nil { ... }
//	(on signal: h.Shutdown())
//	h.Wait()
package host

import (
	"io"
	"runtime"
	"sync/atomic"

	"github.com/fingon/go-spd/mlog"
	"github.com/fingon/go-spd/native"
	"github.com/fingon/go-spd/scsi"
	"github.com/fingon/go-spd/unit"
	"github.com/fingon/go-spd/util"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	// The built-in dispatcher and the pipe front end
	_ "github.com/fingon/go-spd/dispatcher"
	_ "github.com/fingon/go-spd/transport/pipe"
)

type State int32

const (
	StateIdle State = iota
	StateStarted
	StateDispatching
	StateShuttingDown
	StateStopped
)

var stateNames = []string{"Idle", "Started", "Dispatching", "ShuttingDown", "Stopped"}

func (self State) String() string {
	if int(self) < len(stateNames) {
		return stateNames[self]
	}
	return "Unknown"
}

const DefaultThreadCount = 2

// DefaultMaxTransferBytes determines MaxTransferLength if the storage
// unit does not choose one.
const DefaultMaxTransferBytes = 64 * 1024

// Host is the managed side of single storage unit.
type Host struct {
	params      unit.Params
	threadCount uint32
	storageUnit unit.StorageUnit
	api         *native.Api
	buffers     *threadBuffers
	state       int32

	// handleLock protects handle: Shutdown uses it under read
	// lock, and teardown clears it under write lock once the
	// dispatcher has drained.
	handleLock util.RWMutexLocked
	handle     native.Handle

	// lastError is the dispatcher error of the released unit
	lastError native.Errno

	// disposeLock serializes Start and teardown
	disposeLock util.MutexLocked
}

var _ unit.Host = &Host{}

func New(u unit.StorageUnit) *Host {
	self := &Host{storageUnit: u, threadCount: DefaultThreadCount}
	self.params.SetGuid(uuid.New())
	self.params.DeviceType = scsi.DeviceTypeDirectAccess
	return self
}

func (self *Host) Params() *unit.Params {
	return &self.params
}

func (self *Host) Guid() uuid.UUID {
	return self.params.GetGuid()
}

func (self *Host) SetGuid(guid uuid.UUID) {
	self.params.SetGuid(guid)
}

func (self *Host) BlockCount() uint64 {
	return self.params.BlockCount
}

func (self *Host) SetBlockCount(count uint64) {
	self.params.BlockCount = count
}

func (self *Host) BlockLength() uint32 {
	return self.params.BlockLength
}

func (self *Host) SetBlockLength(length uint32) {
	self.params.BlockLength = length
}

func (self *Host) ProductId() string {
	return self.params.GetProductId()
}

func (self *Host) SetProductId(id string) {
	self.params.SetProductId(id)
}

func (self *Host) ProductRevision() string {
	return self.params.GetProductRevision()
}

func (self *Host) SetProductRevision(revision string) {
	self.params.SetProductRevision(revision)
}

func (self *Host) WriteProtected() bool {
	return self.params.WriteProtected()
}

func (self *Host) SetWriteProtected(value bool) {
	self.params.SetWriteProtected(value)
}

func (self *Host) CacheSupported() bool {
	return self.params.CacheSupported()
}

func (self *Host) SetCacheSupported(value bool) {
	self.params.SetCacheSupported(value)
}

func (self *Host) UnmapSupported() bool {
	return self.params.UnmapSupported()
}

func (self *Host) SetUnmapSupported(value bool) {
	self.params.SetUnmapSupported(value)
}

func (self *Host) EjectDisabled() bool {
	return self.params.EjectDisabled()
}

func (self *Host) SetEjectDisabled(value bool) {
	self.params.SetEjectDisabled(value)
}

// MaxTransferLength is in blocks.
func (self *Host) MaxTransferLength() uint32 {
	return self.params.MaxTransferLength
}

func (self *Host) SetMaxTransferLength(length uint32) {
	self.params.MaxTransferLength = length
}

func (self *Host) ThreadCount() uint32 {
	return self.threadCount
}

// SetThreadCount sets the number of dispatch threads; 0 is one per
// CPU.
func (self *Host) SetThreadCount(count uint32) {
	self.threadCount = count
}

func (self *Host) StorageUnit() unit.StorageUnit {
	return self.storageUnit
}

// Handle returns the dispatcher handle of the unit, or 0 if it is
// not registered.
func (self *Host) Handle() native.Handle {
	defer self.handleLock.RLocked()()
	return self.handle
}

func (self *Host) State() State {
	return State(atomic.LoadInt32(&self.state))
}

func (self *Host) setState(state State) {
	mlog.Printf2("host/host", "h.setState %v", state)
	atomic.StoreInt32(&self.state, int32(state))
}

// DispatcherError returns the error which stopped the dispatcher, if
// any.
func (self *Host) DispatcherError() native.Errno {
	defer self.handleLock.RLocked()()
	if self.handle == 0 {
		return self.lastError
	}
	return self.api.StorageUnitGetDispatcherError(self.handle)
}

// callHook calls lifecycle hook of the storage unit; panics are
// faults just like returned errors.
func (self *Host) callHook(name string, hook func(host unit.Host) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("%s panic: %v", name, r)
		}
		if err != nil {
			mlog.Printf2("host/host", "%s fault: %v", name, err)
		}
	}()
	return hook(self)
}

// Start registers the unit and starts dispatching to it. pipeName
// chooses the front end ("" is in-process only) and debugLog is the
// per request kind debug log mask. The returned error is always
// native.Errno. If Start fails before the unit could be started, a
// unit that is an io.Closer is closed, as Stopped will never be called.
func (self *Host) Start(pipeName string, debugLog uint32) error {
	defer self.disposeLock.Locked()()
	if self.State() != StateIdle {
		return native.ErrorInvalidParameter
	}
	if self.api == nil {
		self.api = native.Default()
	}
	mlog.Printf2("host/host", "h.Start %s %v", pipeName, self.Guid())
	if self.callHook("Init", self.storageUnit.Init) != nil {
		self.closeUnit()
		return native.ErrorUnhandledException
	}
	if self.params.MaxTransferLength == 0 && self.params.BlockLength != 0 {
		self.params.MaxTransferLength = uint32(util.IMax(1, DefaultMaxTransferBytes/int(self.params.BlockLength)))
	}
	h, errno := self.api.StorageUnitCreate(pipeName, &self.params, &trampolines)
	if errno != native.ErrorSuccess {
		mlog.Printf2("host/host", " create failed: %v", errno)
		self.closeUnit()
		return errno
	}
	native.SetUserContext(h, self.storageUnit)
	unlock := self.handleLock.Locked()
	self.handle = h
	unlock()
	self.buffers = newThreadBuffers()
	self.api.StorageUnitSetBufferAllocator(h, self.buffers.alloc, self.buffers.free)
	self.api.StorageUnitSetDebugLog(h, debugLog)
	self.setState(StateStarted)

	if self.callHook("Started", self.storageUnit.Started) != nil {
		self.teardown()
		return native.ErrorUnhandledException
	}
	errno = self.api.StorageUnitStartDispatcher(h, self.threadCount)
	if errno != native.ErrorSuccess {
		mlog.Printf2("host/host", " start dispatcher failed: %v", errno)
		self.teardown()
		return errno
	}
	atomic.CompareAndSwapInt32(&self.state, int32(StateStarted), int32(StateDispatching))
	runtime.SetFinalizer(self, (*Host).finalize)
	return nil
}

func (self *Host) closeUnit() {
	c, ok := self.storageUnit.(io.Closer)
	if !ok {
		return
	}
	if err := c.Close(); err != nil {
		mlog.Printf2("host/host", " unit close failed: %v", err)
	}
}

// Shutdown asks the dispatcher to stop; requests in flight are
// finished. It may be called any number of times from anywhere,
// including before Start and after Wait.
func (self *Host) Shutdown() {
	defer self.handleLock.RLocked()()
	if self.handle == 0 {
		return
	}
	mlog.Printf2("host/host", "h.Shutdown")
	if !atomic.CompareAndSwapInt32(&self.state, int32(StateDispatching), int32(StateShuttingDown)) {
		// Start has not finished yet; it must not move to
		// Dispatching after this
		atomic.CompareAndSwapInt32(&self.state, int32(StateStarted), int32(StateShuttingDown))
	}
	self.api.StorageUnitShutdownDispatcher(self.handle)
}

// Wait blocks until the dispatcher has stopped, and then releases
// the unit. The storage unit Stopped hook is called exactly once,
// and its faults are ignored.
func (self *Host) Wait() {
	defer self.disposeLock.Locked()()
	runtime.SetFinalizer(self, nil)
	self.teardown()
}

// Close is Shutdown followed by Wait.
func (self *Host) Close() {
	self.Shutdown()
	self.Wait()
}

func (self *Host) finalize() {
	mlog.Printf2("host/host", "h.finalize %v", self.Guid())
	self.Close()
}

// teardown must be called with disposeLock held.
func (self *Host) teardown() {
	h := self.Handle()
	if h == 0 {
		return
	}
	self.api.StorageUnitWaitDispatcher(h)
	self.callHook("Stopped", self.storageUnit.Stopped)

	defer self.handleLock.Locked()()
	self.lastError = self.api.StorageUnitGetDispatcherError(h)
	native.DeleteUserContext(h)
	self.api.StorageUnitDelete(h)
	self.handle = 0
	self.setState(StateStopped)
	mlog.Printf2("host/host", " released %#x", h)
}
