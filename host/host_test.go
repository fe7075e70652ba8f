/*
 * Author: Markus Stenberg <fingon@iki.fi>
 *
 * Copyright (c) 2019 Markus Stenberg
 *
 * Created:       Mon Feb 18 15:12:09 2019 mstenber
 * Last modified: Wed Feb 20 10:20:51 2019 mstenber
 * Edit time:     96 min
 *
 */

package host

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/fingon/go-spd/dispatcher"
	"github.com/fingon/go-spd/native"
	"github.com/fingon/go-spd/scsi"
	"github.com/fingon/go-spd/unit"
	"github.com/fingon/go-spd/util"
	"github.com/pkg/errors"
	"github.com/stvp/assert"
)

var errTest = errors.New("test fault")

// testUnit is all-zeroes storage unit with fault injection.
type testUnit struct {
	unit.Base
	blockCount  uint64
	initErr     error
	startedErr  error
	stoppedErr  error
	writeErr    error
	readDelay   time.Duration
	initCalls   util.AtomicInt
	stoppedCall util.AtomicInt
	ioCalls     util.AtomicInt
	lateCalls   util.AtomicInt
	handle      native.Handle
}

func (self *testUnit) Init(host unit.Host) error {
	self.initCalls.Inc()
	p := host.Params()
	p.BlockCount = self.blockCount
	if p.BlockCount == 0 {
		p.BlockCount = 1024
	}
	p.BlockLength = 512
	p.SetCacheSupported(true)
	p.SetUnmapSupported(true)
	return self.initErr
}

func (self *testUnit) Started(host unit.Host) error {
	self.handle = host.(*Host).Handle()
	return self.startedErr
}

func (self *testUnit) Stopped(host unit.Host) error {
	self.stoppedCall.Inc()
	if self.stoppedErr != nil {
		panic(self.stoppedErr)
	}
	return nil
}

func (self *testUnit) io() {
	self.ioCalls.Inc()
	if self.stoppedCall.Get() > 0 {
		self.lateCalls.Inc()
	}
}

func (self *testUnit) Read(buffer []byte, blockAddress uint64, blockCount uint32, flush bool, status *scsi.Status) error {
	self.io()
	if self.readDelay > 0 {
		time.Sleep(self.readDelay)
	}
	for i := range buffer {
		buffer[i] = 0
	}
	return nil
}

func (self *testUnit) Write(buffer []byte, blockAddress uint64, blockCount uint32, flush bool, status *scsi.Status) error {
	self.io()
	return self.writeErr
}

func (self *testUnit) Flush(blockAddress uint64, blockCount uint32, status *scsi.Status) error {
	self.io()
	return nil
}

func TestShutdownBeforeStart(t *testing.T) {
	t.Parallel()
	h := New(&testUnit{})
	h.Shutdown()
	h.Shutdown()
	assert.Equal(t, h.State(), StateIdle)
	h.Wait()
	h.Close()
	assert.Equal(t, h.State(), StateIdle)
	assert.Equal(t, h.Handle(), native.Handle(0))
	assert.Equal(t, h.DispatcherError(), native.ErrorSuccess)
}

func TestStartFailures(t *testing.T) {
	t.Parallel()
	u := &testUnit{initErr: errTest}
	h := New(u)
	assert.Equal(t, h.Start("", 0), native.ErrorUnhandledException)
	assert.Equal(t, h.State(), StateIdle)
	assert.Equal(t, u.stoppedCall.GetInt(), 0)

	// Registration failure keeps the native code
	u = &testUnit{}
	h = New(u)
	assert.Equal(t, h.Start("nosuchscheme:x", 0), native.ErrorFileNotFound)
	assert.Equal(t, h.State(), StateIdle)
	assert.Equal(t, h.Handle(), native.Handle(0))
	assert.Equal(t, u.stoppedCall.GetInt(), 0)

	u = &testUnit{startedErr: errTest}
	h = New(u)
	assert.Equal(t, h.Start("", 0), native.ErrorUnhandledException)
	assert.Equal(t, h.State(), StateStopped)
	assert.Equal(t, u.stoppedCall.GetInt(), 1)
	assert.True(t, u.handle != 0)
	assert.True(t, native.GetUserContext(u.handle) == nil)
	assert.True(t, dispatcher.QueueOf(u.handle) == nil)

	u = &testUnit{}
	h = New(u)
	h.SetThreadCount(dispatcher.MaxThreadCount + 1)
	assert.Equal(t, h.Start("", 0), native.ErrorInvalidParameter)
	assert.Equal(t, u.stoppedCall.GetInt(), 1)
	assert.Equal(t, h.Handle(), native.Handle(0))

	// Stopped hook faults do not prevent teardown
	u = &testUnit{stoppedErr: errTest}
	h = New(u)
	assert.Nil(t, h.Start("", 0))
	assert.Equal(t, h.Start("", 0), native.ErrorInvalidParameter)
	assert.Equal(t, u.initCalls.GetInt(), 1)
	handle := h.Handle()
	h.Close()
	assert.Equal(t, u.stoppedCall.GetInt(), 1)
	assert.Equal(t, h.Handle(), native.Handle(0))
	assert.True(t, dispatcher.QueueOf(handle) == nil)
	h.Close()
	assert.Equal(t, u.stoppedCall.GetInt(), 1)
}

type shutdownOnStart struct {
	*testUnit
}

func (self *shutdownOnStart) Started(host unit.Host) error {
	host.(*Host).Shutdown()
	return self.testUnit.Started(host)
}

func TestShutdownWhileStarting(t *testing.T) {
	t.Parallel()
	u := &testUnit{}
	h := New(&shutdownOnStart{u})
	assert.Nil(t, h.Start("", 0))
	assert.Equal(t, h.State(), StateShuttingDown)
	q := dispatcher.Lookup(h.Guid())
	assert.True(t, q != nil)
	_, err := q.Submit(context.Background(),
		dispatcher.Request{Kind: dispatcher.KindRead, BlockCount: 1},
		make([]byte, 512))
	assert.Equal(t, err, dispatcher.ErrShutdown)
	h.Wait()
	assert.Equal(t, h.State(), StateStopped)
	assert.Equal(t, u.stoppedCall.GetInt(), 1)
}

type closerUnit struct {
	testUnit
	closes util.AtomicInt
}

func (self *closerUnit) Close() error {
	self.closes.Inc()
	return nil
}

func TestCloseAfterFailedStart(t *testing.T) {
	t.Parallel()
	u := &closerUnit{testUnit: testUnit{initErr: errTest}}
	assert.Equal(t, New(u).Start("", 0), native.ErrorUnhandledException)
	assert.Equal(t, u.closes.GetInt(), 1)

	u = &closerUnit{}
	assert.Equal(t, New(u).Start("nosuchscheme:x", 0), native.ErrorFileNotFound)
	assert.Equal(t, u.closes.GetInt(), 1)
	assert.Equal(t, u.stoppedCall.GetInt(), 0)

	// Once started, releasing is up to Stopped
	u = &closerUnit{}
	h := New(u)
	assert.Nil(t, h.Start("", 0))
	h.Close()
	assert.Equal(t, u.stoppedCall.GetInt(), 1)
	assert.Equal(t, u.closes.GetInt(), 0)
}

func TestInvalidParams(t *testing.T) {
	t.Parallel()
	u := &testUnit{blockCount: 0}
	h := New(&zeroGeometry{u})
	assert.Equal(t, h.Start("", 0), native.ErrorInvalidParameter)
	assert.Equal(t, h.State(), StateIdle)
}

type zeroGeometry struct {
	*testUnit
}

func (self *zeroGeometry) Init(host unit.Host) error {
	host.Params().BlockLength = 0
	return nil
}

func TestThrowingWrite(t *testing.T) {
	t.Parallel()
	u := &testUnit{writeErr: errTest}
	h := New(u)
	assert.Nil(t, h.Start("", 0))
	defer h.Close()
	q := dispatcher.Lookup(h.Guid())
	assert.True(t, q != nil)
	st, err := q.Submit(context.Background(),
		dispatcher.Request{Kind: dispatcher.KindWrite, BlockAddress: 1, BlockCount: 2},
		make([]byte, 1024))
	assert.Nil(t, err)
	assert.Equal(t, st.ScsiStatus, uint8(scsi.StatusCheckCondition))
	assert.Equal(t, st.SenseKey, uint8(scsi.SenseMediumError))
	assert.Equal(t, st.ASC, uint8(scsi.ASCWriteError))

	// The unit recovers once its writes do
	u.writeErr = nil
	st, err = q.Submit(context.Background(),
		dispatcher.Request{Kind: dispatcher.KindWrite, BlockCount: 1},
		make([]byte, 512))
	assert.Nil(t, err)
	assert.True(t, st.Good())
	assert.Equal(t, h.DispatcherError(), native.ErrorSuccess)
}

type faultyUnit struct {
	unit.Base
	unmaps util.AtomicInt
}

func (self *faultyUnit) Read(buffer []byte, blockAddress uint64, blockCount uint32, flush bool, status *scsi.Status) error {
	panic("read")
}

func (self *faultyUnit) Flush(blockAddress uint64, blockCount uint32, status *scsi.Status) error {
	return errTest
}

func (self *faultyUnit) Unmap(descriptors []scsi.UnmapDescriptor, status *scsi.Status) error {
	self.unmaps.Inc()
	panic("unmap")
}

func TestTrampolines(t *testing.T) {
	t.Parallel()
	// Far outside anything the dispatcher hands out
	const handle = native.Handle(1 << 40)
	u := &faultyUnit{}
	native.SetUserContext(handle, u)
	defer native.DeleteUserContext(handle)

	var st scsi.Status
	assert.True(t, trampolines.Read(handle, make([]byte, 512), 0, 1, false, &st))
	assert.Equal(t, st.SenseKey, uint8(scsi.SenseMediumError))
	assert.Equal(t, st.ASC, uint8(scsi.ASCUnrecoveredError))

	st = scsi.Status{}
	assert.True(t, trampolines.Flush(handle, 0, 0, &st))
	assert.Equal(t, st.SenseKey, uint8(scsi.SenseMediumError))
	assert.Equal(t, st.ASC, uint8(scsi.ASCWriteError))

	st = scsi.Status{}
	assert.True(t, trampolines.Write(handle, make([]byte, 512), 0, 1, false, &st))
	assert.Equal(t, st.SenseKey, uint8(scsi.SenseIllegalRequest))
	assert.Equal(t, st.ASC, uint8(scsi.ASCIllegalCommand))

	// Unmap faults are not reported
	st = scsi.Status{}
	assert.True(t, trampolines.Unmap(handle, []scsi.UnmapDescriptor{{BlockAddress: 1, BlockCount: 1}}, &st))
	assert.True(t, st.Good())
	assert.Equal(t, st, scsi.Status{})
	assert.Equal(t, u.unmaps.GetInt(), 1)

	// Empty unmap does not reach the unit
	st = scsi.Status{}
	assert.True(t, trampolines.Unmap(handle, nil, &st))
	assert.Equal(t, st, scsi.Status{})
	assert.Equal(t, u.unmaps.GetInt(), 1)
}

func TestConcurrentShutdown(t *testing.T) {
	t.Parallel()
	u := &testUnit{readDelay: 20 * time.Millisecond}
	h := New(u)
	assert.Nil(t, h.Start("", 0))
	q := dispatcher.Lookup(h.Guid())

	var readers sync.WaitGroup
	for i := 0; i < 8; i++ {
		readers.Add(1)
		go func() {
			defer readers.Done()
			q.Submit(context.Background(),
				dispatcher.Request{Kind: dispatcher.KindRead, BlockCount: 1},
				make([]byte, 512))
		}()
	}
	// Let some of the reads get in
	time.Sleep(5 * time.Millisecond)

	var wg sync.WaitGroup
	stop := make(chan struct{})
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				h.Shutdown()
				select {
				case <-stop:
					return
				default:
				}
			}
		}()
	}
	h.Wait()
	close(stop)
	wg.Wait()
	readers.Wait()
	h.Shutdown()
	h.Wait()
	assert.Equal(t, h.State(), StateStopped)
	assert.Equal(t, u.stoppedCall.GetInt(), 1)
	assert.Equal(t, u.lateCalls.GetInt(), 0)
	assert.True(t, u.ioCalls.GetInt() > 0)
}

func TestEndToEnd(t *testing.T) {
	t.Parallel()
	u := &testUnit{}
	h := New(u)
	assert.Equal(t, h.ThreadCount(), uint32(DefaultThreadCount))
	assert.Nil(t, h.Start("", 0))
	assert.Equal(t, h.State(), StateDispatching)
	assert.Equal(t, h.BlockCount(), uint64(1024))
	assert.Equal(t, h.BlockLength(), uint32(512))
	assert.Equal(t, h.MaxTransferLength(), uint32(DefaultMaxTransferBytes/512))
	q := dispatcher.Lookup(h.Guid())
	assert.True(t, q != nil)

	rng := util.GetSeededRng()
	type op struct {
		address uint64
		count   uint32
	}
	ops := make([]op, 1000)
	for i := range ops {
		ops[i].address, ops[i].count = util.RandomBlockRange(rng, h.BlockCount(), h.MaxTransferLength())
	}
	var failures util.AtomicInt
	var wg util.SimpleWaitGroup
	wg.GoN(len(ops), func(i int) {
		o := ops[i]
		buf := make([]byte, int(o.count)*512)
		st, err := q.Submit(context.Background(),
			dispatcher.Request{Kind: dispatcher.KindRead, BlockAddress: o.address, BlockCount: o.count}, buf)
		if err != nil || st.ScsiStatus != scsi.StatusGood {
			failures.Inc()
		}
	})
	wg.Wait()
	assert.Equal(t, failures.GetInt(), 0)
	assert.True(t, u.ioCalls.GetInt() >= len(ops))

	done := make(chan struct{})
	go func() {
		h.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("Close did not finish")
	}
	assert.Equal(t, h.State(), StateStopped)
	assert.Equal(t, u.stoppedCall.GetInt(), 1)
	assert.Equal(t, u.lateCalls.GetInt(), 0)
}

func TestThreadBuffers(t *testing.T) {
	t.Parallel()
	tb := newThreadBuffers()
	b := tb.alloc(100)
	assert.True(t, len(b) >= 100)
	b2 := tb.alloc(50)
	assert.True(t, &b[0] == &b2[0])
	b3 := tb.alloc(len(b) + 1)
	assert.True(t, len(b3) > len(b))
	assert.Equal(t, tb.count(), 1)

	// Other thread can not free our buffer
	panicked := make(chan bool)
	go func() {
		defer func() {
			panicked <- recover() != nil
		}()
		tb.free(b3)
	}()
	assert.True(t, <-panicked)
	assert.Equal(t, tb.count(), 1)

	b3[len(b3)-1] = 42
	tb.free(b3)
	assert.Equal(t, tb.count(), 0)
}

func TestStatic(t *testing.T) {
	t.Parallel()
	assert.Equal(t, Version(), dispatcher.Version)
	assert.Nil(t, native.CheckVersion(native.CompiledVersion, Version()))

	buf := make([]byte, 512)
	err := DefinePartitionTable(make([]scsi.Partition, 5), buf)
	assert.Equal(t, err, native.ErrorInvalidParameter)
	err = DefinePartitionTable(nil, buf[:100])
	assert.Equal(t, err, native.ErrorInvalidParameter)
	err = DefinePartitionTable([]scsi.Partition{{Type: 7, BlockAddress: 8, BlockCount: 100}}, buf)
	assert.Nil(t, err)
	assert.Equal(t, buf[510], uint8(0x55))
	assert.Equal(t, buf[511], uint8(0xAA))
	assert.Equal(t, buf[446+4], uint8(7))
}
