/*
 * Author: Markus Stenberg <fingon@iki.fi>
 *
 * Copyright (c) 2019 Markus Stenberg
 *
 * Created:       Thu Feb 21 11:02:18 2019 mstenber
 * Last modified: Thu Feb 21 12:40:52 2019 mstenber
 * Edit time:     29 min
 *
 */

package fuse

import (
	"bytes"
	"context"
	"syscall"
	"testing"

	"github.com/fingon/go-spd/backend"
	"github.com/fingon/go-spd/backend/inmemory"
	"github.com/fingon/go-spd/dispatcher"
	"github.com/fingon/go-spd/host"
	"github.com/fingon/go-spd/scsi"
	"github.com/fingon/go-spd/util"
	gofuse "github.com/hanwen/go-fuse/fuse"
	"github.com/pkg/errors"
	"github.com/stvp/assert"
)

// 1024 blocks of 512 bytes, 128 blocks per transfer
func newTestDevice(t *testing.T, writeProtected bool) (*device, func()) {
	h := host.New(backend.NewBlockStoreUnit(inmemory.NewInMemoryStore(), 1024, 512))
	h.SetUnmapSupported(true)
	h.SetCacheSupported(true)
	h.SetWriteProtected(writeProtected)
	err := h.Start("", 0)
	assert.Nil(t, err)
	q := dispatcher.Lookup(h.Guid())
	assert.True(t, q != nil)
	return newDevice(context.Background(), q), h.Close
}

func TestChunks(t *testing.T) {
	t.Parallel()
	d := &device{}
	d.params.BlockLength = 512
	d.params.MaxTransferLength = 4
	type chunk struct {
		address uint64
		count   uint32
		skip, n int
	}
	var got []chunk
	d.chunks(100, 100+4096, func(address uint64, count uint32, skip, n int) error {
		got = append(got, chunk{address, count, skip, n})
		return nil
	})
	assert.Equal(t, got, []chunk{{0, 4, 100, 1948}, {4, 4, 0, 2048}, {8, 1, 0, 100}})
}

func TestReadWrite(t *testing.T) {
	t.Parallel()
	d, done := newTestDevice(t, false)
	defer done()
	size := int(d.Size())
	assert.Equal(t, size, 1024*512)

	rng := util.GetSeededRng()
	data := make([]byte, 200000)
	rng.Read(data)
	n, err := d.WriteAt(data, 1000)
	assert.Nil(t, err)
	assert.Equal(t, n, len(data))

	got := make([]byte, len(data)+2000)
	n, err = d.ReadAt(got, 0)
	assert.Nil(t, err)
	assert.Equal(t, n, len(got))
	assert.Equal(t, got[:1000], make([]byte, 1000))
	assert.Equal(t, got[1000:1000+len(data)], data)
	assert.Equal(t, got[1000+len(data):], make([]byte, 1000))

	// Small write within single block keeps the rest
	n, err = d.WriteAt([]byte{1, 2, 3}, 1001)
	assert.Nil(t, err)
	assert.Equal(t, n, 3)
	n, err = d.ReadAt(got[:10], 998)
	assert.Nil(t, err)
	assert.Equal(t, got[:10], []byte{0, 0, data[0], 1, 2, 3, data[4], data[5], data[6], data[7]})

	// Past the end
	n, err = d.ReadAt(got, int64(size-100))
	assert.Nil(t, err)
	assert.Equal(t, n, 100)
	n, err = d.WriteAt(got, int64(size))
	assert.Nil(t, err)
	assert.Equal(t, n, 0)

	assert.Nil(t, d.Flush())
}

func TestPunch(t *testing.T) {
	t.Parallel()
	d, done := newTestDevice(t, false)
	defer done()
	data := bytes.Repeat([]byte{7}, 8192)
	_, err := d.WriteAt(data, 0)
	assert.Nil(t, err)

	err = d.Punch(1000, 5000)
	assert.Nil(t, err)
	got := make([]byte, 8192)
	_, err = d.ReadAt(got, 0)
	assert.Nil(t, err)
	assert.Equal(t, got[:1000], data[:1000])
	assert.Equal(t, got[1000:6000], make([]byte, 5000))
	assert.Equal(t, got[6000:], data[6000:])

	// Within single block
	err = d.Punch(10, 20)
	assert.Nil(t, err)
	_, err = d.ReadAt(got[:40], 0)
	assert.Nil(t, err)
	assert.Equal(t, got[10:30], make([]byte, 20))
	assert.Equal(t, got[30:40], data[30:40])
}

func TestWriteProtected(t *testing.T) {
	t.Parallel()
	d, done := newTestDevice(t, true)
	defer done()
	_, err := d.WriteAt([]byte{1}, 0)
	assert.True(t, err != nil)
	assert.Equal(t, statusOf(err), gofuse.Status(syscall.EROFS))

	_, err = d.ReadAt(make([]byte, 10), 0)
	assert.Nil(t, err)
}

func TestStatusOf(t *testing.T) {
	t.Parallel()
	assert.Equal(t, statusOf(nil), gofuse.OK)
	assert.Equal(t, statusOf(dispatcher.ErrShutdown), gofuse.EIO)
	se := &StatusError{Kind: dispatcher.KindRead}
	se.Status.SetSense(scsi.SenseMediumError, scsi.ASCUnrecoveredError)
	assert.Equal(t, statusOf(errors.Wrap(se, "read")), gofuse.EIO)
	se.Status.SetSense(scsi.SenseIllegalRequest, scsi.ASCIllegalBlock)
	assert.Equal(t, statusOf(se), gofuse.EINVAL)
}
