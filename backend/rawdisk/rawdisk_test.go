/*
 * Author: Markus Stenberg <fingon@iki.fi>
 *
 * Copyright (c) 2019 Markus Stenberg
 *
 * Created:       Tue Feb 19 18:20:40 2019 mstenber
 * Last modified: Wed Feb 20 12:20:17 2019 mstenber
 * Edit time:     25 min
 *
 */

package rawdisk

import (
	"bytes"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/fingon/go-spd/host"
	"github.com/fingon/go-spd/native"
	"github.com/fingon/go-spd/scsi"
	"github.com/fingon/go-spd/unit"
	"github.com/pkg/errors"
	"github.com/stvp/assert"
)

type paramsHost struct {
	params unit.Params
}

func (self *paramsHost) Params() *unit.Params {
	return &self.params
}

func TestRawDisk(t *testing.T) {
	t.Parallel()
	dir, err := ioutil.TempDir("", "spd-rawdisk")
	assert.Nil(t, err)
	defer os.RemoveAll(dir)
	path := filepath.Join(dir, "disk")

	rd, err := New(path, 1024, 512)
	assert.Nil(t, err)
	fi, err := os.Stat(path)
	assert.Nil(t, err)
	assert.Equal(t, fi.Size(), int64(1024*512))

	var h paramsHost
	assert.Nil(t, rd.Init(&h))
	assert.Equal(t, h.params.BlockCount, uint64(1024))
	assert.Equal(t, h.params.MaxTransferLength, uint32(128))

	var st scsi.Status
	mbr := make([]byte, 512)
	assert.Nil(t, rd.Read(mbr, 0, 1, true, &st))
	assert.Equal(t, mbr[510], uint8(0x55))
	assert.Equal(t, mbr[511], uint8(0xAA))
	assert.Equal(t, mbr[446+4], uint8(PartitionType))
	// Partition starts at 4096 bytes
	assert.Equal(t, mbr[446+8], uint8(8))

	data := bytes.Repeat([]byte("r"), 4*512)
	assert.Nil(t, rd.Write(data, 100, 4, true, &st))
	got := make([]byte, 4*512)
	assert.Nil(t, rd.Read(got, 100, 4, false, &st))
	assert.Equal(t, got, data)

	assert.Nil(t, rd.Unmap([]scsi.UnmapDescriptor{{BlockAddress: 101, BlockCount: 2}}, &st))
	assert.Nil(t, rd.Read(got, 100, 4, false, &st))
	assert.Equal(t, got[:512], data[:512])
	assert.Equal(t, got[512:3*512], make([]byte, 2*512))
	assert.Equal(t, got[3*512:], data[3*512:])

	// Zero-filling works as well
	rd.punchHole = 0
	assert.Nil(t, rd.Unmap([]scsi.UnmapDescriptor{{BlockAddress: 100, BlockCount: 1}}, &st))
	assert.Nil(t, rd.Read(got, 100, 1, false, &st))
	assert.Equal(t, got[:512], make([]byte, 512))
	assert.True(t, st.Good())
	assert.Nil(t, rd.Stopped(&h))

	// Reopening keeps the content
	rd, err = New(path, 1024, 512)
	assert.Nil(t, err)
	assert.Nil(t, rd.Read(got, 103, 1, false, &st))
	assert.Equal(t, got[:512], data[:512])
	assert.Nil(t, rd.Stopped(&h))

	_, err = New(path, 1000, 512)
	assert.Equal(t, errors.Cause(err), ErrInvalidSize)
	_, err = New(path, 0, 512)
	assert.Equal(t, errors.Cause(err), ErrInvalidSize)
}

func TestRawDiskFailedStart(t *testing.T) {
	t.Parallel()
	dir, err := ioutil.TempDir("", "spd-rawdisk")
	assert.Nil(t, err)
	defer os.RemoveAll(dir)

	rd, err := New(filepath.Join(dir, "disk"), 64, 512)
	assert.Nil(t, err)
	assert.Equal(t, host.New(rd).Start("nosuchscheme:x", 0), native.ErrorFileNotFound)
	// File is closed already
	_, err = rd.file.Stat()
	assert.True(t, err != nil)
	assert.Nil(t, rd.Close())
	var h paramsHost
	assert.Nil(t, rd.Stopped(&h))
}
