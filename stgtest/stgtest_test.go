/*
 * Author: Markus Stenberg <fingon@iki.fi>
 *
 * Copyright (c) 2019 Markus Stenberg
 *
 * Created:       Thu Feb 21 17:30:12 2019 mstenber
 * Last modified: Thu Feb 21 18:02:40 2019 mstenber
 * Edit time:     22 min
 *
 */

package stgtest

import (
	"context"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/fingon/go-spd/backend"
	"github.com/fingon/go-spd/backend/inmemory"
	"github.com/fingon/go-spd/dispatcher"
	"github.com/fingon/go-spd/host"
	"github.com/fingon/go-spd/scsi"
	"github.com/fingon/go-spd/unit"
	"github.com/stvp/assert"
)

type corruptingUnit struct {
	*backend.BlockStoreUnit
}

func (self corruptingUnit) Read(buffer []byte, blockAddress uint64, blockCount uint32, flush bool, status *scsi.Status) error {
	err := self.BlockStoreUnit.Read(buffer, blockAddress, blockCount, flush, status)
	buffer[0] ^= 1
	return err
}

func ProdTester(t *testing.T, u unit.StorageUnit, unmap bool, tester Tester) (int, error) {
	dir, err := ioutil.TempDir("", "stgtest")
	assert.Nil(t, err)
	defer os.RemoveAll(dir)
	tester.Name = filepath.Join(dir, "unit.sock")

	h := host.New(u)
	h.SetCacheSupported(true)
	h.SetUnmapSupported(unmap)
	err = h.Start("pipe:"+tester.Name, 0)
	assert.Nil(t, err)
	defer h.Close()
	return tester.Run(context.Background())
}

func newUnit() *backend.BlockStoreUnit {
	return backend.NewBlockStoreUnit(inmemory.NewInMemoryStore(), 4096, 512)
}

func TestHashMix(t *testing.T) {
	t.Parallel()
	data := make([]byte, 2*512)
	fill(data, 512, 7, 2)
	assert.True(t, verifyWritten(data, 512, 7, 2))
	assert.True(t, !verifyWritten(data, 512, 8, 2))
	data[600] ^= 1
	assert.True(t, !verifyWritten(data, 512, 7, 2))
}

func TestOpKinds(t *testing.T) {
	t.Parallel()
	assert.Equal(t, (&Tester{}).opKinds(), []dispatcher.Kind{dispatcher.KindWrite, dispatcher.KindRead})
	assert.Equal(t, (&Tester{OpSet: "rWfu"}).opKinds(),
		[]dispatcher.Kind{dispatcher.KindRead, dispatcher.KindWrite, dispatcher.KindFlush, dispatcher.KindUnmap})
}

func TestRun(t *testing.T) {
	t.Parallel()
	ops, err := ProdTester(t, newUnit(), true, Tester{OpCount: 400,
		OpSet:        "WRFUR",
		BlockAddress: Random,
		BlockCount:   Random,
		Threads:      4})
	assert.Nil(t, err)
	assert.Equal(t, ops, 400)
}

func TestSequential(t *testing.T) {
	t.Parallel()
	ops, err := ProdTester(t, newUnit(), false, Tester{OpCount: 100,
		BlockAddress: 4000,
		BlockCount:   200})
	assert.Nil(t, err)
	assert.Equal(t, ops, 100)
}

func TestFailures(t *testing.T) {
	t.Parallel()
	_, err := ProdTester(t, corruptingUnit{newUnit()}, true, Tester{OpCount: 10, BlockCount: 1})
	assert.True(t, err != nil)
	f, ok := err.(*Failure)
	assert.True(t, ok)
	assert.Equal(t, f.Kind, dispatcher.KindRead)
	assert.Equal(t, f.Description, "bad buffer after Write")

	_, err = ProdTester(t, newUnit(), false, Tester{OpCount: 10, OpSet: "U"})
	f, ok = err.(*Failure)
	assert.True(t, ok)
	assert.Equal(t, f.Kind, dispatcher.KindUnmap)
	assert.Equal(t, f.Status.SenseKey, uint8(scsi.SenseIllegalRequest))
}
