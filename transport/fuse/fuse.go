/*
 * Author: Markus Stenberg <fingon@iki.fi>
 *
 * Copyright (c) 2019 Markus Stenberg
 *
 * Created:       Thu Feb 21 10:02:55 2019 mstenber
 * Last modified: Thu Feb 21 12:31:07 2019 mstenber
 * Edit time:     66 min
 *
 */

// fuse exposes storage unit as a single file called disk in a FUSE
// mount. The file can be then used with e.g. losetup, or just read
// and written as it is.
package fuse

import (
	"context"
	"syscall"

	"github.com/fingon/go-spd/dispatcher"
	"github.com/fingon/go-spd/mlog"
	"github.com/fingon/go-spd/scsi"
	"github.com/fingon/go-spd/util"
	gofuse "github.com/hanwen/go-fuse/fuse"
	"github.com/hanwen/go-fuse/fuse/nodefs"
	"github.com/hanwen/go-fuse/fuse/pathfs"
	"github.com/pkg/errors"
)

const DiskName = "disk"

// fallocate(2) mode bits
const (
	fallocKeepSize  = 0x1
	fallocPunchHole = 0x2
)

func init() {
	dispatcher.RegisterFrontend("fuse", func(target string, queue *dispatcher.Queue) (dispatcher.Frontend, error) {
		f, err := Mount(target, queue)
		if err != nil {
			return nil, err
		}
		return f, nil
	})
}

// Frontend is a mounted unit.
type Frontend struct {
	device *device
	server *gofuse.Server
	cancel context.CancelFunc
	wg     util.SimpleWaitGroup
}

// Mount mounts the unit behind queue at directory dir.
func Mount(dir string, queue *dispatcher.Queue) (*Frontend, error) {
	mlog.Printf2("transport/fuse/fuse", "Mount %s", dir)
	ctx, cancel := context.WithCancel(context.Background())
	d := newDevice(ctx, queue)
	fs := &diskFs{FileSystem: pathfs.NewDefaultFileSystem(), device: d}
	nfs := pathfs.NewPathNodeFs(fs, nil)
	conn := nodefs.NewFileSystemConnector(nfs.Root(), nil)
	opts := &gofuse.MountOptions{Name: "spd", FsName: dir}
	if mlog.IsEnabled() {
		opts.Debug = true
	}
	server, err := gofuse.NewServer(conn.RawFS(), dir, opts)
	if err != nil {
		cancel()
		return nil, errors.Wrapf(err, "mount %s", dir)
	}
	self := &Frontend{device: d, server: server, cancel: cancel}
	self.wg.Go(server.Serve)
	if err = server.WaitMount(); err != nil {
		self.Close()
		return nil, errors.Wrapf(err, "mount %s", dir)
	}
	return self, nil
}

func (self *Frontend) Close() error {
	mlog.Printf2("transport/fuse/fuse", "f.Close")
	self.cancel()
	err := self.server.Unmount()
	self.wg.Wait()
	return err
}

// statusOf maps error of a request to what the file system reports.
func statusOf(err error) gofuse.Status {
	if err == nil {
		return gofuse.OK
	}
	se, ok := errors.Cause(err).(*StatusError)
	if !ok {
		return gofuse.EIO
	}
	switch se.Status.SenseKey {
	case scsi.SenseDataProtect:
		return gofuse.Status(syscall.EROFS)
	case scsi.SenseIllegalRequest:
		return gofuse.EINVAL
	}
	return gofuse.EIO
}

type diskFs struct {
	pathfs.FileSystem
	device *device
}

func (self *diskFs) String() string {
	return "spd"
}

func (self *diskFs) mode() uint32 {
	if self.device.params.WriteProtected() {
		return 0444
	}
	return 0644
}

func (self *diskFs) GetAttr(name string, context *gofuse.Context) (*gofuse.Attr, gofuse.Status) {
	switch name {
	case "":
		return &gofuse.Attr{Mode: gofuse.S_IFDIR | 0755, Nlink: 2}, gofuse.OK
	case DiskName:
		size := self.device.Size()
		return &gofuse.Attr{Mode: gofuse.S_IFREG | self.mode(),
			Nlink:  1,
			Size:   size,
			Blocks: (size + 511) / 512}, gofuse.OK
	}
	return nil, gofuse.ENOENT
}

func (self *diskFs) OpenDir(name string, context *gofuse.Context) ([]gofuse.DirEntry, gofuse.Status) {
	if name != "" {
		return nil, gofuse.ENOENT
	}
	return []gofuse.DirEntry{{Name: DiskName, Mode: gofuse.S_IFREG}}, gofuse.OK
}

func (self *diskFs) Open(name string, flags uint32, context *gofuse.Context) (nodefs.File, gofuse.Status) {
	if name != DiskName {
		return nil, gofuse.ENOENT
	}
	if flags&(syscall.O_WRONLY|syscall.O_RDWR) != 0 && self.device.params.WriteProtected() {
		return nil, gofuse.Status(syscall.EROFS)
	}
	return &diskFile{File: nodefs.NewDefaultFile(), device: self.device}, gofuse.OK
}

// Truncate accepts only the current size.
func (self *diskFs) Truncate(name string, size uint64, context *gofuse.Context) gofuse.Status {
	if name != DiskName {
		return gofuse.ENOENT
	}
	if size != self.device.Size() {
		return gofuse.EINVAL
	}
	return gofuse.OK
}

type diskFile struct {
	nodefs.File
	device *device
}

func (self *diskFile) String() string {
	return DiskName
}

func (self *diskFile) GetAttr(out *gofuse.Attr) gofuse.Status {
	size := self.device.Size()
	out.Mode = gofuse.S_IFREG | 0644
	if self.device.params.WriteProtected() {
		out.Mode = gofuse.S_IFREG | 0444
	}
	out.Nlink = 1
	out.Size = size
	out.Blocks = (size + 511) / 512
	return gofuse.OK
}

func (self *diskFile) Read(dest []byte, off int64) (gofuse.ReadResult, gofuse.Status) {
	n, err := self.device.ReadAt(dest, off)
	if err != nil {
		return nil, statusOf(err)
	}
	return gofuse.ReadResultData(dest[:n]), gofuse.OK
}

func (self *diskFile) Write(data []byte, off int64) (uint32, gofuse.Status) {
	n, err := self.device.WriteAt(data, off)
	if err != nil {
		return uint32(n), statusOf(err)
	}
	if n == 0 && len(data) > 0 {
		return 0, gofuse.Status(syscall.ENOSPC)
	}
	return uint32(n), gofuse.OK
}

func (self *diskFile) Fsync(flags int) gofuse.Status {
	return statusOf(self.device.Flush())
}

func (self *diskFile) Flush() gofuse.Status {
	return gofuse.OK
}

func (self *diskFile) Truncate(size uint64) gofuse.Status {
	if size != self.device.Size() {
		return gofuse.EINVAL
	}
	return gofuse.OK
}

func (self *diskFile) Allocate(off uint64, size uint64, mode uint32) gofuse.Status {
	if mode&fallocPunchHole == 0 {
		// Everything is allocated already
		if off+size > self.device.Size() {
			return gofuse.Status(syscall.ENOSPC)
		}
		return gofuse.OK
	}
	if mode&fallocKeepSize == 0 {
		return gofuse.EINVAL
	}
	if !self.device.params.UnmapSupported() {
		return gofuse.Status(syscall.EOPNOTSUPP)
	}
	return statusOf(self.device.Punch(off, size))
}
