/*
 * Author: Markus Stenberg <fingon@iki.fi>
 *
 * Copyright (c) 2019 Markus Stenberg
 *
 * Created:       Wed Feb 20 13:02:19 2019 mstenber
 * Last modified: Wed Feb 20 16:11:40 2019 mstenber
 * Edit time:     35 min
 *
 */

// pipe exposes storage unit over a stream socket, one client at a
// time, so that it can be exercised from user space the way the
// kernel would.
//
// Both directions carry msgpack encoded frames. Client numbers its
// requests with Hint, and responses may arrive in any order.
package pipe

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/fingon/go-spd/scsi"
	"github.com/fingon/go-spd/unit"
	msgpack "github.com/ugorji/go/codec"
)

// KindDescribe asks for the Geometry of the unit; the other kinds
// are those of dispatcher.Kind.
const KindDescribe = 0

type RequestFrame struct {
	Hint            uint64
	Kind            uint8
	BlockAddress    uint64
	BlockCount      uint32
	ForceUnitAccess bool
	Descriptors     []scsi.UnmapDescriptor
	Data            []byte
}

type ResponseFrame struct {
	Hint     uint64
	Kind     uint8
	Status   scsi.Status
	Data     []byte
	Geometry *Geometry
}

type Geometry struct {
	BlockCount        uint64
	BlockLength       uint32
	MaxTransferLength uint32
	Flags             uint32
}

func geometryOf(p *unit.Params) *Geometry {
	return &Geometry{BlockCount: p.BlockCount,
		BlockLength:       p.BlockLength,
		MaxTransferLength: p.MaxTransferLength,
		Flags:             p.Flags}
}

var mh msgpack.MsgpackHandle

func init() {
	mh.WriteExt = true
}

// Address returns the socket family and address of pipe name:
// tcp:HOST:PORT is TCP, paths are unix sockets, and plain names are
// unix sockets in the temporary directory.
func Address(name string) (family, address string) {
	if strings.HasPrefix(name, "tcp:") {
		return "tcp", name[4:]
	}
	if strings.ContainsRune(name, os.PathSeparator) {
		return "unix", name
	}
	return "unix", filepath.Join(os.TempDir(), "spd-"+name+".sock")
}
