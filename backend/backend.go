/*
 * Author: Markus Stenberg <fingon@iki.fi>
 *
 * Copyright (c) 2019 Markus Stenberg
 *
 * Created:       Tue Feb 19 15:31:20 2019 mstenber
 * Last modified: Wed Feb 20 11:02:58 2019 mstenber
 * Edit time:     48 min
 *
 */

// backend provides storage units: BlockStoreUnit serves a disk out
// of any BlockStore (in-memory, bolt, badger), and rawdisk (in its
// own package) out of a plain file.
package backend

import (
	"github.com/fingon/go-spd/codec"
)

// BlockStore is the shadow behind the throne; it stores fixed size
// blocks by block address. Blocks that have never been written (or
// have been deleted) do not exist, and read as zeroes.
//
// Stores must be safe for concurrent use.
type BlockStore interface {
	Init(config Configuration) error

	// GetBlock returns the data of the block, or nil if it does
	// not exist.
	GetBlock(address uint64) ([]byte, error)

	// SetBlock stores data as the block. The data is not retained.
	SetBlock(address uint64, data []byte) error

	// DeleteBlock removes the block; removing non-existent block
	// is fine.
	DeleteBlock(address uint64) error

	// Flush makes the previous changes durable.
	Flush() error

	Close() error
}

type Configuration struct {
	// Directory is where persistent stores keep their files.
	Directory string

	// Codec, if set, transforms the stored blocks; the block
	// address is the additional data.
	Codec codec.Codec
}
