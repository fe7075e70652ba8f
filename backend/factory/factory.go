/*
 * Author: Markus Stenberg <fingon@iki.fi>
 *
 * Copyright (c) 2018 Markus Stenberg
 *
 * Created:       Fri Jan  5 16:26:01 2018 mstenber
 * Last modified: Wed Feb 20 12:30:48 2019 mstenber
 * Edit time:     61 min
 *
 */

package factory

import (
	"sort"

	"github.com/fingon/go-spd/backend"
	"github.com/fingon/go-spd/backend/badger"
	"github.com/fingon/go-spd/backend/bolt"
	"github.com/fingon/go-spd/backend/inmemory"
	"github.com/fingon/go-spd/backend/rawdisk"
	"github.com/fingon/go-spd/codec"
	"github.com/fingon/go-spd/mlog"
	"github.com/fingon/go-spd/unit"
	"github.com/pkg/errors"
)

// RawDisk is the backend name of file backed units.
const RawDisk = "rawdisk"

var ErrUnknownBackend = errors.New("unknown backend")

type factoryCallback func() backend.BlockStore

var storeFactories = map[string]factoryCallback{
	"inmemory": func() backend.BlockStore {
		return inmemory.NewInMemoryStore()
	},
	"badger": func() backend.BlockStore {
		return badger.NewBadgerStore()
	},
	"bolt": func() backend.BlockStore {
		return bolt.NewBoltStore()
	}}

func List() []string {
	keys := make([]string, 0, len(storeFactories)+1)
	for k := range storeFactories {
		keys = append(keys, k)
	}
	keys = append(keys, RawDisk)
	sort.Strings(keys)
	return keys
}

func NewStore(name string, config backend.Configuration) (backend.BlockStore, error) {
	mlog.Printf2("backend/factory/factory", "f.NewStore %v %v", name, config.Directory)
	cb := storeFactories[name]
	if cb == nil {
		return nil, errors.Wrap(ErrUnknownBackend, name)
	}
	be := cb()
	if err := be.Init(config); err != nil {
		return nil, err
	}
	return backend.WithCodec(be, config.Codec), nil
}

type Configuration struct {
	BackendName string
	Directory   string

	// File is the backing file of rawdisk
	File string

	BlockCount  uint64
	BlockLength uint32

	// Password enables encryption of stored blocks, and
	// Authenticate integrity tags without it. Stored blocks are
	// always compressed.
	Password, Salt string
	Authenticate   bool
	Iterations     int
}

func NewCodec(config Configuration) codec.Codec {
	iterations := config.Iterations
	if iterations == 0 {
		iterations = 12345
	}
	salt := config.Salt
	if salt == "" {
		salt = "asdf"
	}
	c2 := &codec.CompressingCodec{}
	switch {
	case config.Password != "":
		mlog.Printf2("backend/factory/factory", " with encryption + compression")
		c1 := codec.EncryptingCodec{}.Init([]byte(config.Password), []byte(salt), iterations)
		return codec.CodecChain{}.Init(c1, c2)
	case config.Authenticate:
		// Keyed by salt alone; catches corruption and misplaced
		// blocks, not deliberate tampering
		mlog.Printf2("backend/factory/factory", " with authentication + compression")
		c1 := codec.AuthenticatingCodec{}.Init(nil, []byte(salt), iterations)
		return codec.CodecChain{}.Init(c1, c2)
	}
	mlog.Printf2("backend/factory/factory", " only compression")
	return codec.CodecChain{}.Init(c2)
}

// NewUnit returns storage unit described by config.
func NewUnit(config Configuration) (unit.StorageUnit, error) {
	mlog.Printf2("backend/factory/factory", "f.NewUnit %v", config.BackendName)
	if config.BackendName == RawDisk {
		rd, err := rawdisk.New(config.File, config.BlockCount, config.BlockLength)
		if err != nil {
			return nil, err
		}
		return rd, nil
	}
	if config.BlockCount == 0 || config.BlockLength == 0 {
		return nil, errors.Errorf("invalid geometry %d x %d", config.BlockCount, config.BlockLength)
	}
	store, err := NewStore(config.BackendName, backend.Configuration{
		Directory: config.Directory,
		Codec:     NewCodec(config)})
	if err != nil {
		return nil, err
	}
	return backend.NewBlockStoreUnit(store, config.BlockCount, config.BlockLength), nil
}
