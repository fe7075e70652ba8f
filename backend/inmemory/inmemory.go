/*
 * Author: Markus Stenberg <fingon@iki.fi>
 *
 * Copyright (c) 2017 Markus Stenberg
 *
 * Created:       Thu Dec 14 19:10:02 2017 mstenber
 * Last modified: Tue Feb 19 16:30:11 2019 mstenber
 * Edit time:     118 min
 *
 */

package inmemory

import (
	"github.com/fingon/go-spd/backend"
	"github.com/fingon/go-spd/mlog"
	"github.com/fingon/go-spd/util"
)

// inMemoryStore provides In-memory storage; data is always
// available and is just stored in a map.
type inMemoryStore struct {
	blocks map[uint64][]byte
	lock   util.MutexLocked
}

var _ backend.BlockStore = &inMemoryStore{}

func NewInMemoryStore() backend.BlockStore {
	self := &inMemoryStore{}
	self.blocks = make(map[uint64][]byte)
	return self
}

func (self *inMemoryStore) Init(config backend.Configuration) error {
	return nil
}

func (self *inMemoryStore) Close() error {
	return nil
}

func (self *inMemoryStore) Flush() error {
	return nil
}

func (self *inMemoryStore) DeleteBlock(address uint64) error {
	defer self.lock.Locked()()
	mlog.Printf2("backend/inmemory/inmemory", "im.DeleteBlock %d", address)
	delete(self.blocks, address)
	return nil
}

func (self *inMemoryStore) GetBlock(address uint64) ([]byte, error) {
	defer self.lock.Locked()()
	return self.blocks[address], nil
}

func (self *inMemoryStore) SetBlock(address uint64, data []byte) error {
	defer self.lock.Locked()()
	mlog.Printf2("backend/inmemory/inmemory", "im.SetBlock %d (%d b)", address, len(data))
	self.blocks[address] = append([]byte(nil), data...)
	return nil
}
