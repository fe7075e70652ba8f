/*
 * Author: Markus Stenberg <fingon@iki.fi>
 *
 * Copyright (c) 2017 Markus Stenberg
 *
 * Created:       Fri Dec 29 11:44:31 2017 mstenber
 * Last modified: Tue Feb 19 16:55:27 2019 mstenber
 * Edit time:     92 min
 *
 */

package badger

import (
	"github.com/dgraph-io/badger"
	"github.com/fingon/go-spd/backend"
	"github.com/fingon/go-spd/mlog"
	"github.com/fingon/go-spd/util"
	"github.com/pkg/errors"
)

var blockPrefix = []byte("b")

// badgerStore provides on-disk storage.
//
// - key prefix b + big-endian block address -> block data
type badgerStore struct {
	db *badger.DB
}

var _ backend.BlockStore = &badgerStore{}

func NewBadgerStore() backend.BlockStore {
	return &badgerStore{}
}

func (self *badgerStore) Init(config backend.Configuration) error {
	opts := badger.DefaultOptions
	opts.Dir = config.Directory
	opts.ValueDir = config.Directory
	db, err := badger.Open(opts)
	if err != nil {
		return errors.Wrap(err, "badger.Open")
	}
	self.db = db
	mlog.Printf2("backend/badger/badger", "bad.Init %s", config.Directory)
	return nil
}

func (self *badgerStore) Close() error {
	return self.db.Close()
}

// Flush is no-op; badger commits are synchronous by default.
func (self *badgerStore) Flush() error {
	return nil
}

func key(address uint64) []byte {
	return util.PrefixedUint64Bytes(blockPrefix, address)
}

func (self *badgerStore) DeleteBlock(address uint64) error {
	mlog.Printf2("backend/badger/badger", "bad.DeleteBlock %d", address)
	return self.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(key(address))
	})
}

func (self *badgerStore) GetBlock(address uint64) (v []byte, err error) {
	err = self.db.View(func(txn *badger.Txn) error {
		i, err := txn.Get(key(address))
		if err == nil {
			v, err = i.ValueCopy(nil)
		}
		return err
	})
	if err == badger.ErrKeyNotFound {
		return nil, nil
	}
	return
}

func (self *badgerStore) SetBlock(address uint64, data []byte) error {
	mlog.Printf2("backend/badger/badger", "bad.SetBlock %d (%d b)", address, len(data))
	// Badger keeps the slice until commit
	v := append([]byte(nil), data...)
	return self.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key(address), v)
	})
}
