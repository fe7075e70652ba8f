/*
 * Author: Markus Stenberg <fingon@iki.fi>
 *
 * Copyright (c) 2017 Markus Stenberg
 *
 * Created:       Wed Dec 27 17:19:12 2017 mstenber
 * Last modified: Tue Feb 19 16:41:09 2019 mstenber
 * Edit time:     103 min
 *
 */

package bolt

import (
	"path/filepath"

	bbolt "go.etcd.io/bbolt"

	"github.com/fingon/go-spd/backend"
	"github.com/fingon/go-spd/mlog"
	"github.com/fingon/go-spd/util"
	"github.com/pkg/errors"
)

var blockKey = []byte("block")

// boltStore provides on-disk storage.
//
// - bucket block: big-endian block address -> block data
type boltStore struct {
	db *bbolt.DB
}

var _ backend.BlockStore = &boltStore{}

func NewBoltStore() backend.BlockStore {
	self := &boltStore{}
	return self
}

func (self *boltStore) Init(config backend.Configuration) error {
	path := filepath.Join(config.Directory, "bbolt.db")
	// Durability comes from Flush
	db, err := bbolt.Open(path, 0600, &bbolt.Options{NoSync: true})
	if err != nil {
		return errors.Wrap(err, "bbolt.Open")
	}
	self.db = db
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(blockKey)
		return err
	})
	if err != nil {
		db.Close()
		return errors.Wrap(err, "bbolt bucket")
	}
	mlog.Printf2("backend/bolt/bolt", "bbolt.Init %s", path)
	return nil
}

func (self *boltStore) Close() error {
	return self.db.Close()
}

func (self *boltStore) Flush() error {
	mlog.Printf2("backend/bolt/bolt", "bbolt.Flush")
	return self.db.Sync()
}

func (self *boltStore) DeleteBlock(address uint64) error {
	mlog.Printf2("backend/bolt/bolt", "bbolt.DeleteBlock %d", address)
	return self.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(blockKey).Delete(util.Uint64Bytes(address))
	})
}

func (self *boltStore) GetBlock(address uint64) (v []byte, err error) {
	err = self.db.View(func(tx *bbolt.Tx) error {
		// Only valid within the transaction
		b := tx.Bucket(blockKey).Get(util.Uint64Bytes(address))
		if b != nil {
			v = append([]byte(nil), b...)
		}
		return nil
	})
	return
}

func (self *boltStore) SetBlock(address uint64, data []byte) error {
	mlog.Printf2("backend/bolt/bolt", "bbolt.SetBlock %d (%d b)", address, len(data))
	return self.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(blockKey).Put(util.Uint64Bytes(address), data)
	})
}
