/*
 * Author: Markus Stenberg <fingon@iki.fi>
 *
 * Copyright (c) 2019 Markus Stenberg
 *
 * Created:       Tue Feb 19 15:50:02 2019 mstenber
 * Last modified: Tue Feb 19 16:12:40 2019 mstenber
 * Edit time:     12 min
 *
 */

package backend

import (
	"github.com/fingon/go-spd/codec"
	"github.com/fingon/go-spd/util"
	"github.com/pkg/errors"
)

// codecStore encodes blocks on the way to the underlying store, and
// decodes them on the way back.
type codecStore struct {
	BlockStore
	Codec codec.Codec
}

// WithCodec wraps store so that blocks pass through c; nil c returns
// store as is.
func WithCodec(store BlockStore, c codec.Codec) BlockStore {
	if c == nil {
		return store
	}
	return &codecStore{BlockStore: store, Codec: c}
}

func (self *codecStore) GetBlock(address uint64) ([]byte, error) {
	data, err := self.BlockStore.GetBlock(address)
	if err != nil || data == nil {
		return data, err
	}
	b, err := self.Codec.DecodeBytes(data, util.Uint64Bytes(address))
	if err != nil {
		return nil, errors.Wrapf(err, "decoding block %d failed", address)
	}
	return b, nil
}

func (self *codecStore) SetBlock(address uint64, data []byte) error {
	b, err := self.Codec.EncodeBytes(data, util.Uint64Bytes(address))
	if err != nil {
		return errors.Wrapf(err, "encoding block %d failed", address)
	}
	return self.BlockStore.SetBlock(address, b)
}
