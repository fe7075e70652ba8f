/*
 * Author: Markus Stenberg <fingon@iki.fi>
 *
 * Copyright (c) 2017 Markus Stenberg
 *
 * Created:       Thu Dec 28 11:20:29 2017 mstenber
 * Last modified: Tue Feb 19 14:50:37 2019 mstenber
 * Edit time:     25 min
 *
 */

package codec

import (
	msgpack "github.com/ugorji/go/codec"
)

// Envelopes the codecs wrap their output in. They are msgpack
// encoded as arrays to keep per-block overhead small.

type EncryptedData struct {
	_struct struct{} `codec:",toarray"`

	// nonce used for AES GCM
	Nonce []byte

	// EncryptedData is AES GCM encrypted payload
	EncryptedData []byte
}

type CompressionType byte

const (
	CompressionType_UNSET CompressionType = iota

	// The data has not been compressed.
	CompressionType_PLAIN

	// The data is compressed with Snappy.
	CompressionType_SNAPPY
)

type CompressedData struct {
	_struct struct{} `codec:",toarray"`

	// CompressionType describes how the data has been compressed.
	CompressionType CompressionType

	// RawData is the raw data of the client (whatever it is)
	RawData []byte
}

type AuthenticatedData struct {
	_struct struct{} `codec:",toarray"`

	// Tag is AES-CMAC of additional data followed by Data
	Tag []byte

	Data []byte
}

var mh msgpack.MsgpackHandle

func init() {
	mh.WriteExt = true
	mh.RawToString = false
}

func marshal(v interface{}) (ret []byte, err error) {
	err = msgpack.NewEncoderBytes(&ret, &mh).Encode(v)
	return
}

func unmarshal(data []byte, v interface{}) error {
	return msgpack.NewDecoderBytes(data, &mh).Decode(v)
}
