/*
 * Author: Markus Stenberg <fingon@iki.fi>
 *
 * Copyright (c) 2017 Markus Stenberg
 *
 * Created:       Sun Dec 24 17:15:30 2017 mstenber
 * Last modified: Tue Feb 19 15:20:44 2019 mstenber
 * Edit time:     50 min
 *
 */

package codec

import (
	"crypto/rand"
	"fmt"
	"log"
	"testing"

	"github.com/stvp/assert"
)

const compressible = "123456789123456789123456789123456789123456789123456789123456789123456789123456789123456789123456789"

func ProdCodecOnce(text string, c Codec, t *testing.T) {
	p := []byte(text)
	enc, err := c.EncodeBytes(p, nil)
	assert.Nil(t, err)
	dec, err := c.DecodeBytes(enc, nil)
	assert.Nil(t, err)
	assert.Equal(t, p, dec)

}

func ProdCodec(c Codec, t *testing.T) {
	ProdCodecOnce("foo", c, t)
	ProdCodecOnce(compressible, c, t)
}

func TestEncryptingCodec(t *testing.T) {
	p := []byte("data")
	ad := []byte("ad")

	c := EncryptingCodec{}.Init([]byte("foo"), []byte("salt"), 64)

	// 'any codec' handling
	ProdCodec(c, t)

	enc, err := c.EncodeBytes(p, nil)
	assert.Nil(t, err)

	// Ensure we can't fuck around with additional data
	_, err2 := c.DecodeBytes(enc, ad)
	assert.True(t, err2 != nil)

	// Ensure same payload does not encrypt the same way
	enc2, err := c.EncodeBytes(p, nil)
	assert.NotEqual(t, enc, enc2)

	// But it still can be decrypted
	dec, err := c.DecodeBytes(enc2, nil)
	assert.Nil(t, err)
	assert.Equal(t, p, dec)

	// Ensure we're good with additional data too
	enc3, err := c.EncodeBytes(p, ad)
	dec, err = c.DecodeBytes(enc3, ad)
	assert.Nil(t, err)
	assert.Equal(t, p, dec)
}

func TestCompressingCodec(t *testing.T) {
	c := &CompressingCodec{}
	ProdCodec(c, t)

	p := []byte(compressible)
	enc, err := c.EncodeBytes(p, nil)
	assert.Nil(t, err)
	assert.True(t, len(enc) < len(compressible)/2, "compressed to", len(enc))

	// Incompressible data is stored as-is
	p = []byte("foo")
	enc, err = c.EncodeBytes(p, nil)
	assert.Nil(t, err)
	var cd CompressedData
	assert.Nil(t, unmarshal(enc, &cd))
	assert.Equal(t, cd.CompressionType, CompressionType_PLAIN)
	assert.Equal(t, cd.RawData, p)
}

func TestAuthenticatingCodec(t *testing.T) {
	p := []byte("data")
	ad := []byte("ad")

	c := AuthenticatingCodec{}.Init([]byte("foo"), []byte("salt"), 64)
	ProdCodec(c, t)

	enc, err := c.EncodeBytes(p, ad)
	assert.Nil(t, err)
	dec, err := c.DecodeBytes(enc, ad)
	assert.Nil(t, err)
	assert.Equal(t, dec, p)

	// Block moved elsewhere
	_, err = c.DecodeBytes(enc, []byte("other"))
	assert.Equal(t, err, ErrAuthenticationFailed)

	// Tampered payload
	var a AuthenticatedData
	assert.Nil(t, unmarshal(enc, &a))
	a.Data[0] ^= 1
	enc2, err := marshal(&a)
	assert.Nil(t, err)
	_, err = c.DecodeBytes(enc2, ad)
	assert.Equal(t, err, ErrAuthenticationFailed)

	// Different key
	c2 := AuthenticatingCodec{}.Init([]byte("bar"), []byte("salt"), 64)
	_, err = c2.DecodeBytes(enc, ad)
	assert.Equal(t, err, ErrAuthenticationFailed)
}

func TestNopCodecChain(t *testing.T) {
	c := &CodecChain{}
	ProdCodec(c, t)
}
func TestCodecChain(t *testing.T) {
	c1 := EncryptingCodec{}.Init([]byte("foo"), []byte("salt"), 64)
	c2 := &CompressingCodec{}
	c := CodecChain{}.Init(c1, c2)
	ProdCodec(c, t)

	p := []byte(compressible)
	enc, err := c.EncodeBytes(p, nil)
	assert.Nil(t, err)
	assert.True(t, len(enc) < len(compressible), "chain encoded to", len(enc))

	c3 := AuthenticatingCodec{}.Init([]byte("foo"), []byte("salt"), 64)
	c = CodecChain{}.Init(c3, c2)
	assert.Equal(t, c.Len(), 2)
	ProdCodec(c, t)
}

func BenchmarkCodec(b *testing.B) {
	runEncode := func(b *testing.B, c Codec, p []byte) {
		b.SetBytes(int64(len(p)))
		b.ResetTimer()
		for i := 0; i < b.N; i++ {
			enc, err := c.EncodeBytes(p, nil)
			if err != nil || enc == nil {
				log.Panic(err)
			}

		}
	}
	runDecode := func(b *testing.B, c Codec, p []byte) {
		b.SetBytes(int64(len(p)))
		b.ResetTimer()
		for i := 0; i < b.N; i++ {
			dec, err := c.DecodeBytes(p, nil)
			if err != nil || dec == nil {
				log.Panic(err)
			}

		}
	}
	add := func(c Codec, prefix string) {
		// Compressed
		l1 := fmt.Sprintf("Encode-%s-%s", prefix, "Random")
		p1 := make([]byte, 1024)
		_, err := rand.Read(p1)
		if err != nil {
			log.Panic(err)
		}
		b.Run(l1, func(b *testing.B) {
			runEncode(b, c, p1)
		})
		l1d := fmt.Sprintf("Decode-%s-%s", prefix, "Random")
		p1e, _ := c.EncodeBytes(p1, nil)
		b.Run(l1d, func(b *testing.B) {
			runDecode(b, c, p1e)
		})

		// Zero hero variant
		l2 := fmt.Sprintf("Encode-%s-%s", prefix, "Zeros")
		p2 := make([]byte, 1024)
		b.Run(l2, func(b *testing.B) {
			runEncode(b, c, p2)
		})
		l2d := fmt.Sprintf("Decode-%s-%s", prefix, "Zeros")
		p2e, _ := c.EncodeBytes(p2, nil)
		b.Run(l2d, func(b *testing.B) {
			runDecode(b, c, p2e)
		})

	}
	c1 := EncryptingCodec{}.Init([]byte("foo"), []byte("salt"), 64)
	c2 := &CompressingCodec{}
	cc := CodecChain{}.Init(c1, c2)
	c3 := AuthenticatingCodec{}.Init([]byte("foo"), []byte("salt"), 64)
	add(c1, "AES")
	add(c2, "Snappy")
	add(c3, "CMAC")
	add(cc, "AES+Snappy")
}
