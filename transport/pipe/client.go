/*
 * Author: Markus Stenberg <fingon@iki.fi>
 *
 * Copyright (c) 2018 Markus Stenberg
 *
 * Created:       Wed Jan 17 14:19:35 2018 mstenber
 * Last modified: Wed Feb 20 17:02:31 2019 mstenber
 * Edit time:     98 min
 *
 */

package pipe

import (
	"bufio"
	"context"
	"net"

	"github.com/fingon/go-spd/dispatcher"
	"github.com/fingon/go-spd/mlog"
	"github.com/fingon/go-spd/scsi"
	"github.com/fingon/go-spd/util"
	"github.com/pkg/errors"
	msgpack "github.com/ugorji/go/codec"
)

var ErrClosed = errors.New("pipe connection closed")

// Client talks to a Server. It is safe for concurrent use; requests
// are pipelined over the single connection.
type Client struct {
	conn net.Conn

	// writeLock protects w and enc
	writeLock util.MutexLocked
	w         *bufio.Writer
	enc       *msgpack.Encoder

	// lock protects pending and err
	lock    util.MutexLocked
	pending map[uint64]chan *ResponseFrame
	err     error

	hints util.AtomicInt
	wg    util.SimpleWaitGroup
}

// Dial connects to pipe name (see Address).
func Dial(name string) (*Client, error) {
	family, address := Address(name)
	conn, err := net.Dial(family, address)
	if err != nil {
		return nil, errors.Wrapf(err, "dial %s", name)
	}
	mlog.Printf2("transport/pipe/client", "Dial %s %s", family, address)
	w := bufio.NewWriter(conn)
	self := &Client{conn: conn,
		w:       w,
		enc:     msgpack.NewEncoder(w, &mh),
		pending: make(map[uint64]chan *ResponseFrame)}
	self.wg.Go(self.receive)
	return self, nil
}

func (self *Client) receive() {
	dec := msgpack.NewDecoder(bufio.NewReader(self.conn), &mh)
	for {
		resp := &ResponseFrame{}
		if err := dec.Decode(resp); err != nil {
			self.fail(err)
			return
		}
		unlock := self.lock.Locked()
		ch := self.pending[resp.Hint]
		delete(self.pending, resp.Hint)
		unlock()
		if ch == nil {
			mlog.Printf2("transport/pipe/client", " unknown hint %#x", resp.Hint)
			continue
		}
		ch <- resp
	}
}

func (self *Client) fail(err error) {
	mlog.Printf2("transport/pipe/client", "c.fail %v", err)
	defer self.lock.Locked()()
	if self.err == nil {
		self.err = err
	}
	for hint, ch := range self.pending {
		close(ch)
		delete(self.pending, hint)
	}
}

func (self *Client) call(ctx context.Context, req *RequestFrame) (*ResponseFrame, error) {
	req.Hint = uint64(self.hints.Inc())
	ch := make(chan *ResponseFrame, 1)
	unlock := self.lock.Locked()
	if self.err != nil {
		unlock()
		return nil, ErrClosed
	}
	self.pending[req.Hint] = ch
	unlock()

	unlock = self.writeLock.Locked()
	err := self.enc.Encode(req)
	if err == nil {
		err = self.w.Flush()
	}
	unlock()
	if err != nil {
		self.conn.Close()
		return nil, errors.Wrap(err, "send")
	}

	select {
	case resp, ok := <-ch:
		if !ok {
			return nil, ErrClosed
		}
		return resp, nil
	case <-ctx.Done():
		unlock := self.lock.Locked()
		delete(self.pending, req.Hint)
		unlock()
		return nil, ctx.Err()
	}
}

// Geometry returns the parameters of the unit behind the server.
func (self *Client) Geometry(ctx context.Context) (*Geometry, error) {
	resp, err := self.call(ctx, &RequestFrame{Kind: KindDescribe})
	if err != nil {
		return nil, err
	}
	if resp.Geometry == nil {
		return nil, errors.New("no geometry in response")
	}
	return resp.Geometry, nil
}

// Read reads blockCount blocks starting at blockAddress to data,
// which must be large enough.
func (self *Client) Read(ctx context.Context, data []byte, blockAddress uint64, blockCount uint32, fua bool) (status scsi.Status, err error) {
	resp, err := self.call(ctx, &RequestFrame{Kind: uint8(dispatcher.KindRead),
		BlockAddress:    blockAddress,
		BlockCount:      blockCount,
		ForceUnitAccess: fua})
	if err != nil {
		return
	}
	copy(data, resp.Data)
	return resp.Status, nil
}

func (self *Client) Write(ctx context.Context, data []byte, blockAddress uint64, blockCount uint32, fua bool) (status scsi.Status, err error) {
	resp, err := self.call(ctx, &RequestFrame{Kind: uint8(dispatcher.KindWrite),
		BlockAddress:    blockAddress,
		BlockCount:      blockCount,
		ForceUnitAccess: fua,
		Data:            data})
	if err != nil {
		return
	}
	return resp.Status, nil
}

func (self *Client) Flush(ctx context.Context, blockAddress uint64, blockCount uint32) (status scsi.Status, err error) {
	resp, err := self.call(ctx, &RequestFrame{Kind: uint8(dispatcher.KindFlush),
		BlockAddress: blockAddress,
		BlockCount:   blockCount})
	if err != nil {
		return
	}
	return resp.Status, nil
}

func (self *Client) Unmap(ctx context.Context, descriptors []scsi.UnmapDescriptor) (status scsi.Status, err error) {
	resp, err := self.call(ctx, &RequestFrame{Kind: uint8(dispatcher.KindUnmap),
		Descriptors: descriptors})
	if err != nil {
		return
	}
	return resp.Status, nil
}

func (self *Client) Close() error {
	err := self.conn.Close()
	self.wg.Wait()
	return err
}
