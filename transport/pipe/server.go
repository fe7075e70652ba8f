/*
 * Author: Markus Stenberg <fingon@iki.fi>
 *
 * Copyright (c) 2018 Markus Stenberg
 *
 * Created:       Fri Jan 12 12:02:44 2018 mstenber
 * Last modified: Wed Feb 20 16:30:02 2019 mstenber
 * Edit time:     140 min
 *
 */

package pipe

import (
	"bufio"
	"context"
	"net"
	"os"

	"github.com/fingon/go-spd/dispatcher"
	"github.com/fingon/go-spd/mlog"
	"github.com/fingon/go-spd/scsi"
	"github.com/fingon/go-spd/util"
	"github.com/pkg/errors"
	msgpack "github.com/ugorji/go/codec"
	"golang.org/x/net/netutil"
)

// Server feeds requests from pipe clients to the queue of a unit.
type Server struct {
	Family, Address string
	Queue           *dispatcher.Queue

	listener net.Listener
	ctx      context.Context
	cancel   context.CancelFunc
	wg       util.SimpleWaitGroup

	// lock protects conn
	lock util.MutexLocked
	conn net.Conn
}

func init() {
	dispatcher.RegisterFrontend("pipe", func(target string, queue *dispatcher.Queue) (dispatcher.Frontend, error) {
		family, address := Address(target)
		s, err := (&Server{Family: family, Address: address, Queue: queue}).Init()
		if err != nil {
			return nil, err
		}
		return s, nil
	})
}

func (self *Server) Init() (*Server, error) {
	if self.Family == "unix" {
		// Stale socket of earlier run
		if fi, err := os.Lstat(self.Address); err == nil && fi.Mode()&os.ModeSocket != 0 {
			os.Remove(self.Address)
		}
	}
	lis, err := net.Listen(self.Family, self.Address)
	if err != nil {
		return nil, errors.Wrapf(err, "listen %s %s", self.Family, self.Address)
	}
	mlog.Printf2("transport/pipe/server", "Server at %s %s", self.Family, self.Address)
	self.listener = netutil.LimitListener(lis, 1)
	self.ctx, self.cancel = context.WithCancel(context.Background())
	self.wg.Go(self.serve)
	return self, nil
}

// Addr returns the address the server is listening at.
func (self *Server) Addr() net.Addr {
	return self.listener.Addr()
}

func (self *Server) Close() error {
	mlog.Printf2("transport/pipe/server", "s.Close")
	self.cancel()
	err := self.listener.Close()
	unlock := self.lock.Locked()
	if self.conn != nil {
		self.conn.Close()
	}
	unlock()
	self.wg.Wait()
	return err
}

func (self *Server) serve() {
	for {
		conn, err := self.listener.Accept()
		if err != nil {
			mlog.Printf2("transport/pipe/server", " accept: %v", err)
			return
		}
		unlock := self.lock.Locked()
		select {
		case <-self.ctx.Done():
			conn.Close()
			unlock()
			return
		default:
		}
		self.conn = conn
		unlock()
		self.handle(conn)
		unlock = self.lock.Locked()
		self.conn = nil
		unlock()
	}
}

func (self *Server) handle(conn net.Conn) {
	mlog.Printf2("transport/pipe/server", "s.handle %v", conn.RemoteAddr())
	defer conn.Close()
	var wg util.SimpleWaitGroup
	defer wg.Wait()

	var writeLock util.MutexLocked
	w := bufio.NewWriter(conn)
	enc := msgpack.NewEncoder(w, &mh)
	dec := msgpack.NewDecoder(bufio.NewReader(conn), &mh)
	for {
		req := &RequestFrame{}
		if err := dec.Decode(req); err != nil {
			mlog.Printf2("transport/pipe/server", " decode: %v", err)
			return
		}
		wg.Go(func() {
			resp := self.process(req)
			defer writeLock.Locked()()
			if err := enc.Encode(resp); err != nil {
				mlog.Printf2("transport/pipe/server", " encode: %v", err)
				conn.Close()
				return
			}
			if err := w.Flush(); err != nil {
				conn.Close()
			}
		})
	}
}

func (self *Server) process(req *RequestFrame) *ResponseFrame {
	resp := &ResponseFrame{Hint: req.Hint, Kind: req.Kind}
	p := self.Queue.Params()
	if req.Kind == KindDescribe {
		resp.Geometry = geometryOf(&p)
		return resp
	}
	dreq := dispatcher.Request{Kind: dispatcher.Kind(req.Kind),
		BlockAddress:    req.BlockAddress,
		BlockCount:      req.BlockCount,
		ForceUnitAccess: req.ForceUnitAccess,
		Descriptors:     req.Descriptors}
	data := req.Data
	if dreq.Kind == dispatcher.KindRead && req.BlockCount <= p.MaxTransferLength {
		data = make([]byte, int(req.BlockCount)*int(p.BlockLength))
	}
	status, err := self.Queue.Submit(self.ctx, dreq, data)
	if err != nil {
		mlog.Printf2("transport/pipe/server", " %v: %v", &dreq, err)
		if err == dispatcher.ErrShortBuffer {
			status.SetSense(scsi.SenseIllegalRequest, scsi.ASCParameterListLength)
		}
	}
	resp.Status = status
	if dreq.Kind == dispatcher.KindRead && status.Good() {
		resp.Data = data
	}
	return resp
}
