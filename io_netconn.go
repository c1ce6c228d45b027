// Copyright 2017 someonegg. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package linepump

import (
	"context"
	"net"
	"time"
)

// NetconnStream adapts a net.Conn to a Stream. With a positive
// ReadTimeout every read gets a fresh deadline, so an idle peer ends the
// pump with a timeout error.
type NetconnStream struct {
	net.Conn
	ReadTimeout time.Duration
}

func (s NetconnStream) Read(b []byte) (int, error) {
	if s.ReadTimeout > 0 {
		if err := s.Conn.SetReadDeadline(time.Now().Add(s.ReadTimeout)); err != nil {
			return 0, err
		}
	}
	return s.Conn.Read(b)
}

// NetconnPump creates and starts a pump over conn, with the remote
// address as the peer identity in the handler's context.
func NetconnPump(ctx context.Context, conn net.Conn, h Handler, opts Options) (*Pump, error) {
	p, err := NewPump(NetconnStream{Conn: conn}, h, opts)
	if err != nil {
		return nil, err
	}
	if ctx == nil {
		ctx = context.Background()
	}
	p.Start(ContextWithPeer(ctx, conn.RemoteAddr().String()))
	return p, nil
}
