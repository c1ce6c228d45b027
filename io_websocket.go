// Copyright 2017 someonegg. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package linepump

import (
	"io"
	"sync"
)

// WebsocketReader interface, see https://godoc.org/github.com/gorilla/websocket/#Conn.NextReader
type WebsocketReader interface {
	NextReader() (messageType int, r io.Reader, err error)
}

// WebsocketWriter interface, see https://godoc.org/github.com/gorilla/websocket/#Conn.NextWriter
type WebsocketWriter interface {
	NextWriter(messageType int) (io.WriteCloser, error)
}

// WebsocketConn interface, see https://godoc.org/github.com/gorilla/websocket/#Conn
type WebsocketConn interface {
	WebsocketReader
	WebsocketWriter
	io.Closer
}

// See https://godoc.org/github.com/gorilla/websocket#pkg-constants
const (
	TextMessage   = 1
	BinaryMessage = 2
	CloseMessage  = 8
	PingMessage   = 9
	PongMessage   = 10
)

// WebsocketStream converts a WebsocketConn to a Stream.
//
// The payloads of the text and binary messages are concatenated into
// one byte stream, message boundaries carry no meaning. Each Write is
// sent as one message.
type WebsocketStream struct {
	c WebsocketConn
	r io.Reader

	// IsEOF reports whether a NextReader error is a normal close. It
	// can be nil.
	IsEOF func(err error) bool

	// WriteType is the message type of Write, TextMessage if zero.
	WriteType int

	wmu sync.Mutex
}

func NewWebsocketStream(c WebsocketConn) *WebsocketStream {
	return &WebsocketStream{c: c}
}

func (s *WebsocketStream) Read(b []byte) (int, error) {
	if len(b) == 0 {
		return 0, nil
	}

	for {
		if s.r == nil {
			t, r, err := s.c.NextReader()
			if err != nil {
				if s.IsEOF != nil && s.IsEOF(err) {
					return 0, io.EOF
				}
				return 0, err
			}
			if t != TextMessage && t != BinaryMessage {
				continue
			}
			s.r = r
		}

		n, err := s.r.Read(b)
		if err == io.EOF {
			s.r = nil
			if n > 0 {
				return n, nil
			}
			continue
		}
		return n, err
	}
}

func (s *WebsocketStream) Write(b []byte) (int, error) {
	t := s.WriteType
	if t == 0 {
		t = TextMessage
	}

	s.wmu.Lock()
	defer s.wmu.Unlock()

	w, err := s.c.NextWriter(t)
	if err != nil {
		return 0, err
	}
	n, err := w.Write(b)
	if err != nil {
		w.Close()
		return n, err
	}
	return n, w.Close()
}

func (s *WebsocketStream) Close() error {
	return s.c.Close()
}
