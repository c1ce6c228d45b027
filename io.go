// Copyright 2017 someonegg. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package linepump

import (
	"context"
	"io"
	"sync"
)

// Line is one delimited line, without its delimiter.
type Line []byte

// Stream is the byte stream a pump reads from. Close must unblock a
// pending Read.
type Stream interface {
	io.Reader
	io.Closer
}

// Handler is the line processor.
//
// Process is called once per line, in stream order. It should complete
// as soon as possible, and it is not valid to access the line after the
// Process call; copy it to keep it. A returned error is logged and the
// next line is processed, unless it was marked by Fatal.
type Handler interface {
	Process(ctx context.Context, l Line) error
}

// The HandlerFunc type is an adapter to allow the use of
// ordinary functions as line handlers.  If f is a function
// with the appropriate signature, HandlerFunc(f) is a
// Handler object that calls f.
type HandlerFunc func(ctx context.Context, l Line) error

// Process calls f(ctx, l).
func (f HandlerFunc) Process(ctx context.Context, l Line) error {
	return f(ctx, l)
}

// StopNotifier is implemented by handlers that want to know when the
// pump has stopped.
type StopNotifier interface {
	OnStop()
}

type StopNotifierFunc func()

func (f StopNotifierFunc) OnStop() {
	f()
}

type peerKey struct{}

// ContextWithPeer attaches the identity of the connection to ctx.
func ContextWithPeer(ctx context.Context, peer string) context.Context {
	return context.WithValue(ctx, peerKey{}, peer)
}

// PeerFromContext returns the identity attached by ContextWithPeer.
func PeerFromContext(ctx context.Context) string {
	peer, _ := ctx.Value(peerKey{}).(string)
	return peer
}

// LineWriter writes delimited lines to w. It is safe for concurrent use.
type LineWriter struct {
	mu    sync.Mutex
	w     io.Writer
	delim byte
	buf   []byte
}

func NewLineWriter(w io.Writer, delim byte) *LineWriter {
	return &LineWriter{w: w, delim: delim}
}

// WriteLine writes l followed by the delimiter in a single Write.
func (lw *LineWriter) WriteLine(l []byte) error {
	lw.mu.Lock()
	defer lw.mu.Unlock()
	lw.buf = append(append(lw.buf[:0], l...), lw.delim)
	_, err := lw.w.Write(lw.buf)
	return err
}
