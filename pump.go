// Copyright 2017 someonegg. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package linepump

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/someonegg/gox/syncx"
)

type Statistics struct {
	// from Stream
	ReadCount int64
	ReadBytes int64

	// to Handler
	LineCount       int64
	LineBytes       int64
	HandlerFailures int64

	// writer paused by the high watermark
	PauseCount int64
}

// Pump represents a line-pump for one stream. It has two working loops:
// the fill loop reads the stream into a Pipe, the frame loop splits the
// pipe's content into lines and hands them to the Handler. The loops run
// in parallel and only meet in the pipe.
//
// Pump supports concurrently access.
type Pump struct {
	quitF context.CancelFunc
	stopD syncx.DoneChan

	s    Stream
	h    Handler
	sn   StopNotifier
	opts Options
	pipe *Pipe

	// fill
	ferr error
	fD   syncx.DoneChan
	// frame
	rerr    error
	rD      syncx.DoneChan
	scratch []byte

	closeOnce sync.Once
	closeErr  error

	stat Statistics

	log       zerolog.Logger
	panicLogF func(interface{})
}

// NewPump allocates and returns a new Pump.
//
// If h implements the StopNotifier interface, it will be called after
// the stream is closed and both loops have exited.
func NewPump(s Stream, h Handler, opts Options) (*Pump, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	sn, _ := h.(StopNotifier)
	return &Pump{
		stopD: syncx.NewDoneChan(),

		s:    s,
		h:    h,
		sn:   sn,
		opts: opts,
		pipe: NewPipe(opts),

		fD: syncx.NewDoneChan(),
		rD: syncx.NewDoneChan(),

		log:       log.Logger.With().Str("component", "linepump").Logger(),
		panicLogF: thePanicLogFunc,
	}, nil
}

// The default panic log function.
func thePanicLogFunc(v interface{}) {
	const size = 16 << 10
	buf := make([]byte, size)
	buf = buf[:runtime.Stack(buf, false)]
	log.Error().Str("stack", string(buf)).Msg(fmt.Sprint("pump panic: ", v))
}

// SetPanicLogFunc is optional.
func (p *Pump) SetPanicLogFunc(f func(panicV interface{})) {
	p.panicLogF = f
}

// SetLogger is optional, it must be called before Start.
func (p *Pump) SetLogger(l zerolog.Logger) {
	p.log = l
}

// Start will start the working loops.
func (p *Pump) Start(parent context.Context) {
	if parent == nil {
		parent = context.Background()
	}

	var ctx context.Context
	ctx, p.quitF = context.WithCancel(parent)

	go p.filling(ctx)
	go p.framing(ctx)
	go p.monitor(ctx)
}

// The fill loop ending completes the pipe's writer side, which lets the
// frame loop drain and exit, so only the frame loop is watched here.
func (p *Pump) monitor(ctx context.Context) {
	defer p.ending()

	select {
	case <-ctx.Done():
	case <-p.rD:
	}
}

func (p *Pump) ending() {
	defer p.stopD.SetDone()

	p.quitF()
	p.closeStream()

	<-p.fD
	<-p.rD

	p.pipe.Release()

	if p.sn != nil {
		func() {
			defer func() { recover() }()
			p.sn.OnStop()
		}()
	}
}

func (p *Pump) closeStream() {
	p.closeOnce.Do(func() {
		p.closeErr = p.s.Close()
	})
}

func (p *Pump) recovered(e interface{}) error {
	if p.panicLogF != nil {
		p.panicLogF(e)
	}
	if err, ok := e.(error); ok {
		return err
	}
	return errUnknownPanic
}

// Stop requests to stop the pump, the working loops will stop asynchronously.
// Lines already received but not yet processed are dropped.
func (p *Pump) Stop() {
	if p.quitF != nil {
		p.quitF()
	}
}

// StopD returns a done channel, it will be signaled when the pump is stopped.
func (p *Pump) StopD() syncx.DoneChanR {
	return p.stopD.R()
}

func (p *Pump) Stopped() bool {
	return p.stopD.R().Done()
}

// Error can only be called after pump stopped. It is nil when the peer
// closed the stream or Stop was called.
func (p *Pump) Error() error {
	if p.rerr != nil {
		return p.rerr
	}
	return p.ferr
}

// CloseError can only be called after pump stopped, it returns the
// result of closing the stream.
func (p *Pump) CloseError() error {
	return p.closeErr
}

func (p *Pump) Statistics() Statistics {
	return Statistics{
		ReadCount:       atomic.LoadInt64(&p.stat.ReadCount),
		ReadBytes:       atomic.LoadInt64(&p.stat.ReadBytes),
		LineCount:       atomic.LoadInt64(&p.stat.LineCount),
		LineBytes:       atomic.LoadInt64(&p.stat.LineBytes),
		HandlerFailures: atomic.LoadInt64(&p.stat.HandlerFailures),
		PauseCount:      atomic.LoadInt64(&p.stat.PauseCount),
	}
}

// UnderlyingStream returns the internal stream.
func (p *Pump) UnderlyingStream() Stream {
	return p.s
}
