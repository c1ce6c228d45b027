// Copyright 2017 someonegg. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package linepump

import (
	"context"
	"errors"
	"sync/atomic"
)

func (p *Pump) framing(ctx context.Context) {
	var err error
	defer func() {
		if e := recover(); e != nil {
			err = p.recovered(e)
		}
		if err != nil {
			p.log.Error().Err(err).Msg("frame stopped")
		}
		p.rerr = err
		p.pipe.CompleteReader(err)
		p.rD.SetDone()
	}()

	err = p.frame(ctx)
}

func (p *Pump) frame(ctx context.Context) error {
	delim := p.opts.Delimiter

	for {
		res, err := p.pipe.AwaitData(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, ErrReaderCompleted) {
				return nil
			}
			return err
		}

		buf := res.Buffer
		start, pos := buf.Start(), res.Examined
		if pos < start {
			pos = start
		}

		for {
			i := buf.IndexByte(pos, delim)
			if i < 0 {
				break
			}
			if err := p.dispatch(ctx, buf.Slice(start, i)); err != nil {
				return err
			}
			start = i + 1
			pos = start

			if ctx.Err() != nil {
				return nil
			}
		}

		if res.Completed && p.opts.FlushOnClose && start < buf.End() {
			if err := p.dispatch(ctx, buf.Slice(start, buf.End())); err != nil {
				return err
			}
			start = buf.End()
		}

		if err := p.pipe.Advance(start, buf.End()); err != nil {
			return err
		}

		if res.Completed {
			return nil
		}
	}
}

// dispatch hands one line to the handler. Only a fatal handler failure
// is returned; any other is counted, logged and dropped.
func (p *Pump) dispatch(ctx context.Context, seg Segments) error {
	l, ok := seg.Contiguous()
	if !ok {
		p.scratch = seg.AppendTo(p.scratch[:0])
		l = p.scratch
	}

	atomic.AddInt64(&p.stat.LineCount, 1)
	atomic.AddInt64(&p.stat.LineBytes, int64(len(l)))

	err := p.process(ctx, Line(l))
	if err == nil {
		return nil
	}

	atomic.AddInt64(&p.stat.HandlerFailures, 1)
	if IsFatal(err) {
		return err
	}
	p.log.Warn().Err(err).Int("length", len(l)).Msg("handler failed")
	return nil
}

func (p *Pump) process(ctx context.Context, l Line) (err error) {
	defer func() {
		if e := recover(); e != nil {
			if p.panicLogF != nil {
				p.panicLogF(e)
			}
			he := &HandlerError{Panic: e, Err: errUnknownPanic}
			if v, ok := e.(error); ok {
				he.Err = v
			}
			err = he
		}
	}()

	if err := p.h.Process(ctx, l); err != nil {
		return &HandlerError{Err: err}
	}
	return nil
}
