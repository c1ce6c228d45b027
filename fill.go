// Copyright 2017 someonegg. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package linepump

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
)

// maxEmptyReads bounds consecutive (0, nil) reads, as bufio does.
const maxEmptyReads = 100

func (p *Pump) filling(ctx context.Context) {
	var err error
	defer func() {
		if e := recover(); e != nil {
			err = p.recovered(e)
		}
		if err != nil {
			p.log.Warn().Err(err).Msg("fill stopped")
		}
		p.ferr = err
		p.pipe.CompleteWriter(err)
		p.fD.SetDone()
	}()

	err = p.fill(ctx)
}

// minReadSize is the least room a read is given. Reads land in the free
// tail of the current segment until less than this is left, so short
// reads share a segment instead of holding one each.
func minReadSize(chunkSize int) int {
	if n := chunkSize / 8; n > 0 {
		return n
	}
	return 1
}

func (p *Pump) fill(ctx context.Context) error {
	minRead := minReadSize(p.opts.ChunkSize)
	for empty := 0; ; {
		buf, err := p.pipe.Reserve(minRead)
		if err != nil {
			return err
		}

		n, rerr := p.s.Read(buf)
		atomic.AddInt64(&p.stat.ReadCount, 1)

		var res PublishResult
		if n > 0 {
			empty = 0
			atomic.AddInt64(&p.stat.ReadBytes, int64(n))
			p.log.Debug().Int("bytes", n).Msg("received")

			if err := p.pipe.Commit(n); err != nil {
				return err
			}
			res = p.pipe.Publish()
			if res.ReaderCompleted {
				return nil
			}
		}

		if rerr != nil {
			if rerr == io.EOF || ctx.Err() != nil {
				return nil
			}
			return &IOError{Err: rerr}
		}

		if n == 0 {
			empty++
			if empty >= maxEmptyReads {
				return &IOError{Err: io.ErrNoProgress}
			}
			continue
		}

		if res.Paused {
			atomic.AddInt64(&p.stat.PauseCount, 1)
			if err := p.pipe.WaitWritable(ctx); err != nil {
				if errors.Is(err, ErrReaderCompleted) || ctx.Err() != nil {
					return nil
				}
				return err
			}
		}
	}
}
