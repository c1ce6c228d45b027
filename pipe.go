// Copyright 2017 someonegg. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package linepump

import (
	"context"
	"sync"
)

// PublishResult is the flow-control state returned to the writer.
type PublishResult struct {
	// Paused is set while more than the high watermark is unconsumed.
	// The writer should call WaitWritable before producing more.
	Paused bool

	// ReaderCompleted is set once the reader has stopped. The writer
	// should stop too.
	ReaderCompleted bool
}

// ReadResult is the unconsumed range returned to the reader.
type ReadResult struct {
	// Buffer holds every byte from the consumed position to the
	// published end of the stream.
	Buffer Segments

	// Examined is where the previous scan stopped. Bytes in
	// [Buffer.Start(), Examined) were already seen.
	Examined int64

	// Completed is set once the writer has finished: Buffer is the
	// last range the reader will ever get.
	Completed bool
}

// Pipe is a segmented byte buffer with one writer and one reader.
//
// The writer fills it with Reserve, Commit and Publish. The reader takes
// the unconsumed range with AwaitData and returns it with Advance, naming
// how far it consumed (bytes it never needs again) and how far it
// examined (bytes it scanned but must see again). All positions are
// offsets in the logical stream and only grow.
//
// Exactly one goroutine may act as the writer and one as the reader.
type Pipe struct {
	mu         sync.Mutex
	readerWait sync.Cond
	writerWait sync.Cond

	segSize int
	high    int64
	low     int64

	segs     []*segment
	reserved int

	committed int64
	published int64
	consumed  int64
	examined  int64

	// range handed out by the pending AwaitData
	reading   bool
	readStart int64
	readEnd   int64

	paused bool

	readerDone bool
	writerDone bool
	readerErr  error
	writerErr  error
}

// NewPipe allocates a pipe. Segments are ChunkSize bytes, or larger when
// a bigger region is reserved.
func NewPipe(opts Options) *Pipe {
	p := &Pipe{
		segSize: opts.ChunkSize,
		high:    int64(opts.HighWatermark),
		low:     int64(opts.LowWatermark),
	}
	if p.segSize <= 0 {
		p.segSize = DefaultChunkSize
	}
	p.readerWait.L = &p.mu
	p.writerWait.L = &p.mu
	return p
}

// Reserve returns a writable region of at least minSize bytes at the
// end of the stream. It never blocks.
func (p *Pipe) Reserve(minSize int) ([]byte, error) {
	if minSize <= 0 {
		minSize = 1
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.writerDone {
		return nil, ErrWriterCompleted
	}

	tail := p.tailLocked()
	if tail == nil || tail.free() < minSize {
		if tail != nil && tail.n == 0 {
			p.segs = p.segs[:len(p.segs)-1]
			releaseSegment(tail)
		}
		size := p.segSize
		if minSize > size {
			size = minSize
		}
		tail = newSegment(size, p.committed)
		p.segs = append(p.segs, tail)
	}

	region := tail.buf[tail.n:]
	p.reserved = len(region)
	return region, nil
}

// Commit appends the first n bytes of the last reserved region to the
// stream. They stay invisible to the reader until Publish.
func (p *Pipe) Commit(n int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.writerDone {
		return ErrWriterCompleted
	}
	if n < 0 || n > p.reserved {
		return violationf("commit of %d bytes, %d reserved", n, p.reserved)
	}
	p.reserved = 0
	if n == 0 {
		return nil
	}
	p.tailLocked().n += n
	p.committed += int64(n)
	return nil
}

// Publish makes the committed bytes visible to the reader and reports
// the flow-control state.
func (p *Pipe) Publish() PublishResult {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.published < p.committed {
		p.published = p.committed
		p.readerWait.Signal()
	}
	if !p.paused && !p.readerDone && p.published-p.consumed > p.high {
		p.paused = true
	}
	return PublishResult{Paused: p.paused, ReaderCompleted: p.readerDone}
}

// WaitWritable blocks while the pipe is paused. It returns
// ErrReaderCompleted if the reader stopped, or the context error.
func (p *Pipe) WaitWritable(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.paused && !p.readerDone && !p.writerDone {
		stop := context.AfterFunc(ctx, p.wakeAll)
		defer stop()
	}
	for p.paused && !p.readerDone && !p.writerDone {
		if err := ctx.Err(); err != nil {
			return err
		}
		p.writerWait.Wait()
	}
	if p.readerDone {
		return ErrReaderCompleted
	}
	if p.writerDone {
		return ErrWriterCompleted
	}
	return nil
}

// AwaitData blocks until bytes past the examined position are published
// or the writer completes, then returns the whole unconsumed range. Each
// call must be followed by exactly one Advance.
func (p *Pipe) AwaitData(ctx context.Context) (ReadResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.readerDone {
		return ReadResult{}, ErrReaderCompleted
	}
	if p.reading {
		return ReadResult{}, violationf("await without advancing the previous read")
	}

	if p.published <= p.examined && !p.writerDone {
		stop := context.AfterFunc(ctx, p.wakeAll)
		defer stop()
	}
	for p.published <= p.examined && !p.writerDone {
		if err := ctx.Err(); err != nil {
			return ReadResult{}, err
		}
		p.readerWait.Wait()
		if p.readerDone {
			return ReadResult{}, ErrReaderCompleted
		}
	}

	p.reading = true
	p.readStart = p.consumed
	p.readEnd = p.published
	return ReadResult{
		Buffer:    p.viewLocked(p.consumed, p.published),
		Examined:  p.examined,
		Completed: p.writerDone,
	}, nil
}

// Advance returns the range of the last AwaitData. Bytes before consumed
// may be reclaimed; bytes in [consumed, examined) are kept, but the next
// AwaitData waits for data past examined. It fails with
// ErrProtocolViolation unless
//
//	start of range <= consumed <= examined <= end of range
func (p *Pipe) Advance(consumed, examined int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.reading {
		return violationf("advance without a pending read")
	}
	if consumed < p.readStart || consumed > examined || examined > p.readEnd {
		return violationf("advance to consumed=%d examined=%d outside [%d, %d]",
			consumed, examined, p.readStart, p.readEnd)
	}
	p.reading = false
	p.consumed = consumed
	p.examined = examined
	p.reclaimLocked()

	// A reader that examined everything cannot make progress without
	// more data, so an over-long line lifts the pause as well.
	if p.paused && (p.published-p.consumed < p.low || p.examined >= p.published) {
		p.paused = false
		p.writerWait.Signal()
	}
	return nil
}

// CompleteWriter records that no more data will be written. It is
// idempotent; only the first error is kept.
func (p *Pipe) CompleteWriter(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.writerDone {
		return
	}
	p.writerDone = true
	p.writerErr = err
	p.readerWait.Broadcast()
	p.writerWait.Broadcast()
}

// CompleteReader records that no more data will be read. It is
// idempotent; only the first error is kept.
func (p *Pipe) CompleteReader(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.readerDone {
		return
	}
	p.readerDone = true
	p.readerErr = err
	p.reading = false
	p.readerWait.Broadcast()
	p.writerWait.Broadcast()
}

// WriterErr returns the error the writer completed with.
func (p *Pipe) WriterErr() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.writerErr
}

// ReaderErr returns the error the reader completed with.
func (p *Pipe) ReaderErr() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.readerErr
}

// Unconsumed returns the number of published bytes not yet consumed.
func (p *Pipe) Unconsumed() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return int(p.published - p.consumed)
}

// Allocated returns the capacity of the segments the pipe holds.
func (p *Pipe) Allocated() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, s := range p.segs {
		n += len(s.buf)
	}
	return n
}

func (p *Pipe) Paused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.paused
}

// Release returns every segment to the pool. The pipe must not be used
// afterwards.
func (p *Pipe) Release() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.readerDone = true
	p.writerDone = true
	for i, s := range p.segs {
		releaseSegment(s)
		p.segs[i] = nil
	}
	p.segs = nil
	p.readerWait.Broadcast()
	p.writerWait.Broadcast()
}

func (p *Pipe) wakeAll() {
	p.mu.Lock()
	p.readerWait.Broadcast()
	p.writerWait.Broadcast()
	p.mu.Unlock()
}

func (p *Pipe) tailLocked() *segment {
	if len(p.segs) == 0 {
		return nil
	}
	return p.segs[len(p.segs)-1]
}

func (p *Pipe) viewLocked(from, to int64) Segments {
	v := Segments{start: from, end: to}
	for _, s := range p.segs {
		if s.end() <= from || s.start >= to {
			continue
		}
		lo, hi := int64(0), int64(s.n)
		if from > s.start {
			lo = from - s.start
		}
		if to < s.end() {
			hi = to - s.start
		}
		v.bufs = append(v.bufs, s.buf[lo:hi])
	}
	return v
}

// reclaimLocked frees the leading segments that lie entirely before the
// consumed position. The tail is kept for the writer.
func (p *Pipe) reclaimLocked() {
	i := 0
	for i < len(p.segs)-1 && p.segs[i].end() <= p.consumed {
		releaseSegment(p.segs[i])
		i++
	}
	if i == 0 {
		return
	}
	n := copy(p.segs, p.segs[i:])
	for j := n; j < len(p.segs); j++ {
		p.segs[j] = nil
	}
	p.segs = p.segs[:n]
}
