// Copyright 2017 someonegg. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package linepump

import (
	"bytes"
	"io"
	"sync"
)

// segment is one fixed-size block of the pipe's logical byte stream.
type segment struct {
	buf   []byte
	start int64 // stream offset of buf[0]
	n     int   // committed bytes
}

func (s *segment) end() int64 {
	return s.start + int64(s.n)
}

func (s *segment) free() int {
	return len(s.buf) - s.n
}

var segmentPools sync.Map // int -> *sync.Pool

func segmentPool(size int) *sync.Pool {
	if v, ok := segmentPools.Load(size); ok {
		return v.(*sync.Pool)
	}
	v, _ := segmentPools.LoadOrStore(size, &sync.Pool{
		New: func() interface{} {
			return &segment{buf: make([]byte, size)}
		},
	})
	return v.(*sync.Pool)
}

func newSegment(size int, start int64) *segment {
	s := segmentPool(size).Get().(*segment)
	s.start = start
	s.n = 0
	return s
}

func releaseSegment(s *segment) {
	segmentPool(len(s.buf)).Put(s)
}

// Segments is a read-only view of the stream range [Start, End), which
// may be spread over several non-contiguous blocks. The view is only
// valid until the next Advance on the pipe that returned it.
type Segments struct {
	bufs  [][]byte
	start int64
	end   int64
}

func (s Segments) Start() int64 { return s.start }
func (s Segments) End() int64   { return s.end }
func (s Segments) Len() int     { return int(s.end - s.start) }

func (s Segments) IsEmpty() bool {
	return s.start == s.end
}

// Chunks returns the blocks of the view in stream order.
func (s Segments) Chunks() [][]byte {
	return s.bufs
}

// IndexByte returns the stream offset of the first c at or after from,
// or -1. The search runs across block boundaries.
func (s Segments) IndexByte(from int64, c byte) int64 {
	pos := s.start
	for _, b := range s.bufs {
		next := pos + int64(len(b))
		if next <= from {
			pos = next
			continue
		}
		off := 0
		if from > pos {
			off = int(from - pos)
		}
		if i := bytes.IndexByte(b[off:], c); i >= 0 {
			return pos + int64(off+i)
		}
		pos = next
	}
	return -1
}

// Slice returns the view of [from, to). It panics if the bounds are
// outside the view.
func (s Segments) Slice(from, to int64) Segments {
	if from < s.start || to > s.end || from > to {
		panic("linepump: segments slice out of range")
	}
	r := Segments{start: from, end: to}
	pos := s.start
	for _, b := range s.bufs {
		next := pos + int64(len(b))
		if next > from && pos < to {
			lo, hi := int64(0), int64(len(b))
			if from > pos {
				lo = from - pos
			}
			if to < next {
				hi = to - pos
			}
			r.bufs = append(r.bufs, b[lo:hi])
		}
		pos = next
	}
	return r
}

// Contiguous returns the view as a single slice without copying if it
// lives in one block.
func (s Segments) Contiguous() ([]byte, bool) {
	switch len(s.bufs) {
	case 0:
		return []byte{}, true
	case 1:
		return s.bufs[0], true
	}
	return nil, false
}

// AppendTo appends the bytes of the view to dst.
func (s Segments) AppendTo(dst []byte) []byte {
	for _, b := range s.bufs {
		dst = append(dst, b...)
	}
	return dst
}

// WriteTo implements io.WriterTo.
func (s Segments) WriteTo(w io.Writer) (n int64, err error) {
	for _, b := range s.bufs {
		wn, err := w.Write(b)
		n += int64(wn)
		if err != nil {
			return n, err
		}
	}
	return n, nil
}

func (s Segments) String() string {
	return string(s.AppendTo(make([]byte, 0, s.Len())))
}
