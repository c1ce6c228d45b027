// Copyright 2017 someonegg. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package linepump

import "fmt"

const (
	DefaultChunkSize     = 4 << 10
	DefaultHighWatermark = 64 << 10
	DefaultLowWatermark  = 32 << 10
	DefaultDelimiter     = '\n'
)

// Options controls a pump's read size, flow control and framing.
type Options struct {
	// ChunkSize is the minimum writable region reserved for each read.
	ChunkSize int

	// The writer is paused once more than HighWatermark bytes are
	// unconsumed, and resumed when the reader brings them below
	// LowWatermark.
	HighWatermark int
	LowWatermark  int

	Delimiter byte

	// FlushOnClose delivers the undelimited tail of the stream to the
	// handler as a final line. By default the tail is discarded, a line
	// always needs a terminator.
	FlushOnClose bool
}

func DefaultOptions() Options {
	return Options{
		ChunkSize:     DefaultChunkSize,
		HighWatermark: DefaultHighWatermark,
		LowWatermark:  DefaultLowWatermark,
		Delimiter:     DefaultDelimiter,
	}
}

func (o Options) Validate() error {
	if o.ChunkSize <= 0 {
		return fmt.Errorf("linepump: chunk size must be positive, got %d", o.ChunkSize)
	}
	if o.LowWatermark <= 0 {
		return fmt.Errorf("linepump: low watermark must be positive, got %d", o.LowWatermark)
	}
	if o.LowWatermark > o.HighWatermark {
		return fmt.Errorf("linepump: low watermark %d above high watermark %d",
			o.LowWatermark, o.HighWatermark)
	}
	return nil
}
