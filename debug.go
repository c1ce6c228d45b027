// Copyright 2017 someonegg. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package linepump

import (
	"context"
	"fmt"
	"io"
	"sync"
)

// LineDump is a debugging helper, it implements the Handler interface
// and dumps every line before passing it on.
//
// The dump format is:
//
//	L:Peer:LineSize\nLine\n\n
type LineDump struct {
	H    Handler
	Dump io.Writer

	// Filter can be nil. If nil, dump all lines.
	Filter func(ctx context.Context, l Line) bool

	mu sync.Mutex
}

func (d *LineDump) needDump(ctx context.Context, l Line) bool {
	if d.Filter != nil {
		return d.Filter(ctx, l)
	}
	return true
}

func (d *LineDump) Process(ctx context.Context, l Line) error {
	if d.needDump(ctx, l) {
		d.mu.Lock()
		fmt.Fprintf(d.Dump, "L:%v:%v\n", PeerFromContext(ctx), len(l))
		d.Dump.Write(l)
		fmt.Fprintf(d.Dump, "\n\n")
		d.mu.Unlock()
	}

	if d.H == nil {
		return nil
	}
	return d.H.Process(ctx, l)
}

// OnStop forwards to the wrapped handler.
func (d *LineDump) OnStop() {
	if sn, ok := d.H.(StopNotifier); ok {
		sn.OnStop()
	}
}
