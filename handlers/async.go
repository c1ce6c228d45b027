// Copyright 2019 someonegg. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package handlers

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/someonegg/linepump"
)

type entry struct {
	ctx context.Context
	l   linepump.Line
}

type asyncHandler struct {
	h      linepump.Handler
	idle   time.Duration
	entryC chan entry
}

// Async converts a handler to asynchronous mode, then each call is initiated
// from a separate worker goroutine. Lines are copied before they are queued,
// and lines processed by different workers may finish out of order. Errors of
// the wrapped handler are logged.
func Async(h linepump.Handler, workerIdleTimeout time.Duration) linepump.Handler {
	return &asyncHandler{
		h:      h,
		idle:   workerIdleTimeout,
		entryC: make(chan entry),
	}
}

func (h *asyncHandler) Process(ctx context.Context, l linepump.Line) error {
	e := entry{ctx, append(linepump.Line(nil), l...)}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case h.entryC <- e:
	default:
		go h.work(e)
	}
	return nil
}

func (h *asyncHandler) work(e entry) {
	h.handle(e)

	t := time.NewTimer(h.idle)

	for q := false; !q; {
		select {
		case e = <-h.entryC:
			h.handle(e)

			if !t.Stop() {
				<-t.C
			}
			t.Reset(h.idle)
		case <-t.C:
			q = true
		}
	}
}

func (h *asyncHandler) handle(e entry) {
	if err := h.h.Process(e.ctx, e.l); err != nil {
		log.Warn().Err(err).Str("peer", linepump.PeerFromContext(e.ctx)).Msg("async handler failed")
	}
}
