// Copyright 2019 someonegg. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package handlers

import (
	"context"
	"errors"

	"github.com/someonegg/linepump"
)

type multi []linepump.Handler

// Multi passes every line to each of hs in turn. A failing handler does
// not keep the line from the next one; the failures are joined.
func Multi(hs ...linepump.Handler) linepump.Handler {
	return multi(hs)
}

func (m multi) Process(ctx context.Context, l linepump.Line) error {
	var errs []error
	for _, h := range m {
		if err := h.Process(ctx, l); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// OnStop notifies the handlers that implement linepump.StopNotifier.
func (m multi) OnStop() {
	for _, h := range m {
		if sn, ok := h.(linepump.StopNotifier); ok {
			sn.OnStop()
		}
	}
}
