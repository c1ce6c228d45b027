// Copyright 2019 someonegg. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package handlers

import (
	"context"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/someonegg/linepump"
)

// Echo writes every line back through w. A write failure means the peer
// is gone, so it is fatal.
func Echo(w *linepump.LineWriter) linepump.Handler {
	return linepump.HandlerFunc(func(ctx context.Context, l linepump.Line) error {
		if err := w.WriteLine(l); err != nil {
			return linepump.Fatal(err)
		}
		return nil
	})
}

// LogLength logs the length of every line, counted in UTF-8 characters.
func LogLength(logger zerolog.Logger) linepump.Handler {
	return linepump.HandlerFunc(func(ctx context.Context, l linepump.Line) error {
		logger.Info().
			Str("peer", linepump.PeerFromContext(ctx)).
			Int("length", utf8.RuneCount(l)).
			Msg("line")
		return nil
	})
}
