// Copyright 2019 someonegg. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Init sets up the global zerolog logger. An unknown level falls back to
// info.
func Init(level string) {
	InitWriter(os.Stderr, level)
}

// InitWriter is Init with the console output sent to out.
func InitWriter(out io.Writer, level string) {
	levelStr := strings.ToLower(level)
	lvl, err := zerolog.ParseLevel(levelStr)
	if err != nil || levelStr == "" {
		lvl = zerolog.InfoLevel
		if err != nil {
			fmt.Fprintf(os.Stderr, "Unknown log level '%s', defaulting to 'info'\n", levelStr)
		}
	}

	// Force all timestamps to be in UTC.
	zerolog.TimestampFunc = func() time.Time {
		return time.Now().UTC()
	}

	log.Logger = zerolog.New(zerolog.ConsoleWriter{
		Out:        out,
		TimeFormat: "2006-01-02 15:04:05",
		NoColor:    true,
	}).
		Level(lvl).
		With().
		Timestamp().
		Logger()
}

// WithComponent returns a child of the global logger tagged with the
// component name.
func WithComponent(name string) zerolog.Logger {
	return log.Logger.With().Str("component", name).Logger()
}
