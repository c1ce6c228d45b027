// Copyright 2017 someonegg. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package linepump

import (
	"errors"
	"fmt"
)

var (
	// ErrProtocolViolation reports a broken pipe contract, such as an
	// Advance outside the range returned by the last AwaitData. It is a
	// programming fault and always aborts the connection.
	ErrProtocolViolation = errors.New("linepump: framing protocol violation")

	// ErrReaderCompleted is returned to the reader side after it has
	// called CompleteReader.
	ErrReaderCompleted = errors.New("linepump: reader completed")

	// ErrWriterCompleted is returned to the writer side after it has
	// called CompleteWriter.
	ErrWriterCompleted = errors.New("linepump: writer completed")

	errUnknownPanic = errors.New("unknown panic")
)

func violationf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrProtocolViolation, fmt.Sprintf(format, args...))
}

// IOError is a failure of the underlying stream. It terminates the fill
// side of the pump; the frame side drains what was already received.
type IOError struct {
	Err error
}

func (e *IOError) Error() string {
	return "linepump: read: " + e.Err.Error()
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// HandlerError is a failure of the line handler, either a returned error
// or a recovered panic. Unless it is fatal, the pump logs it and goes on
// with the next line.
type HandlerError struct {
	Err   error
	Panic interface{}
}

func (e *HandlerError) Error() string {
	if e.Panic != nil {
		return fmt.Sprintf("linepump: handler panic: %v", e.Panic)
	}
	return "linepump: handler: " + e.Err.Error()
}

func (e *HandlerError) Unwrap() error {
	return e.Err
}

type fatalError struct {
	err error
}

func (e fatalError) Error() string { return e.err.Error() }
func (e fatalError) Unwrap() error { return e.err }

// Fatal marks a handler error as fatal: the pump stops and tears the
// connection down instead of continuing with the next line.
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	return fatalError{err}
}

// IsFatal reports whether err, or any error it wraps, was marked by Fatal.
func IsFatal(err error) bool {
	var fe fatalError
	return errors.As(err, &fe)
}
