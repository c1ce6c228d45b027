// Copyright 2017 someonegg. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package linepump provides a line-pump facility.
//
// The line-pump continuously reads a byte stream, splits it into lines
// terminated by a single delimiter byte, and hands each line to a
// Handler, after startup.
//
// Reading and framing are decoupled by a Pipe, a segmented buffer with
// one writer and one reader. The fill loop reads the stream into the
// pipe; the frame loop scans the pipe for delimiters, across segment
// boundaries, and dispatches complete lines. The pipe remembers how far
// the frame loop has examined so an unterminated tail is never scanned
// twice, and pauses the fill loop while more than the high watermark of
// bytes is unconsumed.
//
// Trailing bytes without a delimiter are discarded when the stream ends,
// unless Options.FlushOnClose is set.
//
// The transport is defined by the Stream interface, there are two
// adapters:
//
//	NetconnStream over net.Conn
//	WebsocketStream over websocket.Conn
//
// Here is a quick example, an echo server.
//
//	l, err := net.Listen("tcp", "127.0.0.1:8087")
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	for {
//		conn, err := l.Accept()
//		if err != nil {
//			log.Fatal(err)
//		}
//
//		w := linepump.NewLineWriter(conn, '\n')
//		h := linepump.HandlerFunc(func(ctx context.Context, l linepump.Line) error {
//			return w.WriteLine(l)
//		})
//
//		p, err := linepump.NetconnPump(nil, conn, h, linepump.DefaultOptions())
//		if err != nil {
//			log.Fatal(err)
//		}
//		go func() {
//			<-p.StopD()
//			log.Printf("%v disconnected, error: %v", conn.RemoteAddr(), p.Error())
//		}()
//	}
package linepump
