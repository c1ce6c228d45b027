// Copyright 2017 someonegg. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package linepump_test

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog"

	"github.com/someonegg/linepump"
)

func ExamplePump() {
	s := io.NopCloser(strings.NewReader("hello\n\nworld\nunterminated"))

	h := linepump.HandlerFunc(func(ctx context.Context, l linepump.Line) error {
		fmt.Printf("%q\n", l)
		return nil
	})

	p, err := linepump.NewPump(s, h, linepump.DefaultOptions())
	if err != nil {
		panic(err)
	}
	p.SetLogger(zerolog.Nop())
	p.Start(context.Background())

	<-p.StopD()
	fmt.Println("error:", p.Error())
	// Output:
	// "hello"
	// ""
	// "world"
	// error: <nil>
}

func ExamplePipe() {
	p := linepump.NewPipe(linepump.DefaultOptions())

	buf, _ := p.Reserve(16)
	n := copy(buf, "one\ntw")
	p.Commit(n)
	p.Publish()
	p.CompleteWriter(nil)

	res, _ := p.AwaitData(context.Background())
	i := res.Buffer.IndexByte(res.Examined, '\n')
	fmt.Println(res.Buffer.Slice(res.Buffer.Start(), i))
	p.Advance(i+1, res.Buffer.End())
	fmt.Println(res.Completed, p.Unconsumed())
	// Output:
	// one
	// true 2
}
