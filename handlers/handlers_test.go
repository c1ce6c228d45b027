package handlers

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/someonegg/linepump"
)

type failWriter struct{}

func (failWriter) Write(b []byte) (int, error) {
	return 0, errors.New("broken pipe")
}

func TestEcho(t *testing.T) {
	var b bytes.Buffer
	h := Echo(linepump.NewLineWriter(&b, '\n'))

	for _, l := range []string{"one", "", "two"} {
		if err := h.Process(context.Background(), linepump.Line(l)); err != nil {
			t.Fatalf("Process(%q): %v", l, err)
		}
	}
	if b.String() != "one\n\ntwo\n" {
		t.Errorf("echo = %q", b.String())
	}

	h = Echo(linepump.NewLineWriter(failWriter{}, '\n'))
	if err := h.Process(context.Background(), linepump.Line("x")); !linepump.IsFatal(err) {
		t.Errorf("echo write failure = %v, want fatal", err)
	}
}

func TestLogLength(t *testing.T) {
	var b bytes.Buffer
	h := LogLength(zerolog.New(&b))

	ctx := linepump.ContextWithPeer(context.Background(), "p1")
	if err := h.Process(ctx, linepump.Line("héllo")); err != nil {
		t.Fatal(err)
	}

	out := b.String()
	if !strings.Contains(out, `"length":5`) || !strings.Contains(out, `"peer":"p1"`) {
		t.Errorf("log = %s", out)
	}
}

func TestMulti(t *testing.T) {
	var got []string
	record := linepump.HandlerFunc(func(ctx context.Context, l linepump.Line) error {
		got = append(got, string(l))
		return nil
	})
	errBad := errors.New("bad")
	fail := linepump.HandlerFunc(func(ctx context.Context, l linepump.Line) error {
		return errBad
	})

	h := Multi(fail, record, record)
	err := h.Process(context.Background(), linepump.Line("l"))
	if !errors.Is(err, errBad) {
		t.Errorf("err = %v, want %v", err, errBad)
	}
	if len(got) != 2 {
		t.Errorf("handled %d times, want 2", len(got))
	}

	h = Multi(record, linepump.HandlerFunc(func(ctx context.Context, l linepump.Line) error {
		return linepump.Fatal(errBad)
	}))
	if err := h.Process(context.Background(), linepump.Line("l")); !linepump.IsFatal(err) {
		t.Errorf("err = %v, want fatal", err)
	}
}

func TestAsync(t *testing.T) {
	var mu sync.Mutex
	var got []string
	done := make(chan struct{}, 3)
	h := Async(linepump.HandlerFunc(func(ctx context.Context, l linepump.Line) error {
		mu.Lock()
		got = append(got, string(l))
		mu.Unlock()
		done <- struct{}{}
		return nil
	}), 10*time.Millisecond)

	buf := []byte("abc")
	for i := 0; i < 3; i++ {
		if err := h.Process(context.Background(), linepump.Line(buf)); err != nil {
			t.Fatal(err)
		}
		// the pump reuses line storage once Process returns
		buf[0]++
	}

	for i := 0; i < 3; i++ {
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("async line not handled")
		}
	}

	mu.Lock()
	defer mu.Unlock()
	seen := map[string]bool{}
	for _, l := range got {
		seen[l] = true
	}
	for _, want := range []string{"abc", "bbc", "cbc"} {
		if !seen[want] {
			t.Errorf("missing line %q in %q", want, got)
		}
	}
}

func TestAsyncCanceled(t *testing.T) {
	h := Async(linepump.HandlerFunc(func(ctx context.Context, l linepump.Line) error {
		return nil
	}), time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := h.Process(ctx, linepump.Line("x")); err != context.Canceled {
		t.Errorf("err = %v", err)
	}
}
