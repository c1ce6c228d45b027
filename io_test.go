package linepump

import (
	"bytes"
	"context"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// mockStream returns one chunk per Read. Once the chunks are used up it
// returns err (io.EOF if nil), or, with block set, waits for Close.
type mockStream struct {
	mu     sync.Mutex
	chunks []string
	err    error
	block  bool

	reads  int
	closes int
	closed chan struct{}
}

func newMockStream(chunks ...string) *mockStream {
	return &mockStream{chunks: chunks, closed: make(chan struct{})}
}

func (s *mockStream) Read(b []byte) (int, error) {
	s.mu.Lock()
	s.reads++
	if len(s.chunks) > 0 {
		n := copy(b, s.chunks[0])
		if n < len(s.chunks[0]) {
			s.chunks[0] = s.chunks[0][n:]
		} else {
			s.chunks = s.chunks[1:]
		}
		s.mu.Unlock()
		return n, nil
	}
	block, err := s.block, s.err
	s.mu.Unlock()

	if block {
		<-s.closed
		return 0, net.ErrClosed
	}
	if err == nil {
		err = io.EOF
	}
	return 0, err
}

func (s *mockStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closes++
	if s.closes == 1 {
		close(s.closed)
	}
	return nil
}

func (s *mockStream) counts() (reads, closes int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads, s.closes
}

// lineRecorder copies every line it is given.
type lineRecorder struct {
	mu    sync.Mutex
	lines []string
	stops int
}

func (r *lineRecorder) Process(ctx context.Context, l Line) error {
	r.mu.Lock()
	r.lines = append(r.lines, string(l))
	r.mu.Unlock()
	return nil
}

func (r *lineRecorder) OnStop() {
	r.mu.Lock()
	r.stops++
	r.mu.Unlock()
}

func (r *lineRecorder) result() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.lines...)
}

func newTestPump(test *testing.T, s Stream, h Handler, opts Options) *Pump {
	test.Helper()
	p, err := NewPump(s, h, opts)
	if err != nil {
		test.Fatal("new pump", err)
	}
	p.SetLogger(zerolog.Nop())
	p.SetPanicLogFunc(nil)
	return p
}

func waitStop(test *testing.T, p *Pump) {
	test.Helper()
	select {
	case <-p.StopD():
	case <-time.After(2 * time.Second):
		test.Fatal("pump stop")
	}
}

func equalLines(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestLineWriter(test *testing.T) {
	var b bytes.Buffer
	w := NewLineWriter(&b, '\n')

	if err := w.WriteLine([]byte("l1")); err != nil {
		test.Fatal(err)
	}
	if err := w.WriteLine(nil); err != nil {
		test.Fatal(err)
	}

	if b.String() != "l1\n\n" {
		test.Fatal("line writer format", b.String())
	}
}

func TestPeerContext(test *testing.T) {
	ctx := ContextWithPeer(context.Background(), "10.0.0.1:7000")
	if PeerFromContext(ctx) != "10.0.0.1:7000" {
		test.Fatal("peer")
	}
	if PeerFromContext(context.Background()) != "" {
		test.Fatal("empty peer")
	}
}
