// Copyright 2019 someonegg. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package server accepts TCP and websocket connections and runs a line
// pump for each of them.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/someonegg/linepump"
	"github.com/someonegg/linepump/handlers"
	"github.com/someonegg/linepump/internal/config"
	"github.com/someonegg/linepump/internal/logger"
)

// WebsocketPath is the websocket endpoint on the ws listener.
const WebsocketPath = "/lines"

// Registry is the part of *redis.Client used to publish the live
// sessions.
type Registry interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// Session is one accepted connection.
type Session struct {
	ID         string
	RemoteAddr string
	Since      time.Time

	pump *linepump.Pump
}

// Statistics returns the pump counters of the session.
func (s *Session) Statistics() linepump.Statistics {
	return s.pump.Statistics()
}

// Server runs a pump per connection. Every line goes to the shared
// handler, and back to the sender in echo mode.
type Server struct {
	cfg      *config.Config
	opts     linepump.Options
	handler  linepump.Handler
	registry Registry
	log      zerolog.Logger

	listener net.Listener
	wsServer *http.Server
	wsAddr   net.Addr
	upgrader websocket.Upgrader

	sessions sync.Map // map[string]*Session
	mu       sync.Mutex
	stopping bool
	wg       sync.WaitGroup
	ctx      context.Context
	cancel   context.CancelFunc
}

// New creates a server. A nil handler logs the length of every line,
// a nil registry disables session publishing.
func New(cfg *config.Config, h linepump.Handler, reg Registry) (*Server, error) {
	opts, err := cfg.Options()
	if err != nil {
		return nil, err
	}

	l := logger.WithComponent("server")
	if h == nil {
		h = handlers.LogLength(l)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		cfg:      cfg,
		opts:     opts,
		handler:  h,
		registry: reg,
		log:      l,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  opts.ChunkSize,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		ctx:    ctx,
		cancel: cancel,
	}, nil
}

// Start opens the configured listeners and begins accepting.
func (s *Server) Start() error {
	if addr := s.cfg.Server.Listen; addr != "" {
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			return fmt.Errorf("failed to listen on %s: %w", addr, err)
		}
		s.listener = ln
		s.log.Info().Str("addr", ln.Addr().String()).Msg("tcp listening")

		s.wg.Add(1)
		go s.acceptLoop()
	}

	if addr := s.cfg.Server.WSListen; addr != "" {
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			if s.listener != nil {
				s.listener.Close()
			}
			return fmt.Errorf("failed to listen on %s: %w", addr, err)
		}
		s.wsAddr = ln.Addr()

		mux := http.NewServeMux()
		mux.HandleFunc(WebsocketPath, s.handleWebsocket)
		s.wsServer = &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
		s.log.Info().Str("addr", ln.Addr().String()).Msg("websocket listening")

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if err := s.wsServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.log.Error().Err(err).Msg("websocket server")
			}
		}()
	}

	return nil
}

// Addr is the TCP listener address, nil when not listening.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// WebsocketAddr is the websocket listener address, nil when not listening.
func (s *Server) WebsocketAddr() net.Addr {
	return s.wsAddr
}

// Stop closes the listeners and stops every session.
func (s *Server) Stop() {
	s.mu.Lock()
	s.stopping = true
	s.mu.Unlock()

	s.cancel()
	if s.listener != nil {
		s.listener.Close()
	}
	if s.wsServer != nil {
		s.wsServer.Close()
	}
}

// track adds one to the wait group unless the server is stopping. The
// websocket handlers run outside the Serve goroutine, so a late one must
// not Add after Wait has returned.
func (s *Server) track() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopping {
		return false
	}
	s.wg.Add(1)
	return true
}

// Wait blocks until the accept loops and all sessions have ended.
func (s *Server) Wait() {
	s.wg.Wait()
}

// Sessions returns a snapshot of the live sessions.
func (s *Server) Sessions() []*Session {
	var all []*Session
	s.sessions.Range(func(key, value interface{}) bool {
		all = append(all, value.(*Session))
		return true
	})
	return all
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.ctx.Done():
				return
			default:
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				s.log.Warn().Err(err).Msg("accept")
				time.Sleep(10 * time.Millisecond)
				continue
			}
			s.log.Error().Err(err).Msg("accept")
			return
		}

		stream := linepump.NetconnStream{Conn: conn, ReadTimeout: s.cfg.Server.ReadTimeout}
		s.serve(stream, conn, conn.RemoteAddr().String())
	}
}

func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	if !s.track() {
		http.Error(w, "server stopping", http.StatusServiceUnavailable)
		return
	}
	defer s.wg.Done()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("websocket upgrade")
		return
	}

	stream := linepump.NewWebsocketStream(conn)
	stream.IsEOF = func(err error) bool {
		return websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway)
	}
	s.serve(stream, stream, conn.RemoteAddr().String())
}

// serve starts the pump of one connection. echo is where the lines go
// back in echo mode.
func (s *Server) serve(stream linepump.Stream, echo io.Writer, remote string) {
	if !s.track() {
		stream.Close()
		return
	}

	sess := &Session{
		ID:         uuid.NewString(),
		RemoteAddr: remote,
		Since:      time.Now(),
	}
	l := s.log.With().Str("conn", sess.ID).Logger()

	h := s.handler
	if s.cfg.Server.Echo {
		h = handlers.Multi(h, handlers.Echo(linepump.NewLineWriter(echo, s.opts.Delimiter)))
	}

	pump, err := linepump.NewPump(stream, h, s.opts)
	if err != nil {
		l.Error().Err(err).Msg("pump")
		stream.Close()
		s.wg.Done()
		return
	}
	pump.SetLogger(l)
	sess.pump = pump

	s.sessions.Store(sess.ID, sess)
	s.register(sess)
	l.Info().Str("remote", remote).Msg("connected")

	pump.Start(linepump.ContextWithPeer(s.ctx, sess.ID))

	go func() {
		defer s.wg.Done()
		<-pump.StopD()
		s.cleanup(sess, l)
	}()
}

func (s *Server) cleanup(sess *Session, l zerolog.Logger) {
	s.sessions.Delete(sess.ID)
	s.unregister(sess)

	stat := sess.pump.Statistics()
	ev := l.Info()
	if err := sess.pump.Error(); err != nil {
		ev = l.Warn().Err(err)
	}
	ev.Int64("lines", stat.LineCount).
		Int64("bytes", stat.ReadBytes).
		Dur("duration", time.Since(sess.Since)).
		Msg("disconnected")
}

func (s *Server) sessionKey(sess *Session) string {
	return s.cfg.Redis.SessionPrefix + sess.ID
}

func (s *Server) register(sess *Session) {
	if s.registry == nil || s.cfg.Redis.SessionPrefix == "" {
		return
	}
	err := s.registry.Set(s.ctx, s.sessionKey(sess), sess.RemoteAddr, s.cfg.Redis.SessionTTL).Err()
	if err != nil {
		s.log.Warn().Err(err).Str("conn", sess.ID).Msg("failed to register session")
	}
}

func (s *Server) unregister(sess *Session) {
	if s.registry == nil || s.cfg.Redis.SessionPrefix == "" {
		return
	}
	// s.ctx may be canceled already.
	if err := s.registry.Del(context.Background(), s.sessionKey(sess)).Err(); err != nil {
		s.log.Warn().Err(err).Str("conn", sess.ID).Msg("failed to unregister session")
	}
}
