// Copyright 2019 someonegg. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command linepumpd accepts line-oriented connections and forwards every
// line to the configured sinks.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/someonegg/linepump"
	"github.com/someonegg/linepump/handlers"
	"github.com/someonegg/linepump/internal/config"
	"github.com/someonegg/linepump/internal/logger"
	"github.com/someonegg/linepump/internal/server"
	"github.com/someonegg/linepump/sink"
)

var version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:           "linepumpd",
		Short:         "Line pump server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.AddCommand(serveCmd(), versionCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "linepumpd", version)
		},
	}
}

func serveCmd() *cobra.Command {
	var (
		configPath string
		listen     string
		wsListen   string
		echo       bool
		async      bool
		dump       bool
		logLevel   string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Accept connections and pump their lines",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			flags := cmd.Flags()
			if flags.Changed("listen") {
				cfg.Server.Listen = listen
			}
			if flags.Changed("ws-listen") {
				cfg.Server.WSListen = wsListen
			}
			if flags.Changed("echo") {
				cfg.Server.Echo = echo
			}
			if flags.Changed("async") {
				cfg.Server.Async = async
			}
			if flags.Changed("log-level") {
				cfg.Log.Level = logLevel
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			logger.Init(cfg.Log.Level)
			return serve(cfg, dump)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Config file (.toml or .ini)")
	cmd.Flags().StringVarP(&listen, "listen", "l", "", "TCP listen address")
	cmd.Flags().StringVar(&wsListen, "ws-listen", "", "Websocket listen address")
	cmd.Flags().BoolVar(&echo, "echo", false, "Echo every line back to its sender")
	cmd.Flags().BoolVar(&async, "async", false, "Deliver lines to the sinks from worker goroutines")
	cmd.Flags().BoolVar(&dump, "dump", false, "Dump every line to stderr")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	return cmd
}

func serve(cfg *config.Config, dump bool) error {
	var (
		sinks    []linepump.Handler
		registry server.Registry
	)

	if cfg.NATS.URL != "" {
		nc, err := nats.Connect(cfg.NATS.URL, nats.Name("linepumpd"))
		if err != nil {
			return fmt.Errorf("failed to connect to NATS: %w", err)
		}
		defer nc.Drain()
		log.Info().Str("url", cfg.NATS.URL).Str("subject", cfg.NATS.Subject).Msg("connected to NATS")
		sinks = append(sinks, sink.NATS(nc, cfg.NATS.Subject))
	}

	redisOpts, err := cfg.RedisOptions()
	if err != nil {
		return err
	}
	if redisOpts != nil {
		rc := redis.NewClient(redisOpts)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := rc.Ping(ctx).Err()
		cancel()
		if err != nil {
			rc.Close()
			return fmt.Errorf("failed to connect to Redis: %w", err)
		}
		defer rc.Close()
		log.Info().Str("addr", redisOpts.Addr).Msg("connected to Redis")

		if cfg.Redis.Stream != "" {
			sinks = append(sinks, &sink.RedisStream{
				Client: rc,
				Stream: cfg.Redis.Stream,
				MaxLen: cfg.Redis.MaxLen,
			})
		}
		registry = rc
	}

	var h linepump.Handler
	switch len(sinks) {
	case 0:
	case 1:
		h = sinks[0]
	default:
		h = handlers.Multi(sinks...)
	}
	if h != nil && cfg.Server.Async {
		h = handlers.Async(h, 30*time.Second)
	}
	if dump {
		h = &linepump.LineDump{H: h, Dump: os.Stderr}
	}

	srv, err := server.New(cfg, h, registry)
	if err != nil {
		return err
	}
	if err := srv.Start(); err != nil {
		return err
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	log.Info().Str("signal", sig.String()).Msg("shutting down")

	srv.Stop()
	srv.Wait()
	log.Info().Msg("server stopped")
	return nil
}
