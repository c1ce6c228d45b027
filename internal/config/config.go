// Copyright 2019 someonegg. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/redis/go-redis/v9"
	"gopkg.in/ini.v1"

	"github.com/someonegg/linepump"
)

// Config is the linepumpd configuration, loaded from a TOML or INI file.
type Config struct {
	Server ServerConf `toml:"server" ini:"server"`
	Pipe   PipeConf   `toml:"pipe" ini:"pipe"`
	Log    LogConf    `toml:"log" ini:"log"`
	NATS   NATSConf   `toml:"nats" ini:"nats"`
	Redis  RedisConf  `toml:"redis" ini:"redis"`
}

type ServerConf struct {
	// TCP listen address.
	Listen string `toml:"listen" ini:"listen"`
	// Websocket listen address, empty means no websocket listener.
	WSListen string `toml:"ws_listen" ini:"ws_listen"`
	// Echo every line back to its sender.
	Echo bool `toml:"echo" ini:"echo"`
	// Hand lines to the broker sinks from worker goroutines. Lines may
	// then be delivered out of order and backpressure stops at the sinks.
	Async bool `toml:"async" ini:"async"`
	// Idle connections are closed after ReadTimeout, zero disables it.
	ReadTimeout time.Duration `toml:"read_timeout" ini:"read_timeout"`
}

type PipeConf struct {
	ChunkSize     int    `toml:"chunk_size" ini:"chunk_size"`
	HighWatermark int    `toml:"high_watermark" ini:"high_watermark"`
	LowWatermark  int    `toml:"low_watermark" ini:"low_watermark"`
	Delimiter     string `toml:"delimiter" ini:"delimiter"`
	FlushOnClose  bool   `toml:"flush_on_close" ini:"flush_on_close"`
}

type LogConf struct {
	Level string `toml:"level" ini:"level"`
}

type NATSConf struct {
	URL     string `toml:"url" ini:"url"`
	Subject string `toml:"subject" ini:"subject"`
}

type RedisConf struct {
	// URL is a redis:// or rediss:// URL and takes precedence over Addr.
	URL    string `toml:"url" ini:"url"`
	Addr   string `toml:"addr" ini:"addr"`
	Stream string `toml:"stream" ini:"stream"`
	MaxLen int64  `toml:"maxlen" ini:"maxlen"`
	// Connections are registered under SessionPrefix+id when set.
	SessionPrefix string        `toml:"session_prefix" ini:"session_prefix"`
	SessionTTL    time.Duration `toml:"session_ttl" ini:"session_ttl"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	opts := linepump.DefaultOptions()
	return &Config{
		Server: ServerConf{
			Listen: "127.0.0.1:8087",
		},
		Pipe: PipeConf{
			ChunkSize:     opts.ChunkSize,
			HighWatermark: opts.HighWatermark,
			LowWatermark:  opts.LowWatermark,
			Delimiter:     `\n`,
		},
		Log: LogConf{
			Level: "info",
		},
		NATS: NATSConf{
			Subject: "linepump.lines",
		},
		Redis: RedisConf{
			Stream:     "linepump:lines",
			SessionTTL: 5 * time.Minute,
		},
	}
}

// Load reads path over the defaults, applies environment overrides and
// validates the result. An empty path loads only defaults and
// environment.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		switch ext := strings.ToLower(filepath.Ext(path)); ext {
		case ".toml":
			if _, err := toml.DecodeFile(path, cfg); err != nil {
				return nil, fmt.Errorf("parsing %s: %w", path, err)
			}
		case ".ini", ".conf":
			f, err := ini.Load(path)
			if err != nil {
				return nil, fmt.Errorf("parsing %s: %w", path, err)
			}
			if err := f.MapTo(cfg); err != nil {
				return nil, fmt.Errorf("mapping %s: %w", path, err)
			}
		default:
			return nil, fmt.Errorf("unknown config format %q", ext)
		}
	}

	overrideFromEnv(&cfg.Server.Listen, "LINEPUMP_LISTEN")
	overrideFromEnv(&cfg.Server.WSListen, "LINEPUMP_WS_LISTEN")
	overrideFromEnvInt(&cfg.Pipe.ChunkSize, "LINEPUMP_CHUNK_SIZE")
	overrideFromEnvInt(&cfg.Pipe.HighWatermark, "LINEPUMP_HIGH_WATERMARK")
	overrideFromEnvInt(&cfg.Pipe.LowWatermark, "LINEPUMP_LOW_WATERMARK")
	overrideFromEnv(&cfg.Log.Level, "LINEPUMP_LOG_LEVEL")
	overrideFromEnv(&cfg.NATS.URL, "NATS_URL")
	overrideFromEnv(&cfg.Redis.Addr, "REDIS_ADDR")
	overrideFromEnv(&cfg.Redis.URL, "REDIS_URL")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Server.Listen == "" && c.Server.WSListen == "" {
		return fmt.Errorf("no listen address")
	}
	if _, err := ParseDelimiter(c.Pipe.Delimiter); err != nil {
		return err
	}
	if _, err := c.Options(); err != nil {
		return err
	}
	if _, err := c.RedisOptions(); err != nil {
		return err
	}
	return nil
}

// RedisOptions returns the client options of the [redis] section, nil
// when Redis is not configured.
func (c *Config) RedisOptions() (*redis.Options, error) {
	if c.Redis.URL != "" {
		opts, err := redis.ParseURL(c.Redis.URL)
		if err != nil {
			return nil, fmt.Errorf("redis url: %w", err)
		}
		return opts, nil
	}
	if c.Redis.Addr != "" {
		return &redis.Options{Addr: c.Redis.Addr}, nil
	}
	return nil, nil
}

// Options returns the pump options of the [pipe] section.
func (c *Config) Options() (linepump.Options, error) {
	delim, err := ParseDelimiter(c.Pipe.Delimiter)
	if err != nil {
		return linepump.Options{}, err
	}
	opts := linepump.Options{
		ChunkSize:     c.Pipe.ChunkSize,
		HighWatermark: c.Pipe.HighWatermark,
		LowWatermark:  c.Pipe.LowWatermark,
		Delimiter:     delim,
		FlushOnClose:  c.Pipe.FlushOnClose,
	}
	return opts, opts.Validate()
}

// ParseDelimiter accepts a single character, an escape (\n \r \t \0) or
// a hex byte such as 0x7e.
func ParseDelimiter(s string) (byte, error) {
	switch s {
	case `\n`:
		return '\n', nil
	case `\r`:
		return '\r', nil
	case `\t`:
		return '\t', nil
	case `\0`:
		return 0, nil
	}
	if len(s) == 1 {
		return s[0], nil
	}
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		v, err := strconv.ParseUint(s[2:], 16, 8)
		if err == nil {
			return byte(v), nil
		}
	}
	return 0, fmt.Errorf("delimiter must be a single byte, got %q", s)
}

func overrideFromEnv(target *string, envName string) {
	if envValue := os.Getenv(envName); envValue != "" {
		*target = envValue
	}
}

func overrideFromEnvInt(target *int, envName string) {
	envValue := os.Getenv(envName)
	if envValue != "" {
		if intValue, err := strconv.Atoi(envValue); err == nil {
			*target = intValue
		}
	}
}
