package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Listen != "127.0.0.1:8087" {
		t.Errorf("Listen = %q", cfg.Server.Listen)
	}
	opts, err := cfg.Options()
	if err != nil {
		t.Fatalf("Options: %v", err)
	}
	if opts.Delimiter != '\n' || opts.ChunkSize != 4096 || opts.FlushOnClose {
		t.Errorf("opts = %+v", opts)
	}
}

func TestLoadTOML(t *testing.T) {
	path := writeFile(t, "linepump.toml", `
[server]
listen = "0.0.0.0:9000"
echo = true
async = true
read_timeout = "30s"

[pipe]
chunk_size = 1024
high_watermark = 8192
low_watermark = 2048
delimiter = ";"
flush_on_close = true

[nats]
url = "nats://localhost:4222"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Listen != "0.0.0.0:9000" || !cfg.Server.Echo || !cfg.Server.Async || cfg.Server.ReadTimeout != 30*time.Second {
		t.Errorf("server = %+v", cfg.Server)
	}
	opts, _ := cfg.Options()
	if opts.ChunkSize != 1024 || opts.HighWatermark != 8192 || opts.LowWatermark != 2048 ||
		opts.Delimiter != ';' || !opts.FlushOnClose {
		t.Errorf("opts = %+v", opts)
	}
	if cfg.NATS.URL != "nats://localhost:4222" || cfg.NATS.Subject != "linepump.lines" {
		t.Errorf("nats = %+v", cfg.NATS)
	}
}

func TestLoadINI(t *testing.T) {
	path := writeFile(t, "linepump.ini", `
[server]
listen = :8087
ws_listen = :8088

[pipe]
delimiter = 0x7e

[redis]
addr = localhost:6379
maxlen = 500
session_prefix = linepump:sess:
session_ttl = 1m
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Listen != ":8087" || cfg.Server.WSListen != ":8088" {
		t.Errorf("server = %+v", cfg.Server)
	}
	if opts, _ := cfg.Options(); opts.Delimiter != 0x7e {
		t.Errorf("delimiter = %#x", opts.Delimiter)
	}
	if cfg.Redis.Addr != "localhost:6379" || cfg.Redis.MaxLen != 500 ||
		cfg.Redis.SessionPrefix != "linepump:sess:" || cfg.Redis.SessionTTL != time.Minute {
		t.Errorf("redis = %+v", cfg.Redis)
	}
	if cfg.Pipe.ChunkSize != 4096 {
		t.Errorf("default chunk size lost: %d", cfg.Pipe.ChunkSize)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("LINEPUMP_LISTEN", ":7000")
	t.Setenv("LINEPUMP_CHUNK_SIZE", "512")
	t.Setenv("LINEPUMP_HIGH_WATERMARK", "not a number")
	t.Setenv("NATS_URL", "nats://nats:4222")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Listen != ":7000" || cfg.Pipe.ChunkSize != 512 || cfg.NATS.URL != "nats://nats:4222" {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.Pipe.HighWatermark != 64<<10 {
		t.Errorf("HighWatermark = %d", cfg.Pipe.HighWatermark)
	}
}

func TestLoadInvalid(t *testing.T) {
	cases := map[string]string{
		"bad.toml": "[pipe]\nlow_watermark = 100\nhigh_watermark = 10\n",
		"bad.ini":  "[pipe]\ndelimiter = ab\n",
		"bad.yaml": "pipe: {}\n",
	}
	for name, content := range cases {
		if _, err := Load(writeFile(t, name, content)); err == nil {
			t.Errorf("Load(%s) succeeded", name)
		}
	}
}

func TestParseDelimiter(t *testing.T) {
	cases := map[string]byte{
		`\n`:  '\n',
		"\n":  '\n',
		`\0`:  0,
		"|":   '|',
		"0x7E": 0x7e,
	}
	for in, want := range cases {
		got, err := ParseDelimiter(in)
		if err != nil || got != want {
			t.Errorf("ParseDelimiter(%q) = %#x, %v; want %#x", in, got, err, want)
		}
	}
	for _, in := range []string{"", "ab", "0x100"} {
		if _, err := ParseDelimiter(in); err == nil {
			t.Errorf("ParseDelimiter(%q) succeeded", in)
		}
	}
}

func TestRedisOptions(t *testing.T) {
	t.Setenv("REDIS_ADDR", "cache:6379")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	opts, err := cfg.RedisOptions()
	if err != nil || opts == nil || opts.Addr != "cache:6379" {
		t.Fatalf("RedisOptions = %+v, %v", opts, err)
	}

	t.Setenv("REDIS_URL", "redis://:secret@redis.internal:6380/2")
	if cfg, err = Load(""); err != nil {
		t.Fatalf("Load: %v", err)
	}
	opts, err = cfg.RedisOptions()
	if err != nil || opts.Addr != "redis.internal:6380" || opts.Password != "secret" || opts.DB != 2 {
		t.Errorf("RedisOptions = %+v, %v", opts, err)
	}

	t.Setenv("REDIS_URL", "http://redis.internal")
	if _, err := Load(""); err == nil {
		t.Error("non-redis url accepted")
	}
}

func TestRedisOptionsUnset(t *testing.T) {
	cfg := Default()
	if opts, err := cfg.RedisOptions(); opts != nil || err != nil {
		t.Errorf("RedisOptions = %+v, %v", opts, err)
	}
}
