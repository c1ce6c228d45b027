// Copyright 2019 someonegg. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sink

import (
	"context"

	"github.com/redis/go-redis/v9"

	"github.com/someonegg/linepump"
)

// StreamAdder is the part of *redis.Client used by RedisStream.
type StreamAdder interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
}

// RedisStream appends every line to a Redis stream with XADD, as the
// fields "peer" and "line".
type RedisStream struct {
	Client StreamAdder
	Stream string

	// MaxLen trims the stream approximately to this many entries. Zero
	// means no trimming.
	MaxLen int64
}

func (r *RedisStream) Process(ctx context.Context, l linepump.Line) error {
	return r.Client.XAdd(ctx, &redis.XAddArgs{
		Stream: r.Stream,
		MaxLen: r.MaxLen,
		Approx: r.MaxLen > 0,
		Values: map[string]interface{}{
			"peer": linepump.PeerFromContext(ctx),
			"line": string(l),
		},
	}).Err()
}
