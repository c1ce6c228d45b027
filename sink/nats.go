// Copyright 2019 someonegg. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sink

import (
	"context"

	"github.com/nats-io/nats.go"

	"github.com/someonegg/linepump"
)

// PeerHeader carries the connection identity on published messages.
const PeerHeader = "Linepump-Peer"

// MsgPublisher is the part of *nats.Conn used by NATS.
type MsgPublisher interface {
	PublishMsg(m *nats.Msg) error
}

// NATS publishes every line as one message on subject. The payload is
// the line without its delimiter.
func NATS(nc MsgPublisher, subject string) linepump.Handler {
	return linepump.HandlerFunc(func(ctx context.Context, l linepump.Line) error {
		m := nats.NewMsg(subject)
		m.Data = l
		if peer := linepump.PeerFromContext(ctx); peer != "" {
			m.Header.Set(PeerHeader, peer)
		}
		// PublishMsg copies the payload into the connection's buffer
		// before returning.
		return nc.PublishMsg(m)
	})
}
