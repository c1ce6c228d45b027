// Copyright 2019 someonegg. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package sink provides line handlers that forward every line to a
// message broker: a NATS subject or a Redis stream.
package sink
