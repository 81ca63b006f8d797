// Copyright (C) The Arvados Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package cmr

import (
	"strconv"
	"sync/atomic"
	"time"
)

// IDGenerator issues the X-Request-Id values sent with each request,
// so a client log line can be matched to the service's logs. IDs are
// the prefix followed by a base-36 timestamp, bumped as needed to keep
// them strictly increasing.
type IDGenerator struct {
	Prefix string
	last   atomic.Int64
}

// Next returns an ID that differs from every earlier one from g.
func (g *IDGenerator) Next() string {
	for {
		last := g.last.Load()
		id := time.Now().UnixNano()
		if id <= last {
			id = last + 1
		}
		if g.last.CompareAndSwap(last, id) {
			return g.Prefix + strconv.FormatInt(id, 36)
		}
	}
}

var reqIDGen = IDGenerator{Prefix: "req-"}
