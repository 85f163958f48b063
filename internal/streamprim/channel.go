// Copyright (C) 2024 The RiverDAG Authors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.

package streamprim

import (
	"context"
	"sync/atomic"

	"github.com/riverdag/riverdag/internal/row"
)

// BackpressureChannel is a bounded FIFO between one producer and one
// consumer: Put blocks while the buffer is full, Get blocks while it is
// empty. Close delivers a sentinel; Get after the sentinel (and all
// buffered rows drained) returns ok=false.
type BackpressureChannel struct {
	ch       chan *row.Row
	totalIn  atomic.Int64
	totalOut atomic.Int64
}

// NewBackpressureChannel creates a channel with the given buffer
// capacity.
func NewBackpressureChannel(capacity int) *BackpressureChannel {
	if capacity < 1 {
		capacity = 1
	}
	return &BackpressureChannel{ch: make(chan *row.Row, capacity)}
}

// Put blocks while the buffer is full or until ctx is done.
func (c *BackpressureChannel) Put(ctx context.Context, r *row.Row) error {
	select {
	case c.ch <- r:
		c.totalIn.Add(1)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Get blocks while the buffer is empty. ok is false once Close has been
// called and all buffered rows have been drained.
func (c *BackpressureChannel) Get(ctx context.Context) (r *row.Row, ok bool, err error) {
	select {
	case v, open := <-c.ch:
		if !open {
			return nil, false, nil
		}
		c.totalOut.Add(1)
		return v, true, nil
	case <-ctx.Done():
		return nil, false, ctx.Err()
	}
}

// Close delivers the end-of-stream sentinel. Safe to call exactly once.
func (c *BackpressureChannel) Close() { close(c.ch) }

// TotalIn is the number of rows ever put.
func (c *BackpressureChannel) TotalIn() int64 { return c.totalIn.Load() }

// TotalOut is the number of rows ever retrieved.
func (c *BackpressureChannel) TotalOut() int64 { return c.totalOut.Load() }

// Pending is the number of rows currently buffered but not yet
// retrieved.
func (c *BackpressureChannel) Pending() int64 { return c.totalIn.Load() - c.totalOut.Load() }
