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

// Package streamprim holds the streaming/backpressure primitives used by
// async and streaming steps: a fixed-size batch buffer, a bounded
// producer/consumer channel, and an adaptive concurrency limiter
// (spec.md §4.2).
package streamprim

import (
	"sync"

	"github.com/riverdag/riverdag/internal/row"
)

// BatchBuffer accumulates rows until it reaches its configured size.
type BatchBuffer struct {
	mu   sync.Mutex
	size int
	rows []*row.Row
}

// NewBatchBuffer creates a buffer of the given size (minimum 1, per
// spec.md §4.2).
func NewBatchBuffer(size int) *BatchBuffer {
	if size < 1 {
		size = 1
	}
	return &BatchBuffer{size: size}
}

// Add appends one row.
func (b *BatchBuffer) Add(r *row.Row) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rows = append(b.rows, r)
}

// AddMany appends several rows.
func (b *BatchBuffer) AddMany(rs []*row.Row) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rows = append(b.rows, rs...)
}

// Full reports whether the accumulated count has reached the buffer size.
func (b *BatchBuffer) Full() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.rows) >= b.size
}

// Count returns the number of rows currently buffered.
func (b *BatchBuffer) Count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.rows)
}

// Flush returns the accumulated rows and resets the buffer.
func (b *BatchBuffer) Flush() []*row.Row {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.rows
	b.rows = nil
	return out
}
