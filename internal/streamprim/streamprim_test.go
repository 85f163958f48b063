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

package streamprim_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riverdag/riverdag/internal/row"
	"github.com/riverdag/riverdag/internal/streamprim"
)

func TestBatchBuffer(t *testing.T) {
	b := streamprim.NewBatchBuffer(2)
	assert.False(t, b.Full())
	b.Add(row.NewRow())
	assert.False(t, b.Full())
	b.Add(row.NewRow())
	assert.True(t, b.Full())
	assert.Equal(t, 2, b.Count())
	out := b.Flush()
	assert.Len(t, out, 2)
	assert.Equal(t, 0, b.Count())
}

func TestBatchBufferMinSize(t *testing.T) {
	b := streamprim.NewBatchBuffer(0)
	b.Add(row.NewRow())
	assert.True(t, b.Full())
}

func TestBackpressureChannel(t *testing.T) {
	ch := streamprim.NewBackpressureChannel(1)
	ctx := context.Background()
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		require.NoError(t, ch.Put(ctx, row.NewRow()))
		require.NoError(t, ch.Put(ctx, row.NewRow()))
		ch.Close()
	}()

	count := 0
	for {
		_, ok, err := ch.Get(ctx)
		require.NoError(t, err)
		if !ok {
			break
		}
		count++
	}
	wg.Wait()
	assert.Equal(t, 2, count)
	assert.EqualValues(t, 2, ch.TotalIn())
	assert.EqualValues(t, 2, ch.TotalOut())
}

func TestAdaptiveSemaphoreShrinksOnErrors(t *testing.T) {
	s := streamprim.NewAdaptiveSemaphore(4, 8)
	ctx := context.Background()
	for i := 0; i < 20; i++ {
		require.NoError(t, s.Acquire(ctx))
		s.Release(false)
	}
	assert.Equal(t, 2, s.Limit())
}

func TestAdaptiveSemaphoreGrowsOnSuccess(t *testing.T) {
	s := streamprim.NewAdaptiveSemaphore(1, 8)
	ctx := context.Background()
	for i := 0; i < 20; i++ {
		require.NoError(t, s.Acquire(ctx))
		s.Release(true)
	}
	assert.Equal(t, 2, s.Limit())
}

func TestAdaptiveSemaphoreAcquireTimesOut(t *testing.T) {
	s := streamprim.NewAdaptiveSemaphore(1, 1)
	ctx := context.Background()
	require.NoError(t, s.Acquire(ctx))

	timeoutCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	err := s.Acquire(timeoutCtx)
	assert.Error(t, err)
}
