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
	"sync"
)

// evaluationWindow is the number of completions the limiter inspects
// before deciding whether to shrink or grow (spec.md §4.2).
const evaluationWindow = 20

// errorRateThreshold is the fraction of failures within a window above
// which the limiter shrinks.
const errorRateThreshold = 0.2

// AdaptiveSemaphore limits the number of concurrent holders, shrinking
// on elevated error rates and growing on sustained success, evaluated
// every evaluationWindow completions.
type AdaptiveSemaphore struct {
	mu       sync.Mutex
	cond     *sync.Cond
	limit    int
	max      int
	held     int
	window   []bool // true = success
}

// NewAdaptiveSemaphore creates a limiter starting at initial holders, up
// to a ceiling of maxHolders.
func NewAdaptiveSemaphore(initial, maxHolders int) *AdaptiveSemaphore {
	if initial < 1 {
		initial = 1
	}
	if maxHolders < initial {
		maxHolders = initial
	}
	s := &AdaptiveSemaphore{limit: initial, max: maxHolders}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Acquire blocks until a slot is available or ctx is cancelled.
func (s *AdaptiveSemaphore) Acquire(ctx context.Context) error {
	done := make(chan struct{})
	var acquired bool
	go func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for s.held >= s.limit {
			s.cond.Wait()
		}
		s.held++
		acquired = true
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		go func() {
			<-done
			if acquired {
				s.Release(true)
			}
		}()
		return ctx.Err()
	}
}

// Release gives back a held slot, reporting whether the work succeeded
// so the limiter can adapt.
func (s *AdaptiveSemaphore) Release(success bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.held > 0 {
		s.held--
	}
	s.window = append(s.window, success)
	if len(s.window) >= evaluationWindow {
		s.evaluate()
		s.window = nil
	}
	s.cond.Broadcast()
}

// evaluate must be called with mu held.
func (s *AdaptiveSemaphore) evaluate() {
	failures := 0
	for _, ok := range s.window {
		if !ok {
			failures++
		}
	}
	rate := float64(failures) / float64(len(s.window))
	switch {
	case rate > errorRateThreshold:
		s.limit = s.limit / 2
		if s.limit < 1 {
			s.limit = 1
		}
	case rate == 0:
		if s.limit < s.max {
			s.limit++
		}
	}
}

// Limit returns the current concurrency limit.
func (s *AdaptiveSemaphore) Limit() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.limit
}
