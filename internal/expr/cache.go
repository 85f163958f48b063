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

package expr

import (
	"container/list"
	"sync"
)

// MinCacheSize is the minimum bound spec.md §4.1 requires for the
// memoized-parse LRU (>= 256 entries).
const MinCacheSize = 256

// lru is a tiny, mutex-protected, bounded least-recently-used cache
// mapping expression source to a compiled *Expr. Shared across steps of
// a run (spec.md §5 resource policy).
type lru struct {
	mu       sync.Mutex
	capacity int
	ll       *list.List
	items    map[string]*list.Element
}

type lruEntry struct {
	key   string
	value *Expr
}

func newLRU(capacity int) *lru {
	if capacity < MinCacheSize {
		capacity = MinCacheSize
	}
	return &lru{
		capacity: capacity,
		ll:       list.New(),
		items:    make(map[string]*list.Element),
	}
}

func (c *lru) get(key string) (*Expr, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[key]; ok {
		c.ll.MoveToFront(el)
		return el.Value.(*lruEntry).value, true
	}
	return nil, false
}

func (c *lru) put(key string, v *Expr) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[key]; ok {
		c.ll.MoveToFront(el)
		el.Value.(*lruEntry).value = v
		return
	}
	el := c.ll.PushFront(&lruEntry{key: key, value: v})
	c.items[key] = el
	if c.ll.Len() > c.capacity {
		oldest := c.ll.Back()
		if oldest != nil {
			c.ll.Remove(oldest)
			delete(c.items, oldest.Value.(*lruEntry).key)
		}
	}
}

var defaultCache = newLRU(MinCacheSize)

// Compile parses, validates, and builds a reusable evaluator for an
// expression string, memoizing the result in a process-wide bounded LRU
// keyed by source text (spec.md §4.1, §5).
func Compile(src string) (*Expr, error) {
	if e, ok := defaultCache.get(src); ok {
		return e, nil
	}
	ast, err := parse(src)
	if err != nil {
		return nil, err
	}
	if err := validate(ast); err != nil {
		return nil, err
	}
	e := &Expr{src: src, ast: ast, fastPath: fastPathEligible(ast)}
	defaultCache.put(src, e)
	return e, nil
}

// MustCompile is like Compile but panics on error; intended for
// compile-time-known expressions (e.g. internal step defaults), never
// for user-supplied pipeline config.
func MustCompile(src string) *Expr {
	e, err := Compile(src)
	if err != nil {
		panic(err)
	}
	return e
}
