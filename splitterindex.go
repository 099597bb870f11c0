// Copyright © 2018 Wei Shen <shenwei356@gmail.com>
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.

package pangc

import "sync"

const splitterIndexShards = 256

// SplitterIndex is the set of accepted splitter k-mer values, held as 256
// Go maps sharded by the low byte of the value, each behind its own
// sync.RWMutex. Check takes its shard's read lock, so concurrent Checks do
// not block each other, but Check is not wait-free: it waits while an
// InsertFast holds the same shard's write lock. InsertFast is therefore
// safe to call concurrently with Check; the pipeline calls it only in the
// new-splitters merge phase and during setup.
//
// Per-shard locks instead of one global mutex let reference-only passes
// scale with core count.
type SplitterIndex struct {
	shards [splitterIndexShards]splitterShard
}

type splitterShard struct {
	mu sync.RWMutex
	m  map[uint64]struct{}
}

// NewSplitterIndex returns an empty index sized for roughly n total
// splitters (used only to presize shard maps).
func NewSplitterIndex(n int) *SplitterIndex {
	idx := &SplitterIndex{}
	perShard := n/splitterIndexShards + 1
	for i := range idx.shards {
		idx.shards[i].m = make(map[uint64]struct{}, perShard)
	}
	return idx
}

func (idx *SplitterIndex) shardFor(v uint64) *splitterShard {
	return &idx.shards[byte(v)]
}

// Check reports whether v is a known splitter. Safe for concurrent use.
func (idx *SplitterIndex) Check(v uint64) bool {
	s := idx.shardFor(v)
	s.mu.RLock()
	_, ok := s.m[v]
	s.mu.RUnlock()
	return ok
}

// InsertFast adds v to the index under its shard's write lock (see
// SplitterIndex doc comment).
func (idx *SplitterIndex) InsertFast(v uint64) {
	s := idx.shardFor(v)
	s.mu.Lock()
	s.m[v] = struct{}{}
	s.mu.Unlock()
}

// Len returns the total number of splitters held.
func (idx *SplitterIndex) Len() int {
	n := 0
	for i := range idx.shards {
		idx.shards[i].mu.RLock()
		n += len(idx.shards[i].m)
		idx.shards[i].mu.RUnlock()
	}
	return n
}

// Sorted returns all splitter values in ascending order, for the
// `splitters` archive stream.
func (idx *SplitterIndex) Sorted() []uint64 {
	out := make([]uint64, 0, idx.Len())
	for i := range idx.shards {
		idx.shards[i].mu.RLock()
		for v := range idx.shards[i].m {
			out = append(out, v)
		}
		idx.shards[i].mu.RUnlock()
	}
	sortUint64s(out)
	return out
}
