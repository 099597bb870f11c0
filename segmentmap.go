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

import (
	"sort"
	"sync"
)

// Sentinel is the "no splitter on this side" marker for a fingerprint half.
const Sentinel uint64 = 0xFFFFFFFFFFFFFFFF

// Fingerprint is an unordered pair of splitter values (or Sentinel) keying
// a segment group. Two-splitter keys go through Canon (k1 <= k2); a
// one-terminal fallback key pairs the splitter with Sentinel on the side
// its orientation selects, so (Sentinel, v) is also a valid key.
type Fingerprint struct {
	K1, K2 uint64
}

// Canon returns the fingerprint with K1 <= K2 and whether the two inputs
// needed to be swapped to achieve that (the swap flag is what callers use
// to decide store_rc).
func Canon(a, b uint64) (Fingerprint, bool) {
	if a <= b {
		return Fingerprint{a, b}, false
	}
	return Fingerprint{b, a}, true
}

// SegmentMap maps fingerprints to group ids, plus the adjacency table used
// by the one-splitter-extension and missing-middle-recovery heuristics.
// Every exported method takes the embedded mutex, in both modes. In
// reproducibility mode workers call Lookup during the all_contigs stage and
// only the registration barrier leader allocates groups (through
// BufferedSegParts.ProcessNew); the *Locked helpers are internal and
// assume the mutex is already held.
type SegmentMap struct {
	mu          sync.Mutex
	byFP        map[Fingerprint]uint32
	adjacency   map[uint64][]uint64
	noSegments  uint32
	noRawGroups uint32
}

// NewSegmentMap returns a SegmentMap with the reserved (Sentinel,Sentinel)
// fingerprint pre-assigned to group 0 and groups [0,noRawGroups) reserved
// for raw-only payloads.
func NewSegmentMap(noRawGroups uint32) *SegmentMap {
	if noRawGroups == 0 {
		noRawGroups = 1
	}
	sm := &SegmentMap{
		byFP:        make(map[Fingerprint]uint32, 1<<16),
		adjacency:   make(map[uint64][]uint64),
		noSegments:  noRawGroups,
		noRawGroups: noRawGroups,
	}
	sm.byFP[Fingerprint{Sentinel, Sentinel}] = 0
	return sm
}

// NoRawGroups returns the configured count of reserved raw-only groups.
func (sm *SegmentMap) NoRawGroups() uint32 {
	return sm.noRawGroups
}

// Lookup returns the group id for pk, if already assigned.
func (sm *SegmentMap) Lookup(pk Fingerprint) (uint32, bool) {
	sm.mu.Lock()
	g, ok := sm.byFP[pk]
	sm.mu.Unlock()
	return g, ok
}

// InsertNew allocates a new group id for pk, recording the mapping and
// updating adjacency for both non-sentinel sides. It never re-keys an
// already-present fingerprint: callers must have already confirmed pk is
// absent via Lookup under the same critical section when atomicity
// matters (use LookupOrInsertNew for that).
func (sm *SegmentMap) InsertNew(pk Fingerprint) uint32 {
	sm.mu.Lock()
	g := sm.insertNewLocked(pk)
	sm.mu.Unlock()
	return g
}

// LookupOrInsertNew atomically looks up pk, inserting a fresh group if
// absent. This is the call standard-mode SegmentRouter uses so that two
// workers racing to create the same fingerprint's group never both
// succeed.
func (sm *SegmentMap) LookupOrInsertNew(pk Fingerprint) (group uint32, created bool) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if g, ok := sm.byFP[pk]; ok {
		return g, false
	}
	return sm.insertNewLocked(pk), true
}

func (sm *SegmentMap) insertNewLocked(pk Fingerprint) uint32 {
	g := sm.noSegments
	sm.noSegments++
	sm.byFP[pk] = g
	if pk.K1 != Sentinel {
		sm.addAdjacencyLocked(pk.K1, pk.K2)
	}
	if pk.K2 != Sentinel && pk.K2 != pk.K1 {
		sm.addAdjacencyLocked(pk.K2, pk.K1)
	}
	return g
}

func (sm *SegmentMap) addAdjacencyLocked(k, neighbor uint64) {
	if neighbor == Sentinel {
		return
	}
	list := sm.adjacency[k]
	i := sort.Search(len(list), func(i int) bool { return list[i] >= neighbor })
	if i < len(list) && list[i] == neighbor {
		return
	}
	list = append(list, 0)
	copy(list[i+1:], list[i:])
	list[i] = neighbor
	sm.adjacency[k] = list
}

// Neighbors returns the sorted, duplicate-free list of values ever seen
// paired with k in a fingerprint. The returned slice must not be mutated.
func (sm *SegmentMap) Neighbors(k uint64) []uint64 {
	sm.mu.Lock()
	list := sm.adjacency[k]
	sm.mu.Unlock()
	return list
}

// NoSegments returns the total number of groups allocated so far
// (including the reserved raw groups).
func (sm *SegmentMap) NoSegments() uint32 {
	sm.mu.Lock()
	n := sm.noSegments
	sm.mu.Unlock()
	return n
}

// RestoreEntry re-inserts a (fingerprint, group) pair read back from an
// archive's segment-splitters stream, rebuilding the adjacency index the
// same way insertNewLocked would but without allocating a new id. append
// calls this once per persisted entry before resuming compression, so
// Lookup/Neighbors behave exactly as they did when the archive was
// written.
func (sm *SegmentMap) RestoreEntry(fp Fingerprint, group uint32) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.byFP[fp] = group
	if fp.K1 != Sentinel {
		sm.addAdjacencyLocked(fp.K1, fp.K2)
	}
	if fp.K2 != Sentinel && fp.K2 != fp.K1 {
		sm.addAdjacencyLocked(fp.K2, fp.K1)
	}
	if group >= sm.noSegments {
		sm.noSegments = group + 1
	}
}

// Entries returns every non-reserved (fingerprint, group) pair, for the
// `segment-splitters` archive stream. The reserved (Sentinel,Sentinel)->0
// mapping is never included, matching the "reserved fingerprint is not
// written" rule.
func (sm *SegmentMap) Entries() []SegmentMapEntry {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	out := make([]SegmentMapEntry, 0, len(sm.byFP))
	for fp, g := range sm.byFP {
		if fp.K1 == Sentinel && fp.K2 == Sentinel {
			continue
		}
		out = append(out, SegmentMapEntry{Fingerprint: fp, Group: g})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Group < out[j].Group })
	return out
}

// SegmentMapEntry is one row of the segment-splitters stream.
type SegmentMapEntry struct {
	Fingerprint Fingerprint
	Group       uint32
}
