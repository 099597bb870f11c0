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

// Package segstore is the C4 SegmentGroup reference implementation: one
// instance per group id, holding either raw-band payloads (compressed
// independently) or a reference plus a growing run of delta-coded
// payloads matched against it with an anchor index.
package segstore

import (
	"encoding/binary"
	"fmt"
	"sort"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// opKind tags one delta-stream instruction.
type opKind byte

const (
	opLiteral opKind = 0
	opCopy    opKind = 1
)

// Store owns every group in an archive: the reserved raw-group band plus
// every reference+delta group SegmentRouter creates on demand.
type Store struct {
	mu          sync.Mutex
	groups      map[uint32]*group
	minMatchLen int
	zenc        *zstd.Encoder
}

// NewStore returns a Store whose delta codec requires matches of at least
// minMatchLen symbols before emitting a copy operation.
func NewStore(minMatchLen int) *Store {
	enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedBestCompression))
	return &Store{groups: make(map[uint32]*group), minMatchLen: minMatchLen, zenc: enc}
}

type group struct {
	mu         sync.Mutex
	ref        []byte
	anchors    map[uint64][]int // minMatchLen-mer value -> positions in ref
	rawParts   [][]byte
	deltaParts [][]byte
	finalized  bool
	refComp    []byte
	minMatch   int

	// primed is the number of parts this group already had in an archive
	// being appended to: AddRaw/AddDelta offset their ids by it so newly
	// assigned InGroupIDs continue rather than collide with parts already
	// on disk. Zero for a group created during a fresh run.
	primed int
}

func (s *Store) groupFor(g uint32) *group {
	s.mu.Lock()
	defer s.mu.Unlock()
	grp, ok := s.groups[g]
	if !ok {
		grp = &group{anchors: make(map[uint64][]int), minMatch: s.minMatchLen}
		s.groups[g] = grp
	}
	return grp
}

// EnsureGroup implements pangc.GroupStore.
func (s *Store) EnsureGroup(g uint32) bool {
	s.mu.Lock()
	_, existed := s.groups[g]
	if !existed {
		s.groups[g] = &group{anchors: make(map[uint64][]int), minMatch: s.minMatchLen}
	}
	s.mu.Unlock()
	return !existed
}

// AddRaw implements pangc.GroupStore: payload is queued for independent
// compression with no delta coding.
func (s *Store) AddRaw(g uint32, payload []byte) (uint32, error) {
	grp := s.groupFor(g)
	grp.mu.Lock()
	defer grp.mu.Unlock()
	id := uint32(grp.primed + len(grp.rawParts))
	grp.rawParts = append(grp.rawParts, append([]byte(nil), payload...))
	return id, nil
}

// Prime records that group g already has n parts archived from a prior
// run, so the next AddRaw or AddDelta call assigns an InGroupID that
// continues the existing sequence instead of restarting at zero. Used by
// the append path after reconstructing group state from an archive; it
// does not touch rawParts/deltaParts, so DeltaParts/RawParts still return
// only the parts added this session.
func (s *Store) Prime(g uint32, n int) {
	grp := s.groupFor(g)
	grp.mu.Lock()
	grp.primed = n
	grp.mu.Unlock()
}

// AddReference implements pangc.GroupStore: payload becomes the group's
// reference sequence, and its anchor index is built immediately so the
// very next AddDelta/Estimate call can use it.
func (s *Store) AddReference(g uint32, payload []byte) (uint32, error) {
	grp := s.groupFor(g)
	grp.mu.Lock()
	defer grp.mu.Unlock()
	if grp.ref != nil {
		return 0, fmt.Errorf("segstore: group %d already has a reference", g)
	}
	grp.ref = append([]byte(nil), payload...)
	grp.buildAnchorsLocked()
	return 0, nil
}

// AddDelta implements pangc.GroupStore.
func (s *Store) AddDelta(g uint32, payload []byte, rc bool) (uint32, error) {
	grp := s.groupFor(g)
	grp.mu.Lock()
	defer grp.mu.Unlock()
	if grp.ref == nil {
		return 0, fmt.Errorf("segstore: group %d has no reference yet", g)
	}
	oriented := payload
	if rc {
		oriented = reverseComplementSymbols(payload)
	}
	enc := grp.encodeDelta(oriented)
	id := uint32(grp.primed + len(grp.deltaParts))
	grp.deltaParts = append(grp.deltaParts, enc)
	return id, nil
}

// Estimate implements pangc.GroupStore: runs the same matcher without
// storing anything, returning the encoded size it would produce.
func (s *Store) Estimate(g uint32, payload []byte, rc bool) (uint64, bool) {
	grp := s.groupFor(g)
	grp.mu.Lock()
	defer grp.mu.Unlock()
	if grp.ref == nil {
		return 0, false
	}
	oriented := payload
	if rc {
		oriented = reverseComplementSymbols(payload)
	}
	return uint64(len(grp.encodeDelta(oriented))), true
}

// CodingCostVector implements pangc.GroupStore: a per-payload-position
// cost (0 inside a copy match, 1 per literal symbol), scanned from the
// front when forward is true and from the back otherwise, so the two
// halves of a missing-middle split can be prefix/suffix-summed directly.
func (s *Store) CodingCostVector(g uint32, payload []byte, rc bool, forward bool) ([]uint32, bool) {
	grp := s.groupFor(g)
	grp.mu.Lock()
	defer grp.mu.Unlock()
	if grp.ref == nil {
		return nil, false
	}
	oriented := payload
	if rc {
		oriented = reverseComplementSymbols(payload)
	}
	scan := oriented
	if !forward {
		scan = reverseBytes(oriented)
	}
	cost := grp.costVector(scan)
	if !forward {
		reverseUint32sInPlace(cost)
	}
	return cost, true
}

// Finalize compresses the group's reference and queues its parts for
// archival. It is idempotent.
func (s *Store) Finalize(g uint32) error {
	grp := s.groupFor(g)
	grp.mu.Lock()
	defer grp.mu.Unlock()
	if grp.finalized || grp.ref == nil {
		grp.finalized = true
		return nil
	}
	grp.refComp = s.zenc.EncodeAll(grp.ref, nil)
	grp.finalized = true
	return nil
}

// ReferenceBytes returns group g's compressed reference, if it has one.
func (s *Store) ReferenceBytes(g uint32) ([]byte, bool) {
	grp := s.groupFor(g)
	grp.mu.Lock()
	defer grp.mu.Unlock()
	if grp.refComp == nil {
		return nil, false
	}
	return grp.refComp, true
}

// DeltaParts returns group g's raw (uncompressed) delta-encoded parts, in
// admission order; the caller compresses and writes them to the archive.
func (s *Store) DeltaParts(g uint32) [][]byte {
	grp := s.groupFor(g)
	grp.mu.Lock()
	defer grp.mu.Unlock()
	return grp.deltaParts
}

// RawParts returns group g's raw-band payloads, in admission order.
func (s *Store) RawParts(g uint32) [][]byte {
	grp := s.groupFor(g)
	grp.mu.Lock()
	defer grp.mu.Unlock()
	return grp.rawParts
}

// GroupIDs returns every group id touched so far, sorted ascending, so a
// caller finalizing the archive can walk them in a deterministic order.
func (s *Store) GroupIDs() []uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]uint32, 0, len(s.groups))
	for id := range s.groups {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (g *group) buildAnchorsLocked() {
	m := g.minMatch
	if m < 4 {
		m = 4
	}
	if len(g.ref) < m {
		return
	}
	for i := 0; i+m <= len(g.ref); i++ {
		h := anchorHash(g.ref[i : i+m])
		g.anchors[h] = append(g.anchors[h], i)
	}
}

// encodeDelta greedily matches payload against the reference's anchor
// index, emitting a varint-tagged stream of literal runs and copy
// operations: [opLiteral][len varint][bytes] or [opCopy][ref-offset
// varint][len varint].
func (g *group) encodeDelta(payload []byte) []byte {
	m := g.minMatch
	if m < 4 {
		m = 4
	}
	var out []byte
	var litStart int
	i := 0
	flushLiteral := func(end int) {
		if end <= litStart {
			return
		}
		out = append(out, byte(opLiteral))
		out = appendUvarint(out, uint64(end-litStart))
		out = append(out, payload[litStart:end]...)
	}

	for i+m <= len(payload) {
		h := anchorHash(payload[i : i+m])
		positions := g.anchors[h]
		best := -1
		bestLen := 0
		for _, p := range positions {
			l := matchLen(g.ref[p:], payload[i:])
			if l > bestLen {
				bestLen, best = l, p
			}
		}
		if best >= 0 && bestLen >= m {
			flushLiteral(i)
			out = append(out, byte(opCopy))
			out = appendUvarint(out, uint64(best))
			out = appendUvarint(out, uint64(bestLen))
			i += bestLen
			litStart = i
			continue
		}
		i++
	}
	flushLiteral(len(payload))
	return out
}

// costVector mirrors encodeDelta's greedy walk but records a per-symbol
// cost instead of building the instruction stream: 0 for symbols covered
// by a copy match, 1 for literal symbols.
func (g *group) costVector(payload []byte) []uint32 {
	m := g.minMatch
	if m < 4 {
		m = 4
	}
	cost := make([]uint32, len(payload))
	i := 0
	for i < len(payload) {
		if i+m > len(payload) {
			cost[i] = 1
			i++
			continue
		}
		h := anchorHash(payload[i : i+m])
		positions := g.anchors[h]
		best := -1
		bestLen := 0
		for _, p := range positions {
			l := matchLen(g.ref[p:], payload[i:])
			if l > bestLen {
				bestLen, best = l, p
			}
		}
		if best >= 0 && bestLen >= m {
			i += bestLen
			continue
		}
		cost[i] = 1
		i++
	}
	return cost
}

func matchLen(a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	i := 0
	for i < n && a[i] == b[i] {
		i++
	}
	return i
}

func anchorHash(window []byte) uint64 {
	var h uint64 = 1469598103934665603
	for _, b := range window {
		h ^= uint64(b)
		h *= 1099511628211
	}
	return h
}

func appendUvarint(buf []byte, v uint64) []byte {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], v)
	return append(buf, tmp[:n]...)
}

// reverseComplementSymbols reverse-complements a ContigSymbols-coded
// slice (values 0..3, or an ambiguous marker passed through unchanged).
func reverseComplementSymbols(seq []byte) []byte {
	out := make([]byte, len(seq))
	n := len(seq)
	for i, b := range seq {
		j := n - 1 - i
		if b <= 3 {
			out[j] = 3 - b
		} else {
			out[j] = b
		}
	}
	return out
}

func reverseBytes(b []byte) []byte {
	out := make([]byte, len(b))
	for i, v := range b {
		out[len(b)-1-i] = v
	}
	return out
}

func reverseUint32sInPlace(v []uint32) {
	for i, j := 0, len(v)-1; i < j; i, j = i+1, j-1 {
		v[i], v[j] = v[j], v[i]
	}
}
