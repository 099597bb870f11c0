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

// GroupStore is the contract SegmentRouter needs from a segment group
// codec (C4). pangc/segstore.Store is the production implementation
// (ZSTD-backed delta codec); pangc/segstore.SizeOnly is the test stub the
// design notes explicitly sanction, returning len(payload) from Estimate.
type GroupStore interface {
	// EnsureGroup prepares group g for writes if it has not been touched
	// yet. Returns whether this call created it.
	EnsureGroup(g uint32) (created bool)
	// AddRaw stores payload verbatim in raw group g, returning its
	// in-group id.
	AddRaw(g uint32, payload []byte) (inGroupID uint32, err error)
	// AddReference stores payload as group g's reference bytes. Only
	// valid the first time a non-raw group is written.
	AddReference(g uint32, payload []byte) (inGroupID uint32, err error)
	// AddDelta stores payload as a delta against group g's reference.
	AddDelta(g uint32, payload []byte, rc bool) (inGroupID uint32, err error)
	// Estimate returns the encoded size AddDelta would produce for
	// payload against group g's current reference, oriented per rc, and
	// whether g has a reference to estimate against at all.
	Estimate(g uint32, payload []byte, rc bool) (size uint64, ok bool)
	// CodingCostVector returns the per-position coding cost of payload
	// against group g's reference, read in the given direction.
	CodingCostVector(g uint32, payload []byte, rc bool, forward bool) ([]uint32, bool)
}

// SplitterTerm describes one end of a candidate segment: either a real
// terminal splitter value, or "empty" (contig end / no splitter reached).
// DirOriented records which strand held the canonical value the moment
// this splitter was recognized (KmerRoller.DirOriented at that position),
// independent of whether the terminal sits at the front or back of the
// segment it bounds.
type SplitterTerm struct {
	Present     bool
	Value       uint64
	DirOriented bool
}

var noTerm = SplitterTerm{}

// Router implements the add_segment decision tree (C7): given a segment's
// terminal splitters, decide its fingerprint, orientation, and the group
// it is written to.
type Router struct {
	opt   Options
	sm    *SegmentMap
	store GroupStore
}

// NewRouter returns a Router over sm and store.
func NewRouter(opt Options, sm *SegmentMap, store GroupStore) *Router {
	return &Router{opt: opt, sm: sm, store: store}
}

// SegmentWrite is the outcome of writing one physical segment payload to a
// group.
type SegmentWrite struct {
	Group      uint32
	InGroupID  uint32
	IsRC       bool
	RawLength  int
	SegPartNo  int
}

// AddSegment routes one logical segment. It usually returns exactly one
// SegmentWrite; missing-middle recovery can split the input into two
// physical segments recombined around a recovered middle splitter, in
// which case it returns two, each already fully routed.
func (rt *Router) AddSegment(sample, contig string, segPartNo int, payload []byte, front, back SplitterTerm) ([]SegmentWrite, error) {
	switch {
	case !front.Present && !back.Present:
		return rt.addNoTerminal(sample, contig, segPartNo, payload)
	case front.Present && back.Present:
		return rt.addBothTerminal(sample, contig, segPartNo, payload, front, back)
	default:
		return rt.addOneTerminal(sample, contig, segPartNo, payload, front, back)
	}
}

func (rt *Router) addNoTerminal(sample, contig string, segPartNo int, payload []byte) ([]SegmentWrite, error) {
	pk := Fingerprint{Sentinel, Sentinel}
	group, _ := rt.sm.Lookup(pk) // always present: pre-assigned to 0 at construction
	group = rt.rehashGroupZero(sample, contig, segPartNo, group)
	w, err := rt.writeToGroup(group, false, payload, segPartNo)
	if err != nil {
		return nil, err
	}
	return []SegmentWrite{w}, nil
}

func (rt *Router) addBothTerminal(sample, contig string, segPartNo int, payload []byte, front, back SplitterTerm) ([]SegmentWrite, error) {
	pk, storeRC := Canon(front.Value, back.Value)

	if group, ok := rt.sm.Lookup(pk); ok {
		w, err := rt.writeToGroup(group, storeRC, payload, segPartNo)
		if err != nil {
			return nil, err
		}
		return []SegmentWrite{w}, nil
	}

	if writes, ok, err := rt.missingMiddleRecovery(sample, contig, segPartNo, payload, pk); err != nil {
		return nil, err
	} else if ok {
		return writes, nil
	}

	group, _ := rt.sm.LookupOrInsertNew(pk)
	w, err := rt.writeToGroup(group, storeRC, payload, segPartNo)
	if err != nil {
		return nil, err
	}
	return []SegmentWrite{w}, nil
}

func (rt *Router) addOneTerminal(sample, contig string, segPartNo int, payload []byte, front, back SplitterTerm) ([]SegmentWrite, error) {
	present := front
	if back.Present {
		present = back
	}

	if pk, storeRC, ok := rt.oneSplitterExtension(present.Value, payload); ok {
		group, _ := rt.sm.LookupOrInsertNew(pk)
		w, err := rt.writeToGroup(group, storeRC, payload, segPartNo)
		if err != nil {
			return nil, err
		}
		return []SegmentWrite{w}, nil
	}

	// Fallback: pair the known splitter with the sentinel according to the
	// splitter's own forward/RC orientation, not which end of the segment
	// it happened to bound.
	var pk Fingerprint
	var storeRC bool
	if present.DirOriented {
		pk = Fingerprint{present.Value, Sentinel}
		storeRC = false
	} else {
		pk = Fingerprint{Sentinel, present.Value}
		storeRC = true
	}
	group, _ := rt.sm.LookupOrInsertNew(pk)
	w, err := rt.writeToGroup(group, storeRC, payload, segPartNo)
	if err != nil {
		return nil, err
	}
	return []SegmentWrite{w}, nil
}

// oneSplitterExtension enumerates neighbors of the single known terminal,
// asking the existing group at each candidate fingerprint for its
// estimated delta size, and accepts the best one if it beats a near-raw
// baseline.
func (rt *Router) oneSplitterExtension(k uint64, payload []byte) (Fingerprint, bool, bool) {
	neighbors := rt.sm.Neighbors(k)
	if len(neighbors) == 0 {
		return Fingerprint{}, false, false
	}

	baseline := uint64(0)
	if len(payload) > int(rt.opt.RawBeatMargin) {
		baseline = uint64(len(payload)) - rt.opt.RawBeatMargin
	}

	var (
		bestFound   bool
		bestPK      Fingerprint
		bestRC      bool
		bestEstimate uint64
	)

	for _, kp := range neighbors {
		pk, swapped := Canon(k, kp)
		group, ok := rt.sm.Lookup(pk)
		if !ok {
			continue
		}
		// storeRC mirrors addBothTerminal's canonicalization: swapped
		// means k ended up as the fingerprint's second element, so the
		// payload must be read reverse-complemented to align with the
		// group's stored orientation. This depends only on the pairing,
		// not on which end of the segment k happened to terminate.
		rc := swapped
		est, has := rt.store.Estimate(group, payload, rc)
		if !has {
			continue
		}
		if !bestFound || est < bestEstimate || (est == bestEstimate && fpLess(pk, bestPK)) {
			bestFound, bestPK, bestRC, bestEstimate = true, pk, rc, est
		}
	}

	if !bestFound || bestEstimate >= baseline {
		return Fingerprint{}, false, false
	}
	return bestPK, bestRC, true
}

func fpLess(a, b Fingerprint) bool {
	if a.K1 != b.K1 {
		return a.K1 < b.K1
	}
	return a.K2 < b.K2
}

// missingMiddleRecovery attempts to resynchronize a contig whose two
// terminals both exist in SegmentMap individually but never together,
// by finding a splitter known to sit between them in some other sample.
func (rt *Router) missingMiddleRecovery(sample, contig string, segPartNo int, payload []byte, pk Fingerprint) ([]SegmentWrite, bool, error) {
	k1, k2 := pk.K1, pk.K2
	n1 := rt.sm.Neighbors(k1)
	n2 := rt.sm.Neighbors(k2)
	if len(n1) == 0 || len(n2) == 0 {
		return nil, false, nil
	}
	m, ok := firstSharedNeighbor(n1, n2)
	if !ok {
		return nil, false, nil
	}

	leftPK, leftRC := Canon(k1, m)
	rightPK, rightRC := Canon(m, k2)
	leftGroup, leftKnown := rt.sm.Lookup(leftPK)
	rightGroup, rightKnown := rt.sm.Lookup(rightPK)
	if !leftKnown || !rightKnown {
		return nil, false, nil
	}

	leftCost, okL := rt.store.CodingCostVector(leftGroup, payload, leftRC, true)
	rightCost, okR := rt.store.CodingCostVector(rightGroup, payload, rightRC, false)
	if !okL || !okR || len(leftCost) != len(rightCost) {
		return nil, false, nil
	}

	// bestSplitPosition already rounds all the way to an edge when the
	// optimum falls within k+1 of it, so 0 and n are the only two edge
	// values that can come back here.
	split := bestSplitPosition(leftCost, rightCost, rt.opt.K)

	n := len(payload)
	overlap := rt.opt.K

	if split == 0 {
		w, err := rt.writeToGroup(rightGroup, rightRC, payload, segPartNo)
		if err != nil {
			return nil, false, err
		}
		return []SegmentWrite{w}, true, nil
	}
	if split == n {
		w, err := rt.writeToGroup(leftGroup, leftRC, payload, segPartNo)
		if err != nil {
			return nil, false, err
		}
		return []SegmentWrite{w}, true, nil
	}

	leftEnd := split + overlap/2
	rightStart := split - overlap/2
	if leftEnd > n {
		leftEnd = n
	}
	if rightStart < 0 {
		rightStart = 0
	}

	leftPayload := payload[:leftEnd]
	rightPayload := payload[rightStart:]

	w1, err := rt.writeToGroup(leftGroup, leftRC, leftPayload, segPartNo)
	if err != nil {
		return nil, false, err
	}
	w2, err := rt.writeToGroup(rightGroup, rightRC, rightPayload, segPartNo+1)
	if err != nil {
		return nil, false, err
	}
	return []SegmentWrite{w1, w2}, true, nil
}

func firstSharedNeighbor(a, b []uint64) (uint64, bool) {
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] == b[j]:
			return a[i], true
		case a[i] < b[j]:
			i++
		default:
			j++
		}
	}
	return 0, false
}

// bestSplitPosition finds the index minimizing left-prefix + right-suffix
// coding cost, from per-position cost vectors of equal length, then rounds
// the result all the way to 0 or n if it falls within k+1 of that edge.
func bestSplitPosition(left, right []uint32, k int) int {
	n := len(left)
	prefix := make([]uint64, n+1)
	suffix := make([]uint64, n+1)
	for i := 0; i < n; i++ {
		prefix[i+1] = prefix[i] + uint64(left[i])
	}
	for i := n - 1; i >= 0; i-- {
		suffix[i] = suffix[i+1] + uint64(right[i])
	}

	best := 0
	bestCost := prefix[0] + suffix[0]
	for p := 1; p <= n; p++ {
		c := prefix[p] + suffix[p]
		if c < bestCost {
			bestCost = c
			best = p
		}
	}

	if best < k+1 {
		best = 0
	}
	if best+k+1 > n {
		best = n
	}
	return best
}

// rehashGroupZero spreads segments bound for the reserved (Sentinel,
// Sentinel) group across the raw-group band instead of piling them onto
// group 0.
func (rt *Router) rehashGroupZero(sample, contig string, segPartNo int, group uint32) uint32 {
	if group != 0 {
		return group
	}
	h := hash64Mix(sample + contig)
	return uint32((h + uint64(segPartNo)) % uint64(rt.sm.NoRawGroups()))
}

func (rt *Router) writeToGroup(group uint32, isRC bool, payload []byte, segPartNo int) (SegmentWrite, error) {
	if group < rt.sm.NoRawGroups() {
		id, err := rt.store.AddRaw(group, payload)
		return SegmentWrite{Group: group, InGroupID: id, IsRC: isRC, RawLength: len(payload), SegPartNo: segPartNo}, err
	}
	created := rt.store.EnsureGroup(group)
	if created {
		id, err := rt.store.AddReference(group, payload)
		return SegmentWrite{Group: group, InGroupID: id, IsRC: isRC, RawLength: len(payload), SegPartNo: segPartNo}, err
	}
	id, err := rt.store.AddDelta(group, payload, isRC)
	return SegmentWrite{Group: group, InGroupID: id, IsRC: isRC, RawLength: len(payload), SegPartNo: segPartNo}, err
}

// hash64Mix is Thomas Wang's 64-bit integer hash (the same mixer
// unikmer's command-line tools use for hash-based k-mer bucketing),
// applied here to a string key via FNV-1a to fold it down to one
// uint64 before mixing.
func hash64Mix(s string) uint64 {
	const offset64 = 14695981039346656037
	const prime64 = 1099511628211
	h := uint64(offset64)
	for i := 0; i < len(s); i++ {
		h ^= uint64(s[i])
		h *= prime64
	}
	h = (^h) + (h << 21)
	h = h ^ (h >> 24)
	h = (h + (h << 3)) + (h << 8)
	h = h ^ (h >> 14)
	h = (h + (h << 2)) + (h << 4)
	h = h ^ (h >> 28)
	h = h + (h << 31)
	return h
}
