package pangc

import "testing"

// fakeGroupStore is a minimal in-memory GroupStore good enough to drive
// Router's decision tree in tests: raw groups just count writes, non-raw
// groups remember their reference bytes and estimate delta size as the
// absolute length difference from it.
type fakeGroupStore struct {
	refs    map[uint32][]byte
	counts  map[uint32]uint32
	created map[uint32]bool
}

func newFakeGroupStore() *fakeGroupStore {
	return &fakeGroupStore{refs: map[uint32][]byte{}, counts: map[uint32]uint32{}, created: map[uint32]bool{}}
}

func (f *fakeGroupStore) EnsureGroup(g uint32) bool {
	if f.created[g] {
		return false
	}
	f.created[g] = true
	return true
}

func (f *fakeGroupStore) AddRaw(g uint32, payload []byte) (uint32, error) {
	id := f.counts[g]
	f.counts[g]++
	return id, nil
}

func (f *fakeGroupStore) AddReference(g uint32, payload []byte) (uint32, error) {
	f.refs[g] = append([]byte(nil), payload...)
	id := f.counts[g]
	f.counts[g]++
	return id, nil
}

func (f *fakeGroupStore) AddDelta(g uint32, payload []byte, rc bool) (uint32, error) {
	id := f.counts[g]
	f.counts[g]++
	return id, nil
}

func (f *fakeGroupStore) Estimate(g uint32, payload []byte, rc bool) (uint64, bool) {
	ref, ok := f.refs[g]
	if !ok {
		return 0, false
	}
	d := len(payload) - len(ref)
	if d < 0 {
		d = -d
	}
	return uint64(d), true
}

func (f *fakeGroupStore) CodingCostVector(g uint32, payload []byte, rc bool, forward bool) ([]uint32, bool) {
	if _, ok := f.refs[g]; !ok {
		return nil, false
	}
	out := make([]uint32, len(payload))
	for i := range out {
		out[i] = 1
	}
	return out, true
}

func newTestRouter(noRawGroups uint32) (*Router, *SegmentMap, *fakeGroupStore) {
	opt := DefaultOptions()
	opt.NoRawGroups = noRawGroups
	opt.RawBeatMargin = 16
	sm := NewSegmentMap(noRawGroups)
	store := newFakeGroupStore()
	return NewRouter(opt, sm, store), sm, store
}

func TestRouterNoTerminalGoesToRawBand(t *testing.T) {
	rt, _, store := newTestRouter(4)
	writes, err := rt.AddSegment("s1", "c1", 0, []byte{0, 1, 2, 3}, noTerm, noTerm)
	if err != nil {
		t.Fatal(err)
	}
	if len(writes) != 1 {
		t.Fatalf("writes = %d, want 1", len(writes))
	}
	w := writes[0]
	if w.Group >= 4 {
		t.Fatalf("no-terminal segment routed to non-raw group %d", w.Group)
	}
	if store.counts[w.Group] != 1 {
		t.Fatalf("store did not observe the write")
	}
}

func TestRouterBothTerminalCanonicalizesAndCreatesGroup(t *testing.T) {
	rt, sm, _ := newTestRouter(4)
	writes, err := rt.AddSegment("s1", "c1", 0, []byte{0, 1, 2, 3}, SplitterTerm{Present: true, Value: 100}, SplitterTerm{Present: true, Value: 50})
	if err != nil {
		t.Fatal(err)
	}
	if len(writes) != 1 {
		t.Fatal("expected exactly one write")
	}
	if !writes[0].IsRC {
		t.Fatal("expected store_rc when front > back")
	}
	pk, _ := Canon(100, 50)
	g, ok := sm.Lookup(pk)
	if !ok || g != writes[0].Group {
		t.Fatalf("SegmentMap not updated consistently: %v %v vs %v", ok, g, writes[0].Group)
	}

	// A second segment with the same pair of terminals must reuse the group.
	writes2, err := rt.AddSegment("s2", "c1", 0, []byte{3, 2, 1, 0}, SplitterTerm{Present: true, Value: 50}, SplitterTerm{Present: true, Value: 100})
	if err != nil {
		t.Fatal(err)
	}
	if writes2[0].Group != writes[0].Group {
		t.Fatalf("second segment got a different group: %d vs %d", writes2[0].Group, writes[0].Group)
	}
	if writes2[0].IsRC {
		t.Fatal("front < back should not store_rc")
	}
}

func TestRouterGroupZeroIsRehashed(t *testing.T) {
	rt, sm, _ := newTestRouter(4)
	// (Sentinel,Sentinel) is pre-assigned to group 0; force no-terminal
	// writes for one sample/contig key across several seg_part_no values and
	// confirm every rehashed group stays inside the raw band.
	seen := map[uint32]bool{}
	for i := 0; i < 8; i++ {
		writes, err := rt.AddSegment("sample", "contig", i, []byte{0, 1}, noTerm, noTerm)
		if err != nil {
			t.Fatal(err)
		}
		seen[writes[0].Group] = true
		if writes[0].Group >= sm.NoRawGroups() {
			t.Fatalf("rehashed group %d escaped raw band", writes[0].Group)
		}
	}
}

// TestRouterOneTerminalFallback exercises the orientation-based fallback:
// the known splitter pairs with Sentinel according to its own dir-oriented
// flag, not whether it happened to bound the front or the back of the
// segment (mirroring find_cand_segment_with_one_splitter).
func TestRouterOneTerminalFallback(t *testing.T) {
	rt, sm, _ := newTestRouter(4)
	writes, err := rt.AddSegment("s1", "c1", 0, []byte{0, 1, 2, 3}, SplitterTerm{Present: true, Value: 7, DirOriented: true}, noTerm)
	if err != nil {
		t.Fatal(err)
	}
	if writes[0].IsRC {
		t.Fatal("dir-oriented fallback should not flip orientation")
	}
	pk, _ := Canon(7, Sentinel)
	if _, ok := sm.Lookup(pk); !ok {
		t.Fatal("fallback fingerprint was not registered")
	}

	writesBack, err := rt.AddSegment("s1", "c2", 0, []byte{0, 1, 2, 3}, noTerm, SplitterTerm{Present: true, Value: 9, DirOriented: false})
	if err != nil {
		t.Fatal(err)
	}
	if !writesBack[0].IsRC {
		t.Fatal("non-dir-oriented fallback must store the payload reverse-complemented")
	}

	// Orientation, not position, drives the decision: a front terminal
	// that is NOT dir-oriented must also flip, and a back terminal that
	// IS dir-oriented must not.
	writesFrontFlip, err := rt.AddSegment("s1", "c3", 0, []byte{0, 1, 2, 3}, SplitterTerm{Present: true, Value: 11, DirOriented: false}, noTerm)
	if err != nil {
		t.Fatal(err)
	}
	if !writesFrontFlip[0].IsRC {
		t.Fatal("front terminal that is not dir-oriented must flip orientation")
	}

	writesBackNoFlip, err := rt.AddSegment("s1", "c4", 0, []byte{0, 1, 2, 3}, noTerm, SplitterTerm{Present: true, Value: 13, DirOriented: true})
	if err != nil {
		t.Fatal(err)
	}
	if writesBackNoFlip[0].IsRC {
		t.Fatal("back terminal that is dir-oriented must not flip orientation")
	}
}

// TestBestSplitPositionRoundsToEdge covers find_cand_segment_with_missing_
// middle_splitter's edge-rounding rule: the minimum-cost position is found
// over the whole range first, then rounded all the way to 0 or n if that
// minimum falls within k+1 of either edge.
func TestBestSplitPositionRoundsToEdge(t *testing.T) {
	k := 3 // k+1 = 4 margin on each side
	n := 12

	// Raw minimum sits at position 1 (cost 11, beats position 0's cost 12
	// and everything after), inside the left k+1 margin: must round all
	// the way down to 0, not get stuck at the unclamped optimum.
	left := []uint32{0, 10, 10, 10, 10, 10, 10, 10, 10, 10, 10, 10}
	right := []uint32{1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1}
	if got := bestSplitPosition(left, right, k); got != 0 {
		t.Fatalf("bestSplitPosition = %d, want 0 (edge-hugging optimum)", got)
	}

	// Mirror image: raw minimum sits at position n-1, inside the right
	// k+1 margin, so it must round all the way up to n.
	left2 := []uint32{1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1}
	right2 := []uint32{10, 10, 10, 10, 10, 10, 10, 10, 10, 10, 10, 0}
	if got := bestSplitPosition(left2, right2, k); got != n {
		t.Fatalf("bestSplitPosition = %d, want %d (edge-hugging optimum)", got, n)
	}

	// Raw minimum sits at position 6, safely more than k+1 away from
	// either edge: no rounding applied.
	left3 := []uint32{0, 0, 0, 0, 0, 0, 100, 100, 100, 100, 100, 100}
	right3 := []uint32{100, 100, 100, 100, 100, 100, 0, 0, 0, 0, 0, 0}
	if got := bestSplitPosition(left3, right3, k); got != 6 {
		t.Fatalf("bestSplitPosition = %d, want 6 (interior optimum left unrounded)", got)
	}
}
