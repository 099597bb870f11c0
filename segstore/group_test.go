package segstore

import "testing"

func TestStoreRawGroupCounts(t *testing.T) {
	s := NewStore(20)
	id0, err := s.AddRaw(0, []byte{0, 1, 2, 3})
	if err != nil {
		t.Fatal(err)
	}
	id1, err := s.AddRaw(0, []byte{1, 2, 3, 0})
	if err != nil {
		t.Fatal(err)
	}
	if id0 != 0 || id1 != 1 {
		t.Fatalf("ids = %d, %d; want 0, 1", id0, id1)
	}
	if len(s.RawParts(0)) != 2 {
		t.Fatalf("raw parts = %d, want 2", len(s.RawParts(0)))
	}
}

func TestStoreDeltaAgainstReference(t *testing.T) {
	s := NewStore(4)
	ref := make([]byte, 0, 200)
	for i := 0; i < 200; i++ {
		ref = append(ref, byte(i%4))
	}
	if _, err := s.AddReference(1, ref); err != nil {
		t.Fatal(err)
	}

	payload := append([]byte(nil), ref[10:150]...)
	size, ok := s.Estimate(1, payload, false)
	if !ok {
		t.Fatal("expected reference-backed estimate")
	}
	if size >= uint64(len(payload)) {
		t.Fatalf("delta estimate %d not smaller than raw length %d for a pure substring match", size, len(payload))
	}

	id, err := s.AddDelta(1, payload, false)
	if err != nil {
		t.Fatal(err)
	}
	if id != 0 {
		t.Fatalf("id = %d, want 0", id)
	}
	parts := s.DeltaParts(1)
	if len(parts) != 1 {
		t.Fatalf("delta parts = %d, want 1", len(parts))
	}
	if len(parts[0]) >= len(payload) {
		t.Fatalf("encoded delta %d bytes is not smaller than payload %d bytes", len(parts[0]), len(payload))
	}
}

func TestStoreEstimateWithoutReferenceFails(t *testing.T) {
	s := NewStore(10)
	if _, ok := s.Estimate(5, []byte{0, 1, 2}, false); ok {
		t.Fatal("expected ok=false for a group with no reference yet")
	}
}

func TestStoreCodingCostVectorDirection(t *testing.T) {
	s := NewStore(4)
	ref := []byte{0, 1, 2, 3, 0, 1, 2, 3, 0, 1, 2, 3}
	if _, err := s.AddReference(2, ref); err != nil {
		t.Fatal(err)
	}
	payload := []byte{9, 9, 9, 0, 1, 2, 3, 0, 1, 2, 3}
	fwd, ok := s.CodingCostVector(2, payload, false, true)
	if !ok || len(fwd) != len(payload) {
		t.Fatalf("forward cost vector invalid: %v %v", fwd, ok)
	}
	if fwd[0] != 1 {
		t.Fatalf("leading mismatched symbols should cost 1, got %d", fwd[0])
	}
}

func TestReverseComplementSymbolsPreservesAmbiguous(t *testing.T) {
	in := []byte{0, 1, 2, 3, 0xFF}
	out := reverseComplementSymbols(in)
	want := []byte{0xFF, 0, 1, 2, 3}
	for i := range want {
		if out[i] != want[i] {
			t.Fatalf("out[%d] = %d, want %d (%v)", i, out[i], want[i], out)
		}
	}
}

func TestStoreGroupIDsSorted(t *testing.T) {
	s := NewStore(4)
	s.EnsureGroup(5)
	s.EnsureGroup(1)
	s.EnsureGroup(3)
	ids := s.GroupIDs()
	if len(ids) != 3 || ids[0] != 1 || ids[1] != 3 || ids[2] != 5 {
		t.Fatalf("ids = %v, want [1 3 5]", ids)
	}
}

func TestStorePrimeOffsetsSubsequentIDs(t *testing.T) {
	s := NewStore(4)
	s.Prime(9, 3)
	id, err := s.AddRaw(9, []byte{1, 2, 3})
	if err != nil {
		t.Fatal(err)
	}
	if id != 3 {
		t.Fatalf("id = %d, want 3", id)
	}
	if len(s.RawParts(9)) != 1 {
		t.Fatalf("RawParts should only report parts added this session, got %d", len(s.RawParts(9)))
	}
}

func TestSizeOnlyEstimateIsRawLength(t *testing.T) {
	s := NewSizeOnly()
	s.EnsureGroup(3)
	if _, err := s.AddReference(3, []byte{0, 1, 2}); err != nil {
		t.Fatal(err)
	}
	size, ok := s.Estimate(3, []byte{0, 1, 2, 3, 0}, false)
	if !ok || size != 5 {
		t.Fatalf("size = %d, ok = %v; want 5, true", size, ok)
	}
}
