package pangc

import "testing"

func TestBufferedSegPartsSortKnown(t *testing.T) {
	b := NewBufferedSegParts()
	b.PushKnown(PendingSegPart{Sample: "s2", Contig: "c1", SegPartNo: 0, Group: 5})
	b.PushKnown(PendingSegPart{Sample: "s1", Contig: "c1", SegPartNo: 1, Group: 3})
	b.PushKnown(PendingSegPart{Sample: "s1", Contig: "c1", SegPartNo: 0, Group: 3})

	b.SortKnown()

	if b.known[0].Group != 3 || b.known[1].Group != 3 || b.known[2].Group != 5 {
		t.Fatalf("not grouped: %+v", b.known)
	}
	if b.known[0].SegPartNo != 0 || b.known[1].SegPartNo != 1 {
		t.Fatalf("seg_part_no not ascending within group: %+v", b.known[:2])
	}
}

func TestBufferedSegPartsProcessNew(t *testing.T) {
	sm := NewSegmentMap(4)
	b := NewBufferedSegParts()

	fpA := Fingerprint{10, 20}
	fpB := Fingerprint{30, 40}
	b.PushNew(PendingSegPart{Sample: "s1", Contig: "c1", SegPartNo: 0, Fingerprint: fpA, Group: invalidGroup})
	b.PushNew(PendingSegPart{Sample: "s1", Contig: "c1", SegPartNo: 1, Fingerprint: fpB, Group: invalidGroup})
	b.PushNew(PendingSegPart{Sample: "s2", Contig: "c1", SegPartNo: 0, Fingerprint: fpA, Group: invalidGroup})

	created := b.ProcessNew(sm)
	if created != 2 {
		t.Fatalf("created = %d, want 2", created)
	}
	if len(b.known) != 3 {
		t.Fatalf("known len = %d, want 3", len(b.known))
	}
	for _, rec := range b.known {
		g, ok := sm.Lookup(rec.Fingerprint)
		if !ok || g != rec.Group {
			t.Fatalf("record group mismatch: %+v vs map %d", rec, g)
		}
	}

	// Re-running ProcessNew on an already-empty new pile must not panic or
	// allocate fresh groups.
	if created2 := b.ProcessNew(sm); created2 != 0 {
		t.Fatalf("second ProcessNew created %d, want 0", created2)
	}
}

func TestBufferedSegPartsDistributeSegments(t *testing.T) {
	b := NewBufferedSegParts()
	for g := uint32(0); g < 6; g++ {
		b.PushKnown(PendingSegPart{Group: g})
	}
	b.SortKnown()

	queues := b.DistributeSegments(3)
	total := 0
	for _, q := range queues {
		total += len(q)
	}
	if total != 6 {
		t.Fatalf("total distributed = %d, want 6", total)
	}

	// No group's segments may be split across two queues.
	seen := map[uint32]int{}
	for qi, q := range queues {
		for _, rec := range q {
			if prev, ok := seen[rec.Group]; ok && prev != qi {
				t.Fatalf("group %d split across queues %d and %d", rec.Group, prev, qi)
			}
			seen[rec.Group] = qi
		}
	}
}
