package collection

import "testing"

func buildSample(t *testing.T, c *Collection, sample string, contigs map[string][]Segment) {
	t.Helper()
	for contig, segs := range contigs {
		if !c.RegisterSampleContig(sample, contig) {
			t.Fatalf("RegisterSampleContig(%q,%q) reported duplicate", sample, contig)
		}
		for _, s := range segs {
			if err := c.AddSegment(sample, contig, s); err != nil {
				t.Fatal(err)
			}
		}
	}
}

func TestRegisterSampleContigRejectsDuplicate(t *testing.T) {
	c := New()
	if !c.RegisterSampleContig("s1", "c1") {
		t.Fatal("first registration should succeed")
	}
	if c.RegisterSampleContig("s1", "c1") {
		t.Fatal("duplicate registration should be rejected")
	}
}

func TestContigSegmentsRoundTripInMemory(t *testing.T) {
	c := New()
	buildSample(t, c, "s1", map[string][]Segment{
		"c1": {
			{GroupID: 0, InGroupID: 0, IsRevComp: false, RawLength: 100},
			{GroupID: 3, InGroupID: 7, IsRevComp: true, RawLength: 42},
		},
	})
	segs, ok := c.ContigSegments("s1", "c1")
	if !ok || len(segs) != 2 {
		t.Fatalf("segs = %+v, ok = %v", segs, ok)
	}
	if segs[1].GroupID != 3 || !segs[1].IsRevComp {
		t.Fatalf("segs[1] = %+v", segs[1])
	}
}

func TestSerializeDeserializeV1RoundTrip(t *testing.T) {
	c := New()
	buildSample(t, c, "sampleA", map[string][]Segment{
		"chr1": {
			{GroupID: 0, InGroupID: 0, IsRevComp: false, RawLength: 1000},
			{GroupID: 1, InGroupID: 0, IsRevComp: true, RawLength: 250},
		},
		"chr2": {
			{GroupID: 2, InGroupID: 5, IsRevComp: false, RawLength: 80},
		},
	})
	buildSample(t, c, "sampleB", map[string][]Segment{
		"chr1": {
			{GroupID: 0, InGroupID: 1, IsRevComp: false, RawLength: 999},
		},
	})
	c.AddCmdLine("2026-01-01T00:00:00Z", "pangc create -i sampleA.fa -i sampleB.fa")

	blob := c.SerializeV1(true)

	got, err := DeserializeV1(blob)
	if err != nil {
		t.Fatal(err)
	}
	if got.NoSamples() != 2 {
		t.Fatalf("no samples = %d, want 2", got.NoSamples())
	}
	segs, ok := got.ContigSegments("sampleA", "chr1")
	if !ok || len(segs) != 2 || segs[1].RawLength != 250 || !segs[1].IsRevComp {
		t.Fatalf("sampleA/chr1 segs = %+v, ok=%v", segs, ok)
	}
	cmds := got.CmdLines()
	if len(cmds) != 1 || cmds[0].CmdLine != "pangc create -i sampleA.fa -i sampleB.fa" {
		t.Fatalf("cmd lines = %+v", cmds)
	}
}

func TestSerializeDeserializeV1GzipRoundTrip(t *testing.T) {
	c := New()
	buildSample(t, c, "sampleA", map[string][]Segment{
		"chr1": {{GroupID: 0, InGroupID: 0, IsRevComp: false, RawLength: 1000}},
	})
	c.AddCmdLine("2026-01-01T00:00:00Z", "pangc create --legacy-gzip -i sampleA.fa")

	blob, err := c.SerializeV1Gzip(true)
	if err != nil {
		t.Fatal(err)
	}
	if !isGzipMagic(blob) {
		t.Fatal("SerializeV1Gzip output does not start with the gzip magic bytes")
	}

	got, err := DeserializeV1(blob)
	if err != nil {
		t.Fatal(err)
	}
	segs, ok := got.ContigSegments("sampleA", "chr1")
	if !ok || len(segs) != 1 || segs[0].RawLength != 1000 {
		t.Fatalf("sampleA/chr1 segs = %+v, ok=%v", segs, ok)
	}
}

func TestSerializeV1OmitsDateTimeWhenDisabled(t *testing.T) {
	c := New()
	c.AddCmdLine("2026-01-01T00:00:00Z", "pangc create")
	blob := c.SerializeV1(false)
	got, err := DeserializeV1(blob)
	if err != nil {
		t.Fatal(err)
	}
	cmds := got.CmdLines()
	if len(cmds) != 1 || cmds[0].Timestamp != "" {
		t.Fatalf("expected empty timestamp, got %+v", cmds)
	}
}

func TestSerializeDeserializeV2RoundTrip(t *testing.T) {
	c := New()
	buildSample(t, c, "s1", map[string][]Segment{
		"c1": {{GroupID: 0, InGroupID: 0, IsRevComp: false, RawLength: 500}},
	})
	buildSample(t, c, "s2", map[string][]Segment{
		"c1": {{GroupID: 0, InGroupID: 1, IsRevComp: true, RawLength: 450}},
		"c2": {{GroupID: 4, InGroupID: 0, IsRevComp: false, RawLength: 12}},
	})
	buildSample(t, c, "s3", map[string][]Segment{
		"c1": {{GroupID: 1, InGroupID: 0, IsRevComp: false, RawLength: 700}},
	})

	main, details, err := c.SerializeV2(false, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(details) != 2 {
		t.Fatalf("details batches = %d, want 2 (batchSize=2, 3 samples)", len(details))
	}

	got, segCounts, batchSize, err := DeserializeV2Main(main)
	if err != nil {
		t.Fatal(err)
	}
	if got.NoSamples() != 3 || batchSize != 2 {
		t.Fatalf("no samples = %d, batchSize = %d", got.NoSamples(), batchSize)
	}

	for i, d := range details {
		if err := DeserializeV2Details(got, segCounts, batchSize, i, d); err != nil {
			t.Fatal(err)
		}
	}

	segs, ok := got.ContigSegments("s2", "c1")
	if !ok || len(segs) != 1 || !segs[0].IsRevComp || segs[0].RawLength != 450 {
		t.Fatalf("s2/c1 segs = %+v, ok=%v", segs, ok)
	}
	segs, ok = got.ContigSegments("s3", "c1")
	if !ok || len(segs) != 1 || segs[0].GroupID != 1 {
		t.Fatalf("s3/c1 segs = %+v, ok=%v", segs, ok)
	}
}

func TestContigsInSamplePreservesOrder(t *testing.T) {
	c := New()
	c.RegisterSampleContig("s1", "z_contig")
	c.RegisterSampleContig("s1", "a_contig")
	names, ok := c.ContigsInSample("s1")
	if !ok || len(names) != 2 || names[0] != "z_contig" || names[1] != "a_contig" {
		t.Fatalf("names = %v, ok = %v", names, ok)
	}
}

func TestSetSegmentPlacesAtPosition(t *testing.T) {
	c := New()
	c.RegisterSampleContig("s1", "c1")
	if err := c.SetSegment("s1", "c1", 2, Segment{GroupID: 9, RawLength: 5}); err != nil {
		t.Fatal(err)
	}
	if err := c.SetSegment("s1", "c1", 0, Segment{GroupID: 1, RawLength: 1}); err != nil {
		t.Fatal(err)
	}
	segs, ok := c.ContigSegments("s1", "c1")
	if !ok || len(segs) != 3 {
		t.Fatalf("segs = %+v, ok = %v", segs, ok)
	}
	if segs[0].GroupID != 1 || segs[2].GroupID != 9 {
		t.Fatalf("segs = %+v", segs)
	}
}

func TestAddSegmentUnknownContigFails(t *testing.T) {
	c := New()
	c.RegisterSampleContig("s1", "c1")
	if err := c.AddSegment("s1", "missing", Segment{}); err == nil {
		t.Fatal("expected error for unregistered contig")
	}
	if err := c.AddSegment("missing-sample", "c1", Segment{}); err == nil {
		t.Fatal("expected error for unregistered sample")
	}
}
