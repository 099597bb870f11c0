package pangc

import (
	"sync"
	"testing"
)

type collectingSink struct {
	mu     sync.Mutex
	writes []SegmentWrite
}

func (s *collectingSink) WriteSegment(sample, contig string, w SegmentWrite) {
	s.mu.Lock()
	s.writes = append(s.writes, w)
	s.mu.Unlock()
}

func TestScanContigSegmentsSplitsOnKnownSplitter(t *testing.T) {
	k := 4
	seq := make([]byte, 0, 40)
	for i := 0; i < 40; i++ {
		seq = append(seq, byte(i%4))
	}
	roller := NewKmerRoller(k)
	roller.Insert(uint64(seq[10]))
	roller.Insert(uint64(seq[11]))
	roller.Insert(uint64(seq[12]))
	roller.Insert(uint64(seq[13]))
	splitterValue := roller.Value()

	idx := NewSplitterIndex(8)
	idx.InsertFast(splitterValue)

	specs := scanContigSegments(seq, idx, k)
	if len(specs) < 2 {
		t.Fatalf("expected at least 2 segments, got %d", len(specs))
	}
	if specs[0].front.Present {
		t.Fatal("first segment must have no front terminal")
	}
	if !specs[0].back.Present {
		t.Fatal("first segment should end on the known splitter")
	}
	last := specs[len(specs)-1]
	if last.back.Present {
		t.Fatal("last segment must have no back terminal")
	}
}

func TestPipelineStandardModeRoutesSegments(t *testing.T) {
	opt := DefaultOptions()
	opt.K = 4
	opt.SegmentSize = 8
	opt.NoThreads = 2
	opt.NoRawGroups = 2

	idx := NewSplitterIndex(8)
	sm := NewSegmentMap(opt.NoRawGroups)
	store := newFakeGroupStore()
	router := NewRouter(opt, sm, store)
	selector := NewSplitterSelector(opt)
	sink := &collectingSink{}
	p := NewPipeline(opt, idx, sm, router, selector, sink)

	raw := []byte("ACGTACGTACGTNNNNACGTACGTACGT")
	samples := []SampleInput{
		{Sample: "s1", Contigs: []NamedContig{{Sample: "s1", Contig: "c1", Seq: raw}}},
	}
	if err := p.Run(samples); err != nil {
		t.Fatal(err)
	}
	if len(sink.writes) == 0 {
		t.Fatal("expected at least one routed segment")
	}
}

func TestPipelineReproducibleModeDeterministicSegmentCount(t *testing.T) {
	opt := DefaultOptions()
	opt.K = 4
	opt.SegmentSize = 6
	opt.NoRawGroups = 2
	opt.ReproducibilityMode = true

	raw := []byte("ACGTACGTACGTACGTACGTACGTACGTACGTACGT")
	samples := []SampleInput{
		{Sample: "s1", Contigs: []NamedContig{{Sample: "s1", Contig: "c1", Seq: raw}}},
		{Sample: "s2", Contigs: []NamedContig{{Sample: "s2", Contig: "c1", Seq: raw}}},
	}

	run := func(threads int) int {
		opt.NoThreads = threads
		idx := NewSplitterIndex(8)
		sm := NewSegmentMap(opt.NoRawGroups)
		store := newFakeGroupStore()
		router := NewRouter(opt, sm, store)
		selector := NewSplitterSelector(opt)
		sink := &collectingSink{}
		p := NewPipeline(opt, idx, sm, router, selector, sink)
		if err := p.Run(samples); err != nil {
			t.Fatal(err)
		}
		return len(sink.writes)
	}

	n1 := run(1)
	n2 := run(4)
	if n1 != n2 {
		t.Fatalf("segment count depends on thread count: %d vs %d", n1, n2)
	}
}
