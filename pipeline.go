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

// segmentSpec is one candidate (front, back, byte range) slice of a
// preprocessed contig, produced by scanning it against SplitterIndex.
type segmentSpec struct {
	front, back SplitterTerm
	start, end  int
}

// scanContigSegments walks a preprocessed contig (ContigSymbols output)
// with a rolling k-mer, splitting it every time the window's canonical
// value is a known splitter. The first segment's front terminal and the
// last segment's back terminal are both "empty", matching contig-end
// semantics.
func scanContigSegments(seq []byte, idx *SplitterIndex, k int) []segmentSpec {
	roller := NewKmerRoller(k)
	var out []segmentSpec
	front := noTerm
	segStart := 0

	for pos, sym := range seq {
		if sym == symAmbiguous {
			roller.Reset()
			continue
		}
		roller.Insert(uint64(sym))
		if !roller.Full() {
			continue
		}
		v := roller.Value()
		if !idx.Check(v) {
			continue
		}
		term := SplitterTerm{Present: true, Value: v, DirOriented: roller.DirOriented()}
		end := pos + 1
		out = append(out, segmentSpec{front: front, back: term, start: segStart, end: end})
		front = term
		segStart = end - k
		roller.Reset()
	}
	out = append(out, segmentSpec{front: front, back: noTerm, start: segStart, end: len(seq)})
	return out
}

// SampleInput is one input genome: a sample name and its raw (unpreprocessed) contigs.
type SampleInput struct {
	Sample  string
	Contigs []NamedContig // Seq holds raw bytes, not yet run through ContigSymbols
}

// SegmentSink receives each routed segment as the pipeline produces it;
// cmd/pangc's collectionSink implements it by recording each write in a
// collection.Collection.
type SegmentSink interface {
	WriteSegment(sample, contig string, w SegmentWrite)
}

// Pipeline is the CompressionPipeline (C8): it owns the worker pool,
// drives contigs through preprocessing, splitter scanning and SegmentRouter,
// and—in reproducibility mode—the barrier-staged BufferedSegParts path.
type Pipeline struct {
	opt      Options
	idx      *SplitterIndex
	sm       *SegmentMap
	router   *Router
	selector *SplitterSelector
	sink     SegmentSink

	mu          sync.Mutex // guards hardContigs in reproducibility+adaptive mode
	hardContigs []SampleInput

	stageMu  sync.Mutex // guards stageBuf during the all_contigs stage
	stageBuf *BufferedSegParts

	// stageQueues holds the per-worker partition DistributeSegments built
	// at the registration barrier. It is written once by the barrier
	// leader and read by every worker only after a second barrier
	// rendezvous, so no mutex guards it.
	stageQueues [][]PendingSegPart
}

// NewPipeline wires a Pipeline over an already-built reference SplitterIndex.
func NewPipeline(opt Options, idx *SplitterIndex, sm *SegmentMap, router *Router, selector *SplitterSelector, sink SegmentSink) *Pipeline {
	return &Pipeline{opt: opt, idx: idx, sm: sm, router: router, selector: selector, sink: sink}
}

// Run segments every contig of every sample and routes the results to the
// sink. It dispatches to the standard or reproducibility-mode worker
// discipline according to opt.ReproducibilityMode.
func (p *Pipeline) Run(samples []SampleInput) error {
	if p.opt.ReproducibilityMode {
		return p.runReproducible(samples)
	}
	return p.runStandard(samples)
}

// runStandard drains a single priority queue with a plain worker pool: no
// cross-contig ordering is promised, SegmentMap's own mutex is the only
// synchronization needed.
func (p *Pipeline) runStandard(samples []SampleInput) error {
	q := NewTaskQueue(4 * p.opt.NoThreads)
	errs := make(chan error, p.opt.NoThreads)

	var wg sync.WaitGroup
	for i := 0; i < workerCount(p.opt.NoThreads); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				t, ok := q.Pop()
				if !ok {
					return
				}
				if err := p.segmentOne(t.Contig, nil); err != nil {
					select {
					case errs <- err:
					default:
					}
				}
			}
		}()
	}

	priority := len(samples)
	for _, s := range samples {
		for _, c := range s.Contigs {
			q.Push(Task{Kind: taskContig, Contig: NamedContig{Sample: s.Sample, Contig: c.Contig, Seq: c.Seq}}, priority)
		}
		priority--
	}
	q.Close()
	wg.Wait()

	select {
	case err := <-errs:
		return err
	default:
		return nil
	}
}

// runReproducible drives the two-stage, barrier-synchronized worker
// discipline: all_contigs -> new_splitters (adaptive only) -> registration.
func (p *Pipeline) runReproducible(samples []SampleInput) error {
	n := workerCount(p.opt.NoThreads)
	p.stageBuf = NewBufferedSegParts()
	q := NewTaskQueue(4 * n)

	allContigsBarrier := NewBarrier(n)
	registrationBarrier := NewBarrier(n)

	var wg sync.WaitGroup
	errs := make(chan error, n)
	recordErr := func(err error) {
		if err == nil {
			return
		}
		select {
		case errs <- err:
		default:
		}
	}

	for w := 0; w < n; w++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for {
				t, ok := q.Pop()
				if !ok {
					return
				}
				switch t.Kind {
				case taskContig:
					recordErr(p.segmentOne(t.Contig, p.stage))
				case taskNewSplitters:
					if allContigsBarrier.Wait() {
						p.mergeHardContigSplitters()
					}
				case taskRegistration:
					// Three rendezvous on the same reusable barrier: (1) wait
					// for every worker's all_contigs output, then the leader
					// resolves fingerprints to groups and partitions the
					// known pile into one contiguous-by-group queue per
					// worker; (2) wait again so no worker starts draining
					// before that partition exists; then every worker
					// drains its own queue in parallel, each only ever
					// touching groups no other worker was handed; (3) wait
					// once more before the leader clears the staging area
					// for the next sample.
					if registrationBarrier.Wait() {
						p.stageBuf.SortKnown()
						p.stageBuf.ProcessNew(p.sm)
						p.stageBuf.SortKnown()
						p.stageQueues = p.stageBuf.DistributeSegments(n)
					}
					registrationBarrier.Wait()
					for _, rec := range p.stageQueues[workerID] {
						p.writeStaged(rec)
					}
					if registrationBarrier.Wait() {
						p.stageBuf.Clear()
						p.stageQueues = nil
					}
				}
			}
		}(w)
	}

	priority := len(samples)
	for _, s := range samples {
		for _, c := range s.Contigs {
			q.Push(Task{Kind: taskContig, Contig: NamedContig{Sample: s.Sample, Contig: c.Contig, Seq: c.Seq}}, priority)
		}
		if p.opt.AdaptiveCompression {
			for i := 0; i < n; i++ {
				q.Push(Task{Kind: taskNewSplitters}, priority)
			}
		}
		for i := 0; i < n; i++ {
			q.Push(Task{Kind: taskRegistration}, priority)
		}
		priority--
	}
	q.Close()
	wg.Wait()

	select {
	case err := <-errs:
		return err
	default:
		return nil
	}
}

// invalidGroup marks a PendingSegPart whose fingerprint has not resolved
// to a group yet; it must never collide with a real group id, so it is
// the largest uint32, far above the group ids allocated in practice.
const invalidGroup = ^uint32(0)

// segmentOne preprocesses and scans one contig, routing every resulting
// segment. In standard mode stage is nil and routed writes go straight to
// the sink; in reproducibility mode stage stages a PendingSegPart instead.
func (p *Pipeline) segmentOne(nc NamedContig, stage func(PendingSegPart)) error {
	symbols := ContigSymbols(nil, PreprocessContig(nc.Seq))
	specs := scanContigSegments(symbols, p.idx, p.opt.K)

	hard := len(specs) == 1 && !specs[0].front.Present && !specs[0].back.Present &&
		p.opt.AdaptiveCompression && len(symbols) >= p.opt.SegmentSize
	if hard && stage != nil {
		// Deferred, not written: find_new_splitters gets a chance to
		// resegment this contig against the enlarged SplitterIndex at the
		// next new_splitters barrier, instead of it being stuck in group 0
		// forever.
		p.mu.Lock()
		p.hardContigs = append(p.hardContigs, SampleInput{Sample: nc.Sample, Contigs: []NamedContig{{Sample: nc.Sample, Contig: nc.Contig, Seq: nc.Seq}}})
		p.mu.Unlock()
		return nil
	}

	// partNo is the next free segment position in the contig: a
	// missing-middle split returns two writes numbered partNo and partNo+1,
	// so it advances by the number of writes, not by one per spec.
	partNo := 0
	for i, spec := range specs {
		payload := symbols[spec.start:spec.end]
		if stage == nil {
			writes, err := p.router.AddSegment(nc.Sample, nc.Contig, partNo, payload, spec.front, spec.back)
			if err != nil {
				return err
			}
			for _, w := range writes {
				p.sink.WriteSegment(nc.Sample, nc.Contig, w)
			}
			partNo += len(writes)
			continue
		}
		stage(p.stagePart(nc.Sample, nc.Contig, i, payload, spec.front, spec.back))
	}
	return nil
}

// stage pushes a resolved-or-pending record into the shared staging area
// for the current all_contigs stage.
func (p *Pipeline) stage(rec PendingSegPart) {
	p.stageMu.Lock()
	if rec.Group != invalidGroup {
		p.stageBuf.PushKnown(rec)
	} else {
		p.stageBuf.PushNew(rec)
	}
	p.stageMu.Unlock()
}

// stagePart resolves a segment's fingerprint (without allocating a group
// for unseen ones) for the all_contigs stage of reproducibility mode.
func (p *Pipeline) stagePart(sample, contig string, segPartNo int, payload []byte, front, back SplitterTerm) PendingSegPart {
	var pk Fingerprint
	var rc bool
	switch {
	case !front.Present && !back.Present:
		pk = Fingerprint{Sentinel, Sentinel}
	case front.Present && back.Present:
		pk, rc = Canon(front.Value, back.Value)
	default:
		// One terminal known: pair it with the sentinel according to its
		// own forward/RC orientation, matching addOneTerminal's fallback.
		present := front
		if back.Present {
			present = back
		}
		if present.DirOriented {
			pk = Fingerprint{present.Value, Sentinel}
			rc = false
		} else {
			pk = Fingerprint{Sentinel, present.Value}
			rc = true
		}
	}

	rec := PendingSegPart{Sample: sample, Contig: contig, SegPartNo: segPartNo, Payload: payload, IsRC: rc, Fingerprint: pk, Group: invalidGroup}
	if g, ok := p.sm.Lookup(pk); ok {
		rec.Group = g
		if pk.K1 == Sentinel && pk.K2 == Sentinel {
			// The reserved fingerprint always resolves to group 0; apply
			// the same group-0 rehash standard mode applies inline, so
			// staged no-terminal segments spread across the raw band too.
			rec.Group = p.router.rehashGroupZero(sample, contig, segPartNo, g)
		}
	}
	return rec
}

// writeStaged performs the actual group write for a resolved staged
// record, after the registration barrier has assigned every fresh group.
func (p *Pipeline) writeStaged(rec PendingSegPart) {
	w, err := p.router.writeToGroup(rec.Group, rec.IsRC, rec.Payload, rec.SegPartNo)
	if err != nil {
		return
	}
	p.sink.WriteSegment(rec.Sample, rec.Contig, w)
}

// mergeHardContigSplitters implements the adaptive new_splitters barrier
// step: run find_new_splitters over every contig that produced no
// terminals at all, insert the discovered values into SplitterIndex, and
// clear the list so the next sample's hard contigs start fresh.
func (p *Pipeline) mergeHardContigSplitters() {
	p.mu.Lock()
	hard := p.hardContigs
	p.hardContigs = nil
	p.mu.Unlock()

	// Hard contigs carry raw bytes; FindNewSplitters and the scan work on
	// ContigSymbols output.
	symbols := make([][]byte, 0, len(hard))
	for _, s := range hard {
		for _, c := range s.Contigs {
			sym := ContigSymbols(nil, PreprocessContig(c.Seq))
			symbols = append(symbols, sym)
			for _, hit := range p.selector.FindNewSplitters(sym) {
				p.idx.InsertFast(hit.Value)
			}
		}
	}
	// Resegment every hard contig now that SplitterIndex has grown; this
	// is the barrier leader's serial replacement for "redirect the working
	// queue to aux and let the pool drain it again". The parts are staged
	// directly rather than through segmentOne, so a contig that still has
	// no splitter is staged as a no-terminal segment instead of deferred.
	j := 0
	for _, s := range hard {
		for _, c := range s.Contigs {
			sym := symbols[j]
			j++
			for i, spec := range scanContigSegments(sym, p.idx, p.opt.K) {
				p.stage(p.stagePart(c.Sample, c.Contig, i, sym[spec.start:spec.end], spec.front, spec.back))
			}
		}
	}
}
