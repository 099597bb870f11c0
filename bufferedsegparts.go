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

import "sort"

// PendingSegPart is one staged segment awaiting group resolution in
// reproducibility mode. Known records already carry a Group; new records
// carry only a Fingerprint and are promoted to known by ProcessNew.
type PendingSegPart struct {
	Sample      string
	Contig      string
	SegPartNo   int
	Payload     []byte
	IsRC        bool
	Fingerprint Fingerprint
	Group       uint32
}

// BufferedSegParts is the reproducibility-mode staging area (C5) sitting
// between SegmentRouter and the per-group writers: it holds every segment
// emitted during the "all_contigs" stage in two piles until the
// "registration" barrier can resolve them in input-order-independent,
// thread-count-independent order.
type BufferedSegParts struct {
	known []PendingSegPart
	new_  []PendingSegPart
}

// NewBufferedSegParts returns an empty staging area.
func NewBufferedSegParts() *BufferedSegParts {
	return &BufferedSegParts{}
}

// PushKnown stages a segment whose fingerprint already resolved to an
// existing group at emit time. Callers must hold whatever mutual exclusion
// the pipeline provides for the "all_contigs" stage; BufferedSegParts
// itself does no locking, matching the single-writer-per-barrier-phase
// discipline the reproducibility pipeline relies on elsewhere.
func (b *BufferedSegParts) PushKnown(rec PendingSegPart) {
	b.known = append(b.known, rec)
}

// PushNew stages a segment whose fingerprint has not been assigned a group
// yet in this batch.
func (b *BufferedSegParts) PushNew(rec PendingSegPart) {
	b.new_ = append(b.new_, rec)
}

// SortKnown orders the known pile by (group, sample, contig, seg_part_no)
// so that DistributeSegments hands identical per-group work to the worker
// pool regardless of arrival order.
func (b *BufferedSegParts) SortKnown() {
	sort.Slice(b.known, func(i, j int) bool {
		a, c := b.known[i], b.known[j]
		if a.Group != c.Group {
			return a.Group < c.Group
		}
		if a.Sample != c.Sample {
			return a.Sample < c.Sample
		}
		if a.Contig != c.Contig {
			return a.Contig < c.Contig
		}
		return a.SegPartNo < c.SegPartNo
	})
}

// ProcessNew sorts the new pile by (fingerprint, sample, contig,
// seg_part_no), allocates one fresh group per distinct fingerprint in that
// order, migrates the records into the known pile with their resolved
// group, and returns the number of groups it created. Calling this
// multiple times on an empty new pile is a no-op.
func (b *BufferedSegParts) ProcessNew(sm *SegmentMap) uint32 {
	if len(b.new_) == 0 {
		return 0
	}
	sort.Slice(b.new_, func(i, j int) bool {
		a, c := b.new_[i], b.new_[j]
		if a.Fingerprint != c.Fingerprint {
			return fpLess(a.Fingerprint, c.Fingerprint)
		}
		if a.Sample != c.Sample {
			return a.Sample < c.Sample
		}
		if a.Contig != c.Contig {
			return a.Contig < c.Contig
		}
		return a.SegPartNo < c.SegPartNo
	})

	var created uint32
	i := 0
	for i < len(b.new_) {
		j := i + 1
		fp := b.new_[i].Fingerprint
		for j < len(b.new_) && b.new_[j].Fingerprint == fp {
			j++
		}
		group, isNew := sm.LookupOrInsertNew(fp)
		if isNew {
			created++
		}
		for x := i; x < j; x++ {
			rec := b.new_[x]
			rec.Group = group
			b.known = append(b.known, rec)
		}
		i = j
	}
	b.new_ = b.new_[:0]
	return created
}

// DistributeSegments partitions the (already sorted) known pile into
// numWorkers work queues, dealing whole groups round-robin (the i-th
// distinct group goes to queue i % numWorkers) so that no group's segments
// are ever split across workers (avoiding any need for a lock while
// writing a group's own delta stream).
func (b *BufferedSegParts) DistributeSegments(numWorkers int) [][]PendingSegPart {
	if numWorkers < 1 {
		numWorkers = 1
	}
	queues := make([][]PendingSegPart, numWorkers)
	if len(b.known) == 0 {
		return queues
	}

	groups := make([]uint32, 0)
	runs := make(map[uint32][]PendingSegPart)
	i := 0
	for i < len(b.known) {
		j := i + 1
		g := b.known[i].Group
		for j < len(b.known) && b.known[j].Group == g {
			j++
		}
		groups = append(groups, g)
		runs[g] = b.known[i:j]
		i = j
	}

	for idx, g := range groups {
		w := idx % numWorkers
		queues[w] = append(queues[w], runs[g]...)
	}
	return queues
}

// Clear empties both piles, preserving their backing capacity for reuse on
// the next "all_contigs" stage.
func (b *BufferedSegParts) Clear() {
	b.known = b.known[:0]
	b.new_ = b.new_[:0]
}

// Len reports the number of records currently staged across both piles.
func (b *BufferedSegParts) Len() int {
	return len(b.known) + len(b.new_)
}
