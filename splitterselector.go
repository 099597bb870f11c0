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
	"sync/atomic"
)

// NamedContig pairs a contig's sequence with the names the rest of the
// pipeline needs to report errors and build the collection descriptor
// against.
type NamedContig struct {
	Sample string
	Contig string
	// Seq is ContigSymbols output ({0,1,2,3,symAmbiguous}) when passed to
	// SplitterSelector, and raw bytes inside a SampleInput given to Pipeline.
	Seq []byte
}

// SplitterSelector runs the two-pass splitter discovery algorithm over a
// reference genome, and the single-contig variant used for adaptive
// discovery.
type SplitterSelector struct {
	opt        Options
	singletons []uint64 // sorted ascending
	duplicates []uint64 // sorted ascending, only populated when AdaptiveCompression
}

// NewSplitterSelector returns a selector for the given options.
func NewSplitterSelector(opt Options) *SplitterSelector {
	return &SplitterSelector{opt: opt}
}

// Singletons returns the sorted reference singleton k-mers discovered by
// Pass1. Valid only after Pass1 returns.
func (s *SplitterSelector) Singletons() []uint64 { return s.singletons }

// Duplicates returns the sorted reference duplicate k-mers (adaptive mode
// only).
func (s *SplitterSelector) Duplicates() []uint64 { return s.duplicates }

// Pass1 enumerates every canonical k-mer across contigs, concurrently, and
// reduces the result to the singleton set (run length exactly 1), plus the
// duplicate set when adaptive compression is enabled.
//
// Each worker claims a contiguous range of the shared output array with a
// single atomic add sized to the k-mers its own contig actually yields,
// then copies directly into that range — the Go analogue of the reference
// engine's "workers atomically claim a slot in a shared pre-sized array",
// adapted so the claim size is exact instead of a worst-case upper bound,
// which avoids leaving unfilled gaps a second compaction pass would need
// to remove.
func (s *SplitterSelector) Pass1(contigs []NamedContig) {
	k := s.opt.K
	totalBases := 0
	for _, c := range contigs {
		totalBases += len(c.Seq)
	}
	shared := make([]uint64, totalBases)
	var used int64

	var wg sync.WaitGroup
	tokens := make(chan struct{}, workerCount(s.opt.NoThreads))
	for ci := range contigs {
		tokens <- struct{}{}
		wg.Add(1)
		go func(seq []byte) {
			defer func() { wg.Done(); <-tokens }()
			local := kmersOfContig(seq, k)
			if len(local) == 0 {
				return
			}
			off := atomic.AddInt64(&used, int64(len(local))) - int64(len(local))
			copy(shared[off:], local)
		}(contigs[ci].Seq)
	}
	wg.Wait()

	shared = shared[:used]
	sortUint64s(shared)

	if s.opt.AdaptiveCompression {
		s.singletons, s.duplicates = splitSingletonsAndDuplicates(shared)
	} else {
		s.singletons = singletonsOnly(shared)
	}
}

// kmersOfContig returns the canonical k-mer values for one preprocessed
// contig, resetting the rolling window on every ambiguous symbol.
func kmersOfContig(seq []byte, k int) []uint64 {
	roller := NewKmerRoller(k)
	out := make([]uint64, 0, len(seq))
	for _, sym := range seq {
		if sym == symAmbiguous {
			roller.Reset()
			continue
		}
		roller.Insert(uint64(sym))
		if roller.Full() {
			out = append(out, roller.Value())
		}
	}
	return out
}

func singletonsOnly(sorted []uint64) []uint64 {
	out := make([]uint64, 0, len(sorted))
	i := 0
	for i < len(sorted) {
		j := i + 1
		for j < len(sorted) && sorted[j] == sorted[i] {
			j++
		}
		if j-i == 1 {
			out = append(out, sorted[i])
		}
		i = j
	}
	return out
}

func splitSingletonsAndDuplicates(sorted []uint64) (singles, dups []uint64) {
	singles = make([]uint64, 0, len(sorted))
	dups = make([]uint64, 0, len(sorted)/4)
	i := 0
	for i < len(sorted) {
		j := i + 1
		for j < len(sorted) && sorted[j] == sorted[i] {
			j++
		}
		if j-i == 1 {
			singles = append(singles, sorted[i])
		} else {
			dups = append(dups, sorted[i])
		}
		i = j
	}
	return singles, dups
}

// Splitters runs Pass 2 (greedy per-contig picking) for one contig against
// the selector's current singleton set, returning splitter values in
// left-to-right order together with their 0-based positions (index of the
// k-mer window's last symbol, i.e. where the window last filled).
func (s *SplitterSelector) Splitters(seq []byte) []SplitterHit {
	return pickSplitters(seq, s.opt.K, s.opt.SegmentSize, s.singletons)
}

// SplitterHit is one accepted splitter position within a contig.
type SplitterHit struct {
	Value    uint64
	Position int // index of the last symbol of the k-mer window
}

func pickSplitters(seq []byte, k, segmentSize int, singletons []uint64) []SplitterHit {
	roller := NewKmerRoller(k)
	currentLen := segmentSize // first eligible candidate is taken immediately
	var recent []SplitterHit
	var accepted []SplitterHit

	isSingleton := func(v uint64) bool {
		i := sort.Search(len(singletons), func(i int) bool { return singletons[i] >= v })
		return i < len(singletons) && singletons[i] == v
	}

	for pos, sym := range seq {
		if sym == symAmbiguous {
			roller.Reset()
			currentLen++
			continue
		}
		roller.Insert(uint64(sym))
		currentLen++
		if !roller.Full() {
			continue
		}
		v := roller.Value()
		if currentLen >= segmentSize && isSingleton(v) {
			accepted = append(accepted, SplitterHit{Value: v, Position: pos})
			currentLen = 0
			roller.Reset()
			recent = recent[:0]
			continue
		}
		if isSingleton(v) {
			recent = append(recent, SplitterHit{Value: v, Position: pos})
		}
	}

	if currentLen > 0 && len(recent) > 0 {
		accepted = append(accepted, recent[len(recent)-1])
	}
	return accepted
}

// FindNewSplitters implements the adaptive-mode recovery path: a contig
// that yielded zero splitters against the reference set is re-scanned in
// isolation, its own singletons computed, the reference singleton and
// duplicate sets subtracted out, and Pass 2 re-run against what remains.
func (s *SplitterSelector) FindNewSplitters(seq []byte) []SplitterHit {
	if len(seq) < s.opt.SegmentSize {
		return nil
	}
	local := kmersOfContig(seq, s.opt.K)
	if len(local) == 0 {
		return nil
	}
	sortUint64s(local)
	localSingles := singletonsOnly(local)

	fresh := localSingles[:0:0]
	for _, v := range localSingles {
		if containsSorted(s.singletons, v) || containsSorted(s.duplicates, v) {
			continue
		}
		fresh = append(fresh, v)
	}
	if len(fresh) == 0 {
		return nil
	}
	return pickSplitters(seq, s.opt.K, s.opt.SegmentSize, fresh)
}

func containsSorted(sorted []uint64, v uint64) bool {
	i := sort.Search(len(sorted), func(i int) bool { return sorted[i] >= v })
	return i < len(sorted) && sorted[i] == v
}

func workerCount(n int) int {
	if n <= 0 {
		return 1
	}
	return n
}
