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

import "github.com/shenwei356/pangc/radix"

// Options collects every creation-time configuration value the
// segmentation-and-routing engine recognizes.
type Options struct {
	K               int    // k-mer length, <= 31
	SegmentSize     int    // target splitter spacing
	MinMatchLen     int    // delta-codec minimum match length
	PackCardinality int    // segments per delta batch
	NoRawGroups     uint32 // size of the reserved raw-group band

	ConcatenatedGenomes  bool // ignore sample names; each file is its own sample
	AdaptiveCompression  bool // enable new-splitter discovery pass
	ReproducibilityMode  bool // deterministic group assignment
	NoThreads            int
	ContigPartSize       int // overlapping-piece size for Pass 1 / worker handoff

	// RawBeatMargin is the "estimate beats raw by N" constant from
	// one-splitter extension. Kept configurable per the open design
	// question on that magic number; AGC's own source hard-codes 16.
	RawBeatMargin uint64
}

// DefaultOptions returns the configuration AGC itself defaults to.
func DefaultOptions() Options {
	return Options{
		K:               25,
		SegmentSize:     60000,
		MinMatchLen:     20,
		PackCardinality: 100,
		NoRawGroups:     64,
		NoThreads:       4,
		ContigPartSize:  1 << 20,
		RawBeatMargin:   16,
	}
}

func sortUint64s(v []uint64) {
	radix.SortUint64(v)
}
