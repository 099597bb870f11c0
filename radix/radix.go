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

// Package radix provides the sort primitive the splitter selector needs to
// turn the unordered pile of candidate k-mers gathered by Pass 1 into a
// run-length-sweepable stream. It exists as its own package so callers
// depend on one narrow entry point instead of importing a general-purpose
// sort package directly throughout the core.
package radix

import "github.com/twotwotwo/sorts/sortutil"

// SortUint64 sorts v in place in ascending order. It is the stand-in for
// the external radix_sort_u64 primitive the segmentation engine's
// candidate-kmer sweep is specified against: a parallel, cache-friendly
// sort over a flat uint64 array is exactly what sortutil.Uint64s does for
// large slices (it falls back to a sequential sort below a size
// threshold).
func SortUint64(v []uint64) {
	sortutil.Uint64s(v)
}
