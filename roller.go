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

// KmerRoller maintains a forward and reverse-complement 2-bit encoded
// window of up to 31 symbols, updated one base at a time. It is the
// building block every contig scan (splitter selection, segmentation)
// rolls forward over a preprocessed sequence.
//
// Both strands are updated incrementally, one integer symbol at a time, so
// a scan never re-touches bytes it already consumed.
type KmerRoller struct {
	k      int
	mask   uint64
	fwd    uint64
	rc     uint64
	filled int
	dir    bool // true: forward strand held the canonical minimum on the last insert
}

// NewKmerRoller returns a roller for k-mers of length k (1..31).
func NewKmerRoller(k int) *KmerRoller {
	if k <= 0 || k > 31 {
		panic(ErrKOverflow)
	}
	return &KmerRoller{
		k:    k,
		mask: (uint64(1) << uint(2*k)) - 1,
	}
}

// Reset clears the roller, as when an ambiguous symbol is encountered.
func (r *KmerRoller) Reset() {
	r.fwd = 0
	r.rc = 0
	r.filled = 0
}

// Insert shifts in one 2-bit symbol (0=A, 1=C, 2=G, 3=T). It panics if base
// is outside 0..3 — ambiguous bases must be routed to Reset by the caller,
// never inserted.
func (r *KmerRoller) Insert(base uint64) {
	if base > 3 {
		panic(ErrIllegalBase)
	}
	r.fwd = ((r.fwd << 2) | base) & r.mask
	r.rc = (r.rc >> 2) | ((base ^ 3) << uint(2*(r.k-1)))
	if r.filled < r.k {
		r.filled++
	}
}

// Full reports whether k valid symbols have been inserted since the last
// Reset.
func (r *KmerRoller) Full() bool {
	return r.filled >= r.k
}

// Value returns the canonical (numerically smaller) of the forward and
// reverse-complement encodings. Calling Value also records, for
// DirOriented, which strand won.
func (r *KmerRoller) Value() uint64 {
	if r.fwd <= r.rc {
		r.dir = true
		return r.fwd
	}
	r.dir = false
	return r.rc
}

// DirOriented reports whether the forward strand held the canonical value
// as of the last call to Value. Ties are broken in favor of the forward
// strand.
func (r *KmerRoller) DirOriented() bool {
	return r.dir
}

// SwapDirRC flips the recorded orientation, used when a caller needs to
// present a k-mer's canonical value as though it had been read from the
// opposite strand (e.g. when re-orienting a segment for group storage).
func (r *KmerRoller) SwapDirRC() {
	r.dir = !r.dir
}

// K returns the roller's configured k-mer length.
func (r *KmerRoller) K() int {
	return r.k
}
