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

// symAmbiguous marks a preprocessed contig byte that is not one of A/C/G/T,
// folded case-insensitively. The rolling k-mer is reset whenever one is
// seen but the symbol itself is retained in the preprocessed contig.
const symAmbiguous = 0xFF

// symTable maps every byte value to {0,1,2,3} for A/C/G/T (any case) or
// symAmbiguous otherwise. Built once; it is the only base classifier in the
// package and is used per byte while streaming a contig base by base.
var symTable = func() [256]byte {
	var t [256]byte
	for i := range t {
		t[i] = symAmbiguous
	}
	t['A'], t['a'] = 0, 0
	t['C'], t['c'] = 1, 1
	t['G'], t['g'] = 2, 2
	t['T'], t['t'] = 3, 3
	return t
}()

// PreprocessContig drops bytes with ASCII value <= 64 (line breaks,
// whitespace, and other control/header noise that can leak in from FASTA
// parsing) in place, and returns the remaining ASCII bytes unchanged;
// ContigSymbols maps them to symbols. The returned slice aliases raw's
// backing array.
func PreprocessContig(raw []byte) []byte {
	out := raw[:0]
	for _, c := range raw {
		if c > 64 {
			out = append(out, c)
		}
	}
	return out
}

// ContigSymbols maps a preprocessed (post-PreprocessContig) byte slice to
// its {0,1,2,3,symAmbiguous} symbol stream, writing into dst (which may
// alias src).
func ContigSymbols(dst, src []byte) []byte {
	if cap(dst) < len(src) {
		dst = make([]byte, len(src))
	}
	dst = dst[:len(src)]
	for i, c := range src {
		dst[i] = symTable[c]
	}
	return dst
}
