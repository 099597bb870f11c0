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

import "testing"

func TestVarintRoundTrip(t *testing.T) {
	buf := make([]byte, 5)
	cases := []uint64{
		0, 1, 126, 127, 128, 129,
		varintT0 - 1, varintT0, varintT0 + 1,
		varintT1 - 1, varintT1, varintT1 + 1,
		varintT2 - 1, varintT2, varintT2 + 1,
		varintT3 - 1, varintT3, varintT3 + 1,
		1 << 32, 4294967295,
	}
	for _, x := range cases {
		n := PutVarint(buf, x)
		y, n2, err := Varint(buf[:n])
		if err != nil {
			t.Fatalf("Varint(%d): %v", x, err)
		}
		if n2 != n {
			t.Errorf("value %d: wrote %d bytes, read %d", x, n, n2)
		}
		if y != x {
			t.Errorf("value %d round-tripped as %d", x, y)
		}
	}
}

func TestVarintTruncated(t *testing.T) {
	buf := make([]byte, 5)
	n := PutVarint(buf, varintT2+1000)
	for i := 1; i < n; i++ {
		if _, _, err := Varint(buf[:i]); err != ErrVarintTruncated {
			t.Errorf("expected truncation error at length %d, got %v", i, err)
		}
	}
}

func TestVarintMonotoneLength(t *testing.T) {
	buf := make([]byte, 5)
	prev := 0
	for _, x := range []uint64{0, varintT0, varintT1, varintT2, varintT3} {
		n := PutVarint(buf, x)
		if n < prev {
			t.Errorf("encoded length shrank at threshold %d", x)
		}
		prev = n
	}
}
