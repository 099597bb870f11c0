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

// Varint is a 5-level prefix code for group ids and other small counts
// written to the metadata streams. The number of leading one-bits of the
// first byte (zero to four) selects how many extra bytes follow:
//
//	level 0: 1 byte,  value < 2^7                 (0xxxxxxx)
//	level 1: 2 bytes, value < 2^7+2^14            (10xxxxxx + 1 byte)
//	level 2: 3 bytes, value < +2^21               (110xxxxx + 2 bytes)
//	level 3: 4 bytes, value < +2^28               (1110xxxx + 3 bytes)
//	level 4: 5 bytes, escape, full uint32 payload (11110000 + 4 bytes)
//
// Values never exceed 32 bits (group ids and stream counts in this archive
// fit comfortably below that), so the escape level carries a plain 4-byte
// big-endian tail instead of chaining further levels.
const (
	varintT0 = 1 << 7
	varintT1 = varintT0 + 1<<14
	varintT2 = varintT1 + 1<<21
	varintT3 = varintT2 + 1<<28
)

// PutVarint encodes x into buf (which must have room for up to 5 bytes) and
// returns the number of bytes written.
func PutVarint(buf []byte, x uint64) int {
	switch {
	case x < varintT0:
		buf[0] = byte(x)
		return 1
	case x < varintT1:
		x -= varintT0
		buf[0] = 0x80 | byte(x>>8)
		buf[1] = byte(x)
		return 2
	case x < varintT2:
		x -= varintT1
		buf[0] = 0xC0 | byte(x>>16)
		buf[1] = byte(x >> 8)
		buf[2] = byte(x)
		return 3
	case x < varintT3:
		x -= varintT2
		buf[0] = 0xE0 | byte(x>>24)
		buf[1] = byte(x >> 16)
		buf[2] = byte(x >> 8)
		buf[3] = byte(x)
		return 4
	default:
		x -= varintT3
		buf[0] = 0xF0
		buf[1] = byte(x >> 24)
		buf[2] = byte(x >> 16)
		buf[3] = byte(x >> 8)
		buf[4] = byte(x)
		return 5
	}
}

// AppendVarint appends the varint encoding of x to buf and returns the
// extended slice.
func AppendVarint(buf []byte, x uint64) []byte {
	var tmp [5]byte
	n := PutVarint(tmp[:], x)
	return append(buf, tmp[:n]...)
}

// Varint decodes one varint from the head of buf, returning the value and
// the number of bytes consumed. It returns ErrVarintTruncated if buf is
// shorter than the length implied by its leading byte.
func Varint(buf []byte) (uint64, int, error) {
	if len(buf) < 1 {
		return 0, 0, ErrVarintTruncated
	}
	lead := buf[0]
	switch {
	case lead&0x80 == 0:
		return uint64(lead), 1, nil
	case lead&0xC0 == 0x80:
		if len(buf) < 2 {
			return 0, 0, ErrVarintTruncated
		}
		x := uint64(lead&0x3F)<<8 | uint64(buf[1])
		return x + varintT0, 2, nil
	case lead&0xE0 == 0xC0:
		if len(buf) < 3 {
			return 0, 0, ErrVarintTruncated
		}
		x := uint64(lead&0x1F)<<16 | uint64(buf[1])<<8 | uint64(buf[2])
		return x + varintT1, 3, nil
	case lead&0xF0 == 0xE0:
		if len(buf) < 4 {
			return 0, 0, ErrVarintTruncated
		}
		x := uint64(lead&0x0F)<<24 | uint64(buf[1])<<16 | uint64(buf[2])<<8 | uint64(buf[3])
		return x + varintT2, 4, nil
	default:
		if len(buf) < 5 {
			return 0, 0, ErrVarintTruncated
		}
		x := uint64(buf[1])<<24 | uint64(buf[2])<<16 | uint64(buf[3])<<8 | uint64(buf[4])
		return x + varintT3, 5, nil
	}
}
