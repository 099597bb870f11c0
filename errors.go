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

import "errors"

// ErrOutOfMemory names an allocation failure. No function in this package
// returns it: SplitterIndex grows through Go's built-in maps and does not
// report allocation failure as an error value.
var ErrOutOfMemory = errors.New("pangc: out of memory")

// ErrKOverflow means a k-mer length outside 1..31 was requested.
var ErrKOverflow = errors.New("pangc: k-mer length must be in 1..31")

// ErrIllegalBase means a symbol outside 0..3 was passed to KmerRoller.Insert.
var ErrIllegalBase = errors.New("pangc: illegal base")

// ErrDuplicateSampleContig means (sample, contig) was already registered.
var ErrDuplicateSampleContig = errors.New("pangc: duplicate sample/contig")

// ErrInputUnreadable means a genome file could not be opened.
var ErrInputUnreadable = errors.New("pangc: input unreadable")

// ErrVarintTruncated means a varint-encoded value ran off the end of a buffer.
var ErrVarintTruncated = errors.New("pangc: truncated varint")

// ErrClosedPipeline names work pushed to a pipeline that has finished.
// Pipeline has no Close method and does not return it.
var ErrClosedPipeline = errors.New("pangc: pipeline already closed")

// ErrKMismatch means two k-mer values being compared or combined were
// encoded with different k.
var ErrKMismatch = errors.New("pangc: k-mer length mismatch")

// ErrCorruptArchive means a StreamArchive failed a structural or checksum
// check while being opened or read.
var ErrCorruptArchive = errors.New("pangc: corrupt archive")

// ErrArchiveIO wraps a lower-level I/O failure encountered while reading or
// writing an archive file, at the package boundary where callers should see
// a stable sentinel instead of a raw os/bufio error type.
var ErrArchiveIO = errors.New("pangc: archive I/O error")
