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

// Package archive is the StreamArchive reference implementation: a single
// container file holding many named append-only streams, each a sequence
// of length-and-checksum-prefixed parts, with a trailing directory for
// random part access. Content compression is each stream's own business
// (segstore zstd-encodes reference bytes before ever calling AppendPart);
// the container itself is agnostic to what a part holds.
package archive

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/cespare/xxhash/v2"

	"github.com/shenwei356/pangc"
)

const magic = "PANGCARC"
const formatVersion = 1

// partEntry locates one part of a stream within the container file.
type partEntry struct {
	offset uint64
	length uint64
}

type streamEntry struct {
	name  string
	parts []partEntry
}

// Store is a writable archive: streams are appended to an open file and
// the directory is only flushed to disk on Close.
type Store struct {
	f   *os.File
	w   *bufio.Writer
	off uint64

	order   []string
	streams map[string]*streamEntry
}

// Create opens path for writing a fresh archive, truncating any existing
// file, and writes the container header.
func Create(path string) (*Store, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("archive: create %s: %w", path, err)
	}
	s := &Store{f: f, w: bufio.NewWriterSize(f, os.Getpagesize()), streams: map[string]*streamEntry{}}
	if err := s.writeHeader(); err != nil {
		f.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) writeHeader() error {
	if _, err := s.w.WriteString(magic); err != nil {
		return err
	}
	s.off += uint64(len(magic))
	var v [4]byte
	binary.BigEndian.PutUint32(v[:], formatVersion)
	if _, err := s.w.Write(v[:]); err != nil {
		return err
	}
	s.off += 4
	return nil
}

func (s *Store) entry(name string) *streamEntry {
	e, ok := s.streams[name]
	if !ok {
		e = &streamEntry{name: name}
		s.streams[name] = e
		s.order = append(s.order, name)
	}
	return e
}

// PutStream implements pangc.StreamWriter: writes data as the stream's
// single part. Calling it twice on the same name replaces nothing —
// every stream MetadataWriter touches is written exactly once.
func (s *Store) PutStream(name string, data []byte) error {
	return s.AppendPart(name, data)
}

// AppendPart implements pangc.StreamWriter: appends one
// length+checksum-prefixed part to the named stream.
func (s *Store) AppendPart(name string, data []byte) error {
	e := s.entry(name)

	var hdr [16]byte
	binary.BigEndian.PutUint64(hdr[0:8], uint64(len(data)))
	binary.BigEndian.PutUint64(hdr[8:16], xxhash.Sum64(data))
	if _, err := s.w.Write(hdr[:]); err != nil {
		return err
	}
	if _, err := s.w.Write(data); err != nil {
		return err
	}

	e.parts = append(e.parts, partEntry{offset: s.off + 16, length: uint64(len(data))})
	s.off += 16 + uint64(len(data))
	return nil
}

// Close flushes the directory footer and closes the underlying file. The
// footer lists, per stream, every part's (offset, length); a fixed
// 16-byte trailer at EOF gives its own offset and length so a reader can
// seek straight to it.
func (s *Store) Close() error {
	footerStart := s.off
	var footer []byte
	footer = appendUvarint(footer, uint64(len(s.order)))
	for _, name := range s.order {
		e := s.streams[name]
		footer = appendUvarint(footer, uint64(len(name)))
		footer = append(footer, name...)
		footer = appendUvarint(footer, uint64(len(e.parts)))
		for _, p := range e.parts {
			footer = appendUvarint(footer, p.offset)
			footer = appendUvarint(footer, p.length)
		}
	}
	if _, err := s.w.Write(footer); err != nil {
		return err
	}

	var trailer [16]byte
	binary.BigEndian.PutUint64(trailer[0:8], footerStart)
	binary.BigEndian.PutUint64(trailer[8:16], uint64(len(footer)))
	if _, err := s.w.Write(trailer[:]); err != nil {
		return err
	}

	if err := s.w.Flush(); err != nil {
		return err
	}
	return s.f.Close()
}

// StreamNames returns every stream name written so far, sorted by name;
// the first-write order is kept in the footer.
func (s *Store) StreamNames() []string {
	out := append([]string(nil), s.order...)
	sort.Strings(out) // deterministic for tests; actual archive order is in the footer
	return out
}

// Reader opens an existing archive for random-access reads, the shape
// Append (§4.7) needs to reconstruct SplitterIndex/SegmentMap/SegmentGroup
// state before resuming compression.
type Reader struct {
	f       *os.File
	streams map[string]*streamEntry
}

// Open reads path's trailer and footer and returns a Reader over it.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("archive: open %s: %w", path, err)
	}
	r := &Reader{f: f, streams: map[string]*streamEntry{}}
	if err := r.readFooter(); err != nil {
		f.Close()
		return nil, err
	}
	return r, nil
}

// StreamNames returns every stream name present in the archive, sorted.
func (r *Reader) StreamNames() []string {
	out := make([]string, 0, len(r.streams))
	for name := range r.streams {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (r *Reader) readFooter() error {
	fi, err := r.f.Stat()
	if err != nil {
		return err
	}
	if fi.Size() < int64(len(magic)+4+16) {
		return fmt.Errorf("archive: file too small to be valid: %w", pangc.ErrCorruptArchive)
	}

	var hdr [8]byte
	if _, err := r.f.ReadAt(hdr[:len(magic)], 0); err != nil {
		return err
	}
	if string(hdr[:len(magic)]) != magic {
		return fmt.Errorf("archive: bad magic: %w", pangc.ErrCorruptArchive)
	}

	var trailer [16]byte
	if _, err := r.f.ReadAt(trailer[:], fi.Size()-16); err != nil {
		return err
	}
	footerOffset := binary.BigEndian.Uint64(trailer[0:8])
	footerLength := binary.BigEndian.Uint64(trailer[8:16])

	footer := make([]byte, footerLength)
	if _, err := r.f.ReadAt(footer, int64(footerOffset)); err != nil {
		return err
	}

	nStreams, n, err := readUvarint(footer)
	if err != nil {
		return err
	}
	footer = footer[n:]
	for i := uint64(0); i < nStreams; i++ {
		nameLen, n, err := readUvarint(footer)
		if err != nil {
			return err
		}
		footer = footer[n:]
		name := string(footer[:nameLen])
		footer = footer[nameLen:]

		nParts, n, err := readUvarint(footer)
		if err != nil {
			return err
		}
		footer = footer[n:]

		e := &streamEntry{name: name}
		for p := uint64(0); p < nParts; p++ {
			off, n, err := readUvarint(footer)
			if err != nil {
				return err
			}
			footer = footer[n:]
			length, n, err := readUvarint(footer)
			if err != nil {
				return err
			}
			footer = footer[n:]
			e.parts = append(e.parts, partEntry{offset: off, length: length})
		}
		r.streams[name] = e
	}
	return nil
}

// StreamSize returns the on-disk byte total of every part of a stream,
// without reading or checksumming the data itself.
func (r *Reader) StreamSize(name string) uint64 {
	e, ok := r.streams[name]
	if !ok {
		return 0
	}
	var total uint64
	for _, p := range e.parts {
		total += p.length
	}
	return total
}

// PartCount returns how many parts a stream has, or 0 if it is absent.
func (r *Reader) PartCount(name string) int {
	e, ok := r.streams[name]
	if !ok {
		return 0
	}
	return len(e.parts)
}

// GetPart reads one part of a stream, verifying its checksum.
func (r *Reader) GetPart(name string, idx int) ([]byte, error) {
	e, ok := r.streams[name]
	if !ok || idx < 0 || idx >= len(e.parts) {
		return nil, fmt.Errorf("archive: no part %d of stream %q", idx, name)
	}
	p := e.parts[idx]

	var hdr [16]byte
	if _, err := r.f.ReadAt(hdr[:], int64(p.offset-16)); err != nil {
		return nil, err
	}
	length := binary.BigEndian.Uint64(hdr[0:8])
	wantSum := binary.BigEndian.Uint64(hdr[8:16])
	if length != p.length {
		return nil, fmt.Errorf("archive: directory/part length mismatch for %q[%d]", name, idx)
	}

	data := make([]byte, length)
	if _, err := r.f.ReadAt(data, int64(p.offset)); err != nil && err != io.EOF {
		return nil, err
	}
	if xxhash.Sum64(data) != wantSum {
		return nil, fmt.Errorf("archive: checksum mismatch for %q[%d]: %w", name, idx, pangc.ErrCorruptArchive)
	}
	return data, nil
}

// GetStream concatenates every part of a stream; callers that know a
// stream is single-part (params, splitters, ...) can just index [0].
func (r *Reader) GetStream(name string) ([]byte, error) {
	n := r.PartCount(name)
	if n == 0 {
		return nil, fmt.Errorf("archive: no stream %q", name)
	}
	var out []byte
	for i := 0; i < n; i++ {
		part, err := r.GetPart(name, i)
		if err != nil {
			return nil, err
		}
		out = append(out, part...)
	}
	return out, nil
}

// Close releases the underlying file.
func (r *Reader) Close() error {
	return r.f.Close()
}

func appendUvarint(buf []byte, v uint64) []byte {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], v)
	return append(buf, tmp[:n]...)
}

func readUvarint(buf []byte) (uint64, int, error) {
	v, n := binary.Uvarint(buf)
	if n <= 0 {
		return 0, 0, fmt.Errorf("archive: truncated footer")
	}
	return v, n, nil
}
