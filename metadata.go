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
	"encoding/binary"
	"fmt"
	"sort"
)

// StreamWriter is the narrow slice of StreamArchive's contract
// MetadataWriter needs: single-blob named streams, and append-only parts
// for the streams the collection/group codecs write incrementally.
// pangc/archive.Store implements this.
type StreamWriter interface {
	PutStream(name string, data []byte) error
	AppendPart(name string, data []byte) error
}

// MetadataWriter (C9) is the only thing allowed to touch the archive's
// bookkeeping streams: file_type_info, params, splitters,
// segment-splitters, and the producer/version block. Everything else
// (group reference/delta bytes, the collection descriptor) is written by
// its own codec through the same StreamWriter.
type MetadataWriter struct {
	w StreamWriter
}

// NewMetadataWriter returns a MetadataWriter over w.
func NewMetadataWriter(w StreamWriter) *MetadataWriter {
	return &MetadataWriter{w: w}
}

// WriteFileTypeInfo writes the producer/version key-value block as a
// sequence of varint-length-prefixed (key, value) string pairs.
func (m *MetadataWriter) WriteFileTypeInfo(kv map[string]string) error {
	keys := make([]string, 0, len(kv))
	for k := range kv {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf []byte
	buf = AppendVarint(buf, uint64(len(keys)))
	for _, k := range keys {
		buf = AppendVarint(buf, uint64(len(k)))
		buf = append(buf, k...)
		v := kv[k]
		buf = AppendVarint(buf, uint64(len(v)))
		buf = append(buf, v...)
	}
	return m.w.PutStream("file_type_info", buf)
}

// WriteParams writes the creation-time parameters every group codec and
// the append path need to reconstruct compatible behavior.
func (m *MetadataWriter) WriteParams(opt Options) error {
	var buf []byte
	buf = AppendVarint(buf, uint64(opt.K))
	buf = AppendVarint(buf, uint64(opt.MinMatchLen))
	buf = AppendVarint(buf, uint64(opt.PackCardinality))
	buf = AppendVarint(buf, uint64(opt.SegmentSize))
	return m.w.PutStream("params", buf)
}

// WriteSplitters writes the sorted ascending splitter values as fixed
// 8-byte little-endian integers, so append can mmap/reload the stream
// directly into SplitterIndex without a decode pass.
func (m *MetadataWriter) WriteSplitters(values []uint64) error {
	buf := make([]byte, 8*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint64(buf[i*8:], v)
	}
	return m.w.PutStream("splitters", buf)
}

// WriteSegmentSplitters writes every non-reserved SegmentMap entry as
// (k1, k2, group_id) with group_id varint-packed; entries must already be
// in a deterministic order (SegmentMap.Entries sorts by group).
func (m *MetadataWriter) WriteSegmentSplitters(entries []SegmentMapEntry) error {
	var buf []byte
	for _, e := range entries {
		var tmp [8]byte
		binary.LittleEndian.PutUint64(tmp[:], e.Fingerprint.K1)
		buf = append(buf, tmp[:]...)
		binary.LittleEndian.PutUint64(tmp[:], e.Fingerprint.K2)
		buf = append(buf, tmp[:]...)
		buf = AppendVarint(buf, uint64(e.Group))
	}
	return m.w.PutStream("segment-splitters", buf)
}

// StreamReader is the read-side counterpart of StreamWriter; pangc/archive.Reader
// implements it.
type StreamReader interface {
	GetStream(name string) ([]byte, error)
}

// MetadataReader decodes the bookkeeping streams MetadataWriter produces.
// info (report) and append (resume) are its only callers.
type MetadataReader struct {
	r StreamReader
}

// NewMetadataReader returns a MetadataReader over r.
func NewMetadataReader(r StreamReader) *MetadataReader {
	return &MetadataReader{r: r}
}

// ReadFileTypeInfo decodes the producer/version key-value block.
func (m *MetadataReader) ReadFileTypeInfo() (map[string]string, error) {
	buf, err := m.r.GetStream("file_type_info")
	if err != nil {
		return nil, err
	}
	n, consumed, err := Varint(buf)
	if err != nil {
		return nil, err
	}
	buf = buf[consumed:]
	kv := make(map[string]string, n)
	for i := uint64(0); i < n; i++ {
		k, rest, err := readLenPrefixed(buf)
		if err != nil {
			return nil, err
		}
		v, rest2, err := readLenPrefixed(rest)
		if err != nil {
			return nil, err
		}
		kv[k] = v
		buf = rest2
	}
	return kv, nil
}

// ReadParams decodes the creation-time parameters block into an Options
// whose non-persisted fields (thread count, mode flags, ...) are left at
// their zero value: only the fields WriteParams wrote round-trip.
func (m *MetadataReader) ReadParams() (Options, error) {
	buf, err := m.r.GetStream("params")
	if err != nil {
		return Options{}, err
	}
	var opt Options
	var v uint64
	var consumed int
	for _, dst := range []*int{&opt.K, &opt.MinMatchLen, &opt.PackCardinality, &opt.SegmentSize} {
		v, consumed, err = Varint(buf)
		if err != nil {
			return Options{}, err
		}
		buf = buf[consumed:]
		*dst = int(v)
	}
	return opt, nil
}

// ReadSplitters decodes the sorted splitter-value stream.
func (m *MetadataReader) ReadSplitters() ([]uint64, error) {
	buf, err := m.r.GetStream("splitters")
	if err != nil {
		return nil, err
	}
	if len(buf)%8 != 0 {
		return nil, fmt.Errorf("pangc: malformed splitters stream (%d bytes)", len(buf))
	}
	out := make([]uint64, len(buf)/8)
	for i := range out {
		out[i] = binary.LittleEndian.Uint64(buf[i*8:])
	}
	return out, nil
}

// ReadSegmentSplitters decodes the SegmentMap entry stream.
func (m *MetadataReader) ReadSegmentSplitters() ([]SegmentMapEntry, error) {
	buf, err := m.r.GetStream("segment-splitters")
	if err != nil {
		return nil, err
	}
	var out []SegmentMapEntry
	for len(buf) > 0 {
		if len(buf) < 16 {
			return nil, fmt.Errorf("pangc: truncated segment-splitters entry")
		}
		k1 := binary.LittleEndian.Uint64(buf[0:8])
		k2 := binary.LittleEndian.Uint64(buf[8:16])
		buf = buf[16:]
		group, consumed, err := Varint(buf)
		if err != nil {
			return nil, err
		}
		buf = buf[consumed:]
		out = append(out, SegmentMapEntry{Fingerprint: Fingerprint{K1: k1, K2: k2}, Group: uint32(group)})
	}
	return out, nil
}

func readLenPrefixed(buf []byte) (string, []byte, error) {
	n, consumed, err := Varint(buf)
	if err != nil {
		return "", nil, err
	}
	buf = buf[consumed:]
	if uint64(len(buf)) < n {
		return "", nil, fmt.Errorf("pangc: truncated length-prefixed string")
	}
	return string(buf[:n]), buf[n:], nil
}
