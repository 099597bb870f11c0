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

// Package collection is the Collection metadata store: for every sample it
// remembers, in insertion order, every contig's ordered list of segment
// placements (which group a segment landed in, its index inside that
// group, whether it was stored reverse-complemented, and its raw length
// before encoding). This is the index Append and the reader CLI walk to
// reconstruct a contig's original sequence from segment-group parts.
//
// Two on-disk shapes are supported, named after the archive's own
// evolution: v1 serializes the whole collection as one varint-and-string
// blob ("collection-desc"); v2 splits it into a small "collection-main"
// index (sample and contig names, segment counts) plus one or more
// zstd-compressed "collection-details" batches (the actual segment
// descriptors, batched across samples so a reader touching one sample
// doesn't have to decompress the whole archive's detail stream).
package collection

import (
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"

	"github.com/shenwei356/pangc"
)

// Segment is one placement of a segment within a contig: which group it
// belongs to, its index inside that group's part list, whether the bytes
// stored there are the reverse complement of the contig's forward strand,
// and how many raw symbols it covers (for reconstructing exact lengths
// after delta decoding).
type Segment struct {
	GroupID   uint32
	InGroupID uint32
	IsRevComp bool
	RawLength uint32
}

// contigEntry is one contig's ordered segment list, kept alongside its
// name so sampleEntry.Contigs preserves registration order.
type contigEntry struct {
	Name     string
	Segments []Segment
}

type sampleEntry struct {
	Name    string
	Contigs []contigEntry
}

// Collection is the sample -> contig -> segment-list index. Zero value is
// not usable; call New.
type Collection struct {
	mu sync.Mutex

	samples    []sampleEntry
	sampleIdx  map[string]int
	contigIdx  map[[2]string]int // (sample,contig) -> index into samples[i].Contigs
	cmdLines   []CmdRecord
}

// CmdRecord is one logged invocation, mirroring the archive's running
// command-line history (`info` prints this back to the user).
type CmdRecord struct {
	Timestamp string
	CmdLine   string
}

// New returns an empty Collection.
func New() *Collection {
	return &Collection{
		sampleIdx: map[string]int{},
		contigIdx: map[[2]string]int{},
	}
}

// RegisterSampleContig records that sample/contig exists, creating the
// sample entry if this is its first contig. It returns false if the
// contig was already registered (duplicate ingestion), mirroring the
// reference engine's register_sample_contig dedup check.
func (c *Collection) RegisterSampleContig(sample, contig string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := [2]string{sample, contig}
	if _, ok := c.contigIdx[key]; ok {
		return false
	}

	si, ok := c.sampleIdx[sample]
	if !ok {
		si = len(c.samples)
		c.samples = append(c.samples, sampleEntry{Name: sample})
		c.sampleIdx[sample] = si
	}
	c.samples[si].Contigs = append(c.samples[si].Contigs, contigEntry{Name: contig})
	c.contigIdx[key] = len(c.samples[si].Contigs) - 1
	return true
}

// AddSegment appends one segment placement to the end of sample/contig's
// segment list. The contig must already be registered.
func (c *Collection) AddSegment(sample, contig string, seg Segment) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	si, ok := c.sampleIdx[sample]
	if !ok {
		return fmt.Errorf("collection: unknown sample %q", sample)
	}
	ci, ok := c.contigIdx[[2]string{sample, contig}]
	if !ok {
		return fmt.Errorf("collection: unknown contig %q in sample %q", contig, sample)
	}
	c.samples[si].Contigs[ci].Segments = append(c.samples[si].Contigs[ci].Segments, seg)
	return nil
}

// SetSegment places seg at segPartNo within sample/contig's segment list,
// growing the list as needed. The compression pipeline's reproducibility
// mode resolves segments out of their original contig order (registration
// is sorted by group, not by segment position), so the sink must place
// each one at its recorded position rather than trust append order.
func (c *Collection) SetSegment(sample, contig string, segPartNo int, seg Segment) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	si, ok := c.sampleIdx[sample]
	if !ok {
		return fmt.Errorf("collection: unknown sample %q", sample)
	}
	ci, ok := c.contigIdx[[2]string{sample, contig}]
	if !ok {
		return fmt.Errorf("collection: unknown contig %q in sample %q", contig, sample)
	}
	segs := c.samples[si].Contigs[ci].Segments
	if segPartNo >= len(segs) {
		grown := make([]Segment, segPartNo+1)
		copy(grown, segs)
		segs = grown
	}
	segs[segPartNo] = seg
	c.samples[si].Contigs[ci].Segments = segs
	return nil
}

// AddCmdLine appends one entry to the recorded command-line history.
func (c *Collection) AddCmdLine(timestamp, cmdLine string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cmdLines = append(c.cmdLines, CmdRecord{Timestamp: timestamp, CmdLine: cmdLine})
}

// CmdLines returns the recorded command-line history in append order.
func (c *Collection) CmdLines() []CmdRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]CmdRecord(nil), c.cmdLines...)
}

// Samples returns every sample name in registration order.
func (c *Collection) Samples() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.samples))
	for i, s := range c.samples {
		out[i] = s.Name
	}
	return out
}

// ContigsInSample returns a sample's contig names in registration order,
// or ok=false if the sample is unknown.
func (c *Collection) ContigsInSample(sample string) (names []string, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	si, found := c.sampleIdx[sample]
	if !found {
		return nil, false
	}
	names = make([]string, len(c.samples[si].Contigs))
	for i, cg := range c.samples[si].Contigs {
		names[i] = cg.Name
	}
	return names, true
}

// ContigSegments returns the ordered segment list for sample/contig.
func (c *Collection) ContigSegments(sample, contig string) (segs []Segment, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ci, found := c.contigIdx[[2]string{sample, contig}]
	if !found {
		return nil, false
	}
	si := c.sampleIdx[sample]
	segs = append([]Segment(nil), c.samples[si].Contigs[ci].Segments...)
	return segs, true
}

// NoSamples returns the number of registered samples.
func (c *Collection) NoSamples() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.samples)
}

// zstdMainLevel/zstdDetailLevel mirror the conventional zstd CLI levels
// named in the stream table: a mid compression level for the v2 main
// index, maximum for each v2 details batch and for the v1 single-blob
// descriptor.
const (
	detailsBatchSize = 1 // samples per collection-details batch, v2 default
	zstdMainLevel    = zstd.SpeedBetterCompression
	zstdDetailLevel  = zstd.SpeedBestCompression
)

// appendString writes a NUL-terminated string the way the reference
// engine's append(vector<uint8_t>&, const string&) does.
func appendString(buf []byte, s string) []byte {
	buf = append(buf, s...)
	return append(buf, 0)
}

func readString(p []byte) (string, []byte, error) {
	for i, b := range p {
		if b == 0 {
			return string(p[:i]), p[i+1:], nil
		}
	}
	return "", nil, fmt.Errorf("collection: unterminated string")
}

func appendSegment(buf []byte, s Segment) []byte {
	buf = pangc.AppendVarint(buf, uint64(s.GroupID))
	buf = pangc.AppendVarint(buf, uint64(s.InGroupID))
	var rc byte
	if s.IsRevComp {
		rc = 1
	}
	buf = append(buf, rc)
	buf = pangc.AppendVarint(buf, uint64(s.RawLength))
	return buf
}

func readSegment(p []byte) (Segment, []byte, error) {
	groupID, n, err := pangc.Varint(p)
	if err != nil {
		return Segment{}, nil, err
	}
	p = p[n:]
	inGroupID, n, err := pangc.Varint(p)
	if err != nil {
		return Segment{}, nil, err
	}
	p = p[n:]
	if len(p) < 1 {
		return Segment{}, nil, pangc.ErrVarintTruncated
	}
	rc := p[0] != 0
	p = p[1:]
	rawLen, n, err := pangc.Varint(p)
	if err != nil {
		return Segment{}, nil, err
	}
	p = p[n:]
	return Segment{
		GroupID:   uint32(groupID),
		InGroupID: uint32(inGroupID),
		IsRevComp: rc,
		RawLength: uint32(rawLen),
	}, p, nil
}

// buildV1Raw encodes the entire collection as an uncompressed blob: sample
// count, then per sample its name and contig count, then per contig its
// name, segment count and segments. storeDateTime controls whether the
// command-line history carries real timestamps or is omitted, mirroring
// the reference engine's store_date_time flag (tests want deterministic
// output and pass false).
func (c *Collection) buildV1Raw(storeDateTime bool) []byte {
	c.mu.Lock()
	defer c.mu.Unlock()

	var buf []byte
	buf = pangc.AppendVarint(buf, uint64(len(c.samples)))
	for _, s := range c.samples {
		buf = appendString(buf, s.Name)
		buf = pangc.AppendVarint(buf, uint64(len(s.Contigs)))
		for _, cg := range s.Contigs {
			buf = appendString(buf, cg.Name)
			buf = pangc.AppendVarint(buf, uint64(len(cg.Segments)))
			for _, seg := range cg.Segments {
				buf = appendSegment(buf, seg)
			}
		}
	}

	buf = pangc.AppendVarint(buf, uint64(len(c.cmdLines)))
	for _, cl := range c.cmdLines {
		ts := cl.Timestamp
		if !storeDateTime {
			ts = ""
		}
		buf = appendString(buf, ts)
		buf = appendString(buf, cl.CmdLine)
	}
	return buf
}

// SerializeV1 encodes the collection and zstd-compresses it (level 19,
// matching the legacy collection-desc stream).
func (c *Collection) SerializeV1(storeDateTime bool) []byte {
	buf := c.buildV1Raw(storeDateTime)
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstdDetailLevel))
	if err != nil {
		return buf
	}
	defer enc.Close()
	return enc.EncodeAll(buf, nil)
}

// SerializeV1Gzip encodes the collection the same way as SerializeV1 but
// gzip-compresses it instead, for the CLI's --legacy-gzip escape hatch.
func (c *Collection) SerializeV1Gzip(storeDateTime bool) ([]byte, error) {
	return gzipEncodeAll(c.buildV1Raw(storeDateTime))
}

// DeserializeV1 returns a new Collection decoded from a
// SerializeV1/SerializeV1Gzip blob, sniffing the codec from its magic
// bytes so callers never need to remember which one produced it.
func DeserializeV1(blob []byte) (*Collection, error) {
	var data []byte
	var err error
	if isGzipMagic(blob) {
		data, err = gzipDecodeAll(blob)
		if err != nil {
			return nil, fmt.Errorf("collection: v1 gzip decode: %w", err)
		}
	} else {
		dec, derr := zstd.NewReader(nil)
		if derr != nil {
			return nil, fmt.Errorf("collection: zstd decoder: %w", derr)
		}
		defer dec.Close()
		data, err = dec.DecodeAll(blob, nil)
		if err != nil {
			return nil, fmt.Errorf("collection: v1 zstd decode: %w", err)
		}
	}

	c := New()
	p := data

	nSamples, n, err := pangc.Varint(p)
	if err != nil {
		return nil, fmt.Errorf("collection: v1 sample count: %w", err)
	}
	p = p[n:]

	for i := uint64(0); i < nSamples; i++ {
		name, rest, err := readString(p)
		if err != nil {
			return nil, fmt.Errorf("collection: v1 sample name: %w", err)
		}
		p = rest

		nContigs, n, err := pangc.Varint(p)
		if err != nil {
			return nil, fmt.Errorf("collection: v1 contig count: %w", err)
		}
		p = p[n:]

		si := len(c.samples)
		c.samples = append(c.samples, sampleEntry{Name: name})
		c.sampleIdx[name] = si

		for j := uint64(0); j < nContigs; j++ {
			cname, rest, err := readString(p)
			if err != nil {
				return nil, fmt.Errorf("collection: v1 contig name: %w", err)
			}
			p = rest

			nSegs, n, err := pangc.Varint(p)
			if err != nil {
				return nil, fmt.Errorf("collection: v1 segment count: %w", err)
			}
			p = p[n:]

			entry := contigEntry{Name: cname}
			for k := uint64(0); k < nSegs; k++ {
				var seg Segment
				seg, p, err = readSegment(p)
				if err != nil {
					return nil, fmt.Errorf("collection: v1 segment: %w", err)
				}
				entry.Segments = append(entry.Segments, seg)
			}
			c.samples[si].Contigs = append(c.samples[si].Contigs, entry)
			c.contigIdx[[2]string{name, cname}] = len(c.samples[si].Contigs) - 1
		}
	}

	nCmds, n, err := pangc.Varint(p)
	if err != nil {
		return nil, fmt.Errorf("collection: v1 cmd count: %w", err)
	}
	p = p[n:]
	for i := uint64(0); i < nCmds; i++ {
		ts, rest, err := readString(p)
		if err != nil {
			return nil, err
		}
		p = rest
		cl, rest, err := readString(p)
		if err != nil {
			return nil, err
		}
		p = rest
		c.cmdLines = append(c.cmdLines, CmdRecord{Timestamp: ts, CmdLine: cl})
	}

	return c, nil
}

// SerializeV2 splits the collection into a small zstd-compressed "main"
// index (sample and contig names plus per-contig segment counts — a
// reader decompresses only this to answer get_samples_list/
// get_contig_list without touching segment data) and one or more
// zstd-compressed "details" batches (the actual segment descriptors,
// batchSize samples per batch, compressed one level higher than main).
// Matching the reference engine's batching, a reader can decompress
// exactly the batch holding the sample it cares about instead of the
// whole collection.
func (c *Collection) SerializeV2(storeDateTime bool, batchSize int) (main []byte, details [][]byte, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if batchSize <= 0 {
		batchSize = detailsBatchSize
	}

	var raw []byte
	raw = pangc.AppendVarint(raw, uint64(len(c.samples)))
	raw = pangc.AppendVarint(raw, uint64(batchSize))
	for _, s := range c.samples {
		raw = appendString(raw, s.Name)
		raw = pangc.AppendVarint(raw, uint64(len(s.Contigs)))
		for _, cg := range s.Contigs {
			raw = appendString(raw, cg.Name)
			raw = pangc.AppendVarint(raw, uint64(len(cg.Segments)))
		}
	}

	raw = pangc.AppendVarint(raw, uint64(len(c.cmdLines)))
	for _, cl := range c.cmdLines {
		ts := cl.Timestamp
		if !storeDateTime {
			ts = ""
		}
		raw = appendString(raw, ts)
		raw = appendString(raw, cl.CmdLine)
	}

	mainEnc, encErr := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstdMainLevel))
	if encErr != nil {
		return nil, nil, fmt.Errorf("collection: zstd encoder: %w", encErr)
	}
	defer mainEnc.Close()
	main = mainEnc.EncodeAll(raw, nil)

	enc, encErr := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstdDetailLevel))
	if encErr != nil {
		return nil, nil, fmt.Errorf("collection: zstd encoder: %w", encErr)
	}
	defer enc.Close()

	for start := 0; start < len(c.samples); start += batchSize {
		end := start + batchSize
		if end > len(c.samples) {
			end = len(c.samples)
		}
		var batch []byte
		for _, s := range c.samples[start:end] {
			for _, cg := range s.Contigs {
				for _, seg := range cg.Segments {
					batch = appendSegment(batch, seg)
				}
			}
		}
		details = append(details, enc.EncodeAll(batch, nil))
	}
	return main, details, nil
}

// DeserializeV2Main decodes a SerializeV2 "main" blob into a Collection
// whose contigs carry their segment counts but no segment bodies yet —
// callers call DeserializeV2Details per batch to fill them in. It also
// returns the batch size the blob was written with.
func DeserializeV2Main(blob []byte) (c *Collection, segCounts [][]int, batchSize int, err error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("collection: zstd decoder: %w", err)
	}
	defer dec.Close()
	data, err := dec.DecodeAll(blob, nil)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("collection: v2 main zstd decode: %w", err)
	}

	c = New()
	p := data

	nSamples, n, err := pangc.Varint(p)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("collection: v2 sample count: %w", err)
	}
	p = p[n:]
	bs, n, err := pangc.Varint(p)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("collection: v2 batch size: %w", err)
	}
	p = p[n:]
	batchSize = int(bs)

	segCounts = make([][]int, nSamples)
	for i := uint64(0); i < nSamples; i++ {
		name, rest, err := readString(p)
		if err != nil {
			return nil, nil, 0, fmt.Errorf("collection: v2 sample name: %w", err)
		}
		p = rest

		nContigs, n, err := pangc.Varint(p)
		if err != nil {
			return nil, nil, 0, fmt.Errorf("collection: v2 contig count: %w", err)
		}
		p = p[n:]

		si := len(c.samples)
		c.samples = append(c.samples, sampleEntry{Name: name})
		c.sampleIdx[name] = si

		counts := make([]int, nContigs)
		for j := uint64(0); j < nContigs; j++ {
			cname, rest, err := readString(p)
			if err != nil {
				return nil, nil, 0, fmt.Errorf("collection: v2 contig name: %w", err)
			}
			p = rest
			nSegs, n, err := pangc.Varint(p)
			if err != nil {
				return nil, nil, 0, fmt.Errorf("collection: v2 segment count: %w", err)
			}
			p = p[n:]
			counts[j] = int(nSegs)
			c.samples[si].Contigs = append(c.samples[si].Contigs, contigEntry{Name: cname})
			c.contigIdx[[2]string{name, cname}] = len(c.samples[si].Contigs) - 1
		}
		segCounts[int(i)] = counts
	}

	nCmds, n, err := pangc.Varint(p)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("collection: v2 cmd count: %w", err)
	}
	p = p[n:]
	for i := uint64(0); i < nCmds; i++ {
		ts, rest, err := readString(p)
		if err != nil {
			return nil, nil, 0, err
		}
		p = rest
		cl, rest, err := readString(p)
		if err != nil {
			return nil, nil, 0, err
		}
		p = rest
		c.cmdLines = append(c.cmdLines, CmdRecord{Timestamp: ts, CmdLine: cl})
	}

	return c, segCounts, batchSize, nil
}

// DeserializeV2Details decompresses one details batch and fills in the
// segment lists for the sample range [batchIdx*batchSize,
// min(+batchSize, nSamples)) that SerializeV2 produced it from. c and
// segCounts must come from DeserializeV2Main on the matching main blob.
func DeserializeV2Details(c *Collection, segCounts [][]int, batchSize, batchIdx int, zstdData []byte) error {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return fmt.Errorf("collection: zstd decoder: %w", err)
	}
	defer dec.Close()

	raw, err := dec.DecodeAll(zstdData, nil)
	if err != nil {
		return fmt.Errorf("collection: zstd decode: %w", err)
	}

	start := batchIdx * batchSize
	end := start + batchSize
	if end > len(c.samples) {
		end = len(c.samples)
	}
	if start >= len(c.samples) {
		return fmt.Errorf("collection: batch %d out of range", batchIdx)
	}

	p := raw
	for si := start; si < end; si++ {
		for ci := range c.samples[si].Contigs {
			n := segCounts[si][ci]
			segs := make([]Segment, 0, n)
			for k := 0; k < n; k++ {
				var seg Segment
				seg, p, err = readSegment(p)
				if err != nil {
					return fmt.Errorf("collection: v2 details segment: %w", err)
				}
				segs = append(segs, seg)
			}
			c.samples[si].Contigs[ci].Segments = segs
		}
	}
	return nil
}
