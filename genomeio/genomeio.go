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

// Package genomeio is the GenomeIO reference implementation: it turns a
// FASTA/FASTQ file on disk into the per-contig records the compression
// pipeline consumes, one sample per file (or, in concatenated-genomes
// mode, one sample per record).
package genomeio

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/shenwei356/bio/seqio/fastx"
	"github.com/will-rowe/nthash"
)

// Contig is one raw (unpreprocessed) record read from a genome file.
type Contig struct {
	Name        string
	Seq         []byte // raw ASCII bytes, not yet through ContigSymbols
	Fingerprint uint64 // cheap ntHash-based content signature, see Fingerprint
}

// Sample is every contig belonging to one input file (or one FASTA record,
// in concatenated-genomes mode).
type Sample struct {
	Name    string
	Contigs []Contig
}

// ReadFile opens path and reads every record into a Sample named after
// the file's base name with its extension(s) stripped, the same
// convention LexicMap's index builder uses for its genome IDs. Records
// shorter than minLen are skipped, mirroring the reference engine's
// length filter ahead of the rolling-kmer window.
func ReadFile(path string, minLen int) (Sample, error) {
	s := Sample{Name: sampleNameFromPath(path)}

	rdr, err := fastx.NewReader(nil, path, "")
	if err != nil {
		return s, fmt.Errorf("genomeio: open %s: %w", path, err)
	}
	defer rdr.Close()

	for {
		record, err := rdr.Read()
		if err != nil {
			if err == io.EOF {
				break
			}
			return s, fmt.Errorf("genomeio: read %s: %w", path, err)
		}
		if len(record.Seq.Seq) < minLen {
			continue
		}
		seq := append([]byte(nil), record.Seq.Seq...)
		s.Contigs = append(s.Contigs, Contig{
			Name:        string(record.Name),
			Seq:         seq,
			Fingerprint: Fingerprint(seq),
		})
	}
	return s, nil
}

// ReadFileConcatenated reads path the same way as ReadFile but returns one
// Sample per record instead of per file, for concatenated_genomes mode
// where every FASTA record is its own sample.
func ReadFileConcatenated(path string, minLen int) ([]Sample, error) {
	var out []Sample

	rdr, err := fastx.NewReader(nil, path, "")
	if err != nil {
		return nil, fmt.Errorf("genomeio: open %s: %w", path, err)
	}
	defer rdr.Close()

	for {
		record, err := rdr.Read()
		if err != nil {
			if err == io.EOF {
				break
			}
			return out, fmt.Errorf("genomeio: read %s: %w", path, err)
		}
		if len(record.Seq.Seq) < minLen {
			continue
		}
		seq := append([]byte(nil), record.Seq.Seq...)
		name := string(record.Name)
		out = append(out, Sample{
			Name:    name,
			Contigs: []Contig{{Name: name, Seq: seq, Fingerprint: Fingerprint(seq)}},
		})
	}
	return out, nil
}

// Fingerprint folds a contig's forward-strand canonical ntHash values down
// to a single uint64 (XOR across the rolling window), a cheap duplicate
// hint: create and append log a warning when two contigs of a run share a
// value, and still ingest both. It is never used for splitter selection
// itself — that always goes through the exact canonical KmerRoller
// encoding.
func Fingerprint(seq []byte) uint64 {
	const fingerprintK = 16
	if len(seq) < fingerprintK {
		return 0
	}
	hasher, err := nthash.NewHasher(&seq, uint(fingerprintK))
	if err != nil {
		return 0
	}
	var acc uint64
	for {
		h, ok := hasher.Next(true)
		if !ok {
			break
		}
		acc ^= h
	}
	return acc
}

func sampleNameFromPath(path string) string {
	base := filepath.Base(path)
	for _, ext := range []string{".gz", ".fa", ".fasta", ".fna", ".fq", ".fastq"} {
		base = strings.TrimSuffix(base, ext)
	}
	return base
}
