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

package cmd

import (
	"fmt"

	"github.com/shenwei356/breader"
	"github.com/shenwei356/util/pathutil"

	"github.com/shenwei356/pangc/genomeio"
)

const extArchive = ".pangc"

// checkFiles verifies every input path exists (stdin "-" is always
// accepted without a stat) before a create/append run commits to reading
// any of them, so a typo surfaces immediately instead of mid-ingest.
func checkFiles(files ...string) {
	for _, file := range files {
		if isStdin(file) {
			continue
		}
		ok, err := pathutil.Exists(file)
		if err != nil {
			checkError(fmt.Errorf("fail to read file %s: %s", file, err))
		}
		if !ok {
			checkError(fmt.Errorf("file does not exist: %s", file))
		}
	}
}

// warnDuplicateFingerprints scans every sample/contig being ingested this
// run for ntHash content collisions (genomeio.Contig.Fingerprint) and logs
// one warning per repeat. It is only a hint: a fingerprint match means the
// two contigs are very likely byte-identical, not certainly so, so nothing
// is skipped on its account the way a duplicate sample/contig name is.
func warnDuplicateFingerprints(samples []genomeio.Sample) {
	seen := map[uint64]string{}
	for _, s := range samples {
		for _, c := range s.Contigs {
			if c.Fingerprint == 0 {
				continue // too short to fingerprint
			}
			key := s.Name + "/" + c.Name
			if prior, ok := seen[c.Fingerprint]; ok {
				log.Warningf("%s has the same content fingerprint as %s, likely a duplicate", key, prior)
				continue
			}
			seen[c.Fingerprint] = key
		}
	}
}

// readInfileList reads one file path per line via breader, skipping blank
// lines, the same batch-list idiom unikmer's own commands use for
// --infile-list.
func readInfileList(file string) ([]string, error) {
	reader, err := breader.NewDefaultBufferedReader(file)
	if err != nil {
		return nil, fmt.Errorf("fail to read file list %s: %w", file, err)
	}

	var files []string
	for chunk := range reader.Ch {
		if chunk.Err != nil {
			return nil, chunk.Err
		}
		for _, data := range chunk.Data {
			line := data.(string)
			if line == "" {
				continue
			}
			files = append(files, line)
		}
	}
	return files, nil
}
