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
	"os"
	"regexp"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/shenwei356/pangc"
	"github.com/shenwei356/pangc/archive"
	"github.com/shenwei356/pangc/genomeio"
	"github.com/shenwei356/pangc/segstore"
)

var appendCmd = &cobra.Command{
	Use:   "append",
	Short: "add more genome assemblies to an existing archive",
	Long: `append reconstructs the splitter index, segment map and every
segment group's reference/delta state from an existing archive, routes a
new set of genomes through the same pipeline, and writes the result to a
fresh archive (the source file, once the new one is complete).

The k-mer length, minimum match length, segment size and raw-group band
size are fixed by the archive being appended to and cannot be overridden.
Adaptive-compression's new-splitter discovery is disabled during append:
the per-reference singleton/duplicate k-mer sets it needs are a
construction-time artifact the archive format does not persist.
`,
	Run: func(cmd *cobra.Command, args []string) {
		runAppend(cmd, args)
	},
}

func init() {
	RootCmd.AddCommand(appendCmd)

	appendCmd.Flags().String("infile-list", "", "file of input file paths, one per line, instead of positional args")
	appendCmd.Flags().Int("min-len", 200, "skip contigs shorter than this many bases")
	appendCmd.Flags().Bool("concatenated-genomes", false, "treat every FASTA record as its own sample")
	appendCmd.Flags().Bool("reproducibility-mode", false, "deterministic group assignment regardless of thread count")
	appendCmd.Flags().Bool("v1", false, "write the legacy single-blob collection descriptor instead of v2")
	appendCmd.Flags().Bool("legacy-gzip", false, "gzip-compress the v1 collection descriptor instead of zstd")
	appendCmd.Flags().Int("details-batch-size", 1, "samples per collection-details batch (v2 only)")
}

var groupStreamPattern = regexp.MustCompile(`^seg-(\d+)-(ref|delta)$`)

func runAppend(cmd *cobra.Command, args []string) {
	if len(args) < 1 {
		checkError(fmt.Errorf("append: expects an archive path followed by new input files"))
	}
	archivePath := args[0]
	checkFiles(archivePath)

	cfg, err := loadDefaultsConfig()
	checkError(errors.Wrap(err, "loading ~/.pangc/config.toml"))
	applyConfigDefaults(cmd, cfg)

	infileList := getFlagString(cmd, "infile-list")
	var files []string
	if infileList != "" {
		var err error
		files, err = readInfileList(infileList)
		checkError(err)
	} else {
		files = args[1:]
	}
	if len(files) == 0 {
		checkError(fmt.Errorf("append: no new input files given, provide them as arguments or via --infile-list"))
	}
	checkFiles(files...)

	log.Infof("reopening %s", archivePath)
	src, err := archive.Open(archivePath)
	checkError(errors.Wrapf(err, "opening %s", archivePath))
	defer src.Close()

	mr := pangc.NewMetadataReader(src)
	opt, err := mr.ReadParams()
	checkError(errors.Wrap(err, "reading params"))
	opt.NoThreads = getFlagPositiveInt(cmd, "threads")
	opt.ConcatenatedGenomes = getFlagBool(cmd, "concatenated-genomes")
	opt.ReproducibilityMode = getFlagBool(cmd, "reproducibility-mode")
	opt.AdaptiveCompression = false

	noRawGroupsFromParams, err := readNoRawGroups(src)
	checkError(err)
	opt.NoRawGroups = noRawGroupsFromParams

	splitters, err := mr.ReadSplitters()
	checkError(errors.Wrap(err, "reading splitters"))
	entries, err := mr.ReadSegmentSplitters()
	checkError(errors.Wrap(err, "reading segment-splitters"))

	col, err := loadCollection(src)
	checkError(errors.Wrap(err, "reading collection descriptor"))

	idx := pangc.NewSplitterIndex(len(splitters) + 256)
	for _, v := range splitters {
		idx.InsertFast(v)
	}

	sm := pangc.NewSegmentMap(opt.NoRawGroups)
	for _, e := range entries {
		sm.RestoreEntry(e.Fingerprint, e.Group)
	}

	store := segstore.NewStore(opt.MinMatchLen)
	groupIDs := discoverGroupIDs(src)
	dec, err := zstd.NewReader(nil)
	checkError(errors.Wrap(err, "creating zstd decoder"))
	defer dec.Close()
	for _, g := range groupIDs {
		refStream := fmt.Sprintf("seg-%d-ref", g)
		if src.PartCount(refStream) > 0 {
			comp, err := src.GetStream(refStream)
			checkError(errors.Wrapf(err, "reading %s", refStream))
			ref, err := dec.DecodeAll(comp, nil)
			checkError(errors.Wrapf(err, "decompressing %s", refStream))
			_, err = store.AddReference(g, ref)
			checkError(errors.Wrapf(err, "restoring group %d reference", g))
		}
		store.Prime(g, src.PartCount(fmt.Sprintf("seg-%d-delta", g)))
	}

	router := pangc.NewRouter(opt, sm, store)
	selector := pangc.NewSplitterSelector(opt)

	minLen := getFlagNonNegativeInt(cmd, "min-len")
	runtime.GOMAXPROCS(opt.NoThreads)

	log.Infof("reading %d new input file(s)", len(files))
	var samples []genomeio.Sample
	for _, f := range files {
		if opt.ConcatenatedGenomes {
			ss, err := genomeio.ReadFileConcatenated(f, minLen)
			checkError(errors.Wrapf(err, "reading %s", f))
			samples = append(samples, ss...)
		} else {
			s, err := genomeio.ReadFile(f, minLen)
			checkError(errors.Wrapf(err, "reading %s", f))
			samples = append(samples, s)
		}
	}
	if len(samples) == 0 {
		checkError(fmt.Errorf("append: no contigs survived the --min-len filter"))
	}
	warnDuplicateFingerprints(samples)

	sink := &collectionSink{col: col}
	pipeline := pangc.NewPipeline(opt, idx, sm, router, selector, sink)

	inputs := make([]pangc.SampleInput, len(samples))
	for i, s := range samples {
		contigs := make([]pangc.NamedContig, 0, len(s.Contigs))
		for _, c := range s.Contigs {
			if !col.RegisterSampleContig(s.Name, c.Name) {
				log.Warningf("duplicate sample/contig %s/%s, skipping that contig", s.Name, c.Name)
				continue
			}
			contigs = append(contigs, pangc.NamedContig{Sample: s.Name, Contig: c.Name, Seq: c.Seq})
		}
		inputs[i] = pangc.SampleInput{Sample: s.Name, Contigs: contigs}
	}

	log.Infof("segmenting and routing %d new sample(s) with %d worker(s)", len(inputs), opt.NoThreads)
	checkError(pipeline.Run(inputs))

	tmpPath := archivePath + ".tmp"
	log.Infof("writing %s", tmpPath)
	dst, err := archive.Create(tmpPath)
	checkError(errors.Wrap(err, "creating archive"))

	writeMetadata(dst, opt, idx, sm)
	col.AddCmdLine(time.Now().UTC().Format(time.RFC3339), strings.Join(os.Args, " "))
	writeCollection(dst, col, !getFlagBool(cmd, "v1"), getFlagBool(cmd, "legacy-gzip"), getFlagPositiveInt(cmd, "details-batch-size"))
	writeGroupsAppend(dst, src, store)

	checkError(errors.Wrap(dst.Close(), "closing archive"))
	checkError(errors.Wrap(src.Close(), "closing source archive"))
	checkError(errors.Wrap(os.Rename(tmpPath, archivePath), "replacing archive"))

	checkError(errors.Wrap(writeBuildInfo(archivePath+".toml", buildInfo{
		Archive:         archivePath,
		K:               opt.K,
		SegmentSize:     opt.SegmentSize,
		MinMatchLen:     opt.MinMatchLen,
		PackCardinality: opt.PackCardinality,
		NoRawGroups:     opt.NoRawGroups,
		NoSamples:       col.NoSamples(),
		CreatedAt:       time.Now().UTC().Format(time.RFC3339),
		CmdLine:         strings.Join(os.Args, " "),
	}), "writing build summary"))

	log.Noticef("appended %d sample(s) to %s", len(inputs), archivePath)
}

// readNoRawGroups infers NoRawGroups from the archive's segment-splitters
// stream and discovered group range: every group id below the smallest
// fingerprint-backed group is part of the raw band. Params doesn't carry
// NoRawGroups directly (WriteParams predates this need), so append derives
// it instead of requiring the user to remember and re-supply it.
func readNoRawGroups(r *archive.Reader) (uint32, error) {
	mr := pangc.NewMetadataReader(r)
	entries, err := mr.ReadSegmentSplitters()
	if err != nil {
		return 0, err
	}
	if len(entries) == 0 {
		return pangc.DefaultOptions().NoRawGroups, nil
	}
	min := entries[0].Group
	for _, e := range entries {
		if e.Group < min {
			min = e.Group
		}
	}
	if min == 0 {
		min = 1
	}
	return min, nil
}

// discoverGroupIDs scans the archive's stream names for seg-<g>-ref and
// seg-<g>-delta entries and returns every distinct group id found, sorted.
func discoverGroupIDs(r *archive.Reader) []uint32 {
	seen := map[uint32]bool{}
	for _, name := range r.StreamNames() {
		m := groupStreamPattern.FindStringSubmatch(name)
		if m == nil {
			continue
		}
		n, err := strconv.ParseUint(m[1], 10, 32)
		if err != nil {
			continue
		}
		seen[uint32(n)] = true
	}
	out := make([]uint32, 0, len(seen))
	for g := range seen {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// writeGroupsAppend finalizes every touched group and writes its data to
// dst, copying each group's pre-existing seg-<g>-delta parts forward
// verbatim from src before appending the parts routed during this run —
// Store never loaded the old payloads into memory (segstore.Store.Prime
// only seeds the id counter), so their compressed bytes must come
// straight from the source archive. store.GroupIDs reflects every group
// primed during reconstruction plus every group newly created this run,
// so it alone covers both old and new groups.
func writeGroupsAppend(dst *archive.Store, src *archive.Reader, store *segstore.Store) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedBestCompression))
	checkError(errors.Wrap(err, "creating zstd encoder"))
	defer enc.Close()

	for _, g := range store.GroupIDs() {
		checkError(store.Finalize(g))
		if ref, ok := store.ReferenceBytes(g); ok {
			checkError(dst.PutStream(fmt.Sprintf("seg-%d-ref", g), ref))
		}
		deltaStream := fmt.Sprintf("seg-%d-delta", g)
		oldN := src.PartCount(deltaStream)
		for i := 0; i < oldN; i++ {
			part, err := src.GetPart(deltaStream, i)
			checkError(errors.Wrapf(err, "copying forward %s[%d]", deltaStream, i))
			checkError(dst.AppendPart(deltaStream, part))
		}
		for _, part := range store.DeltaParts(g) {
			checkError(dst.AppendPart(deltaStream, enc.EncodeAll(part, nil)))
		}
		for _, part := range store.RawParts(g) {
			checkError(dst.AppendPart(deltaStream, enc.EncodeAll(part, nil)))
		}
	}
}
