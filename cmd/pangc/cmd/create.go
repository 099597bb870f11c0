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
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"
	"github.com/shenwei356/util/bytesize"
	"github.com/spf13/cobra"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"

	"github.com/shenwei356/pangc"
	"github.com/shenwei356/pangc/archive"
	"github.com/shenwei356/pangc/collection"
	"github.com/shenwei356/pangc/genomeio"
	"github.com/shenwei356/pangc/segstore"
)

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "pack a set of genome assemblies into a new archive",
	Long: `create packs a set of FASTA genome assemblies into a new pangc
archive: the first input seeds the splitter set, every
contig of every sample is then cut into segments at splitter occurrences
and routed to a delta-compressed segment group.
`,
	Run: func(cmd *cobra.Command, args []string) {
		runCreate(cmd, args)
	},
}

func init() {
	RootCmd.AddCommand(createCmd)

	createCmd.Flags().StringP("outfile", "o", "", "output archive file (default: <first input base name>"+extArchive+")")
	createCmd.Flags().String("infile-list", "", "file of input file paths, one per line, instead of positional args")
	createCmd.Flags().IntP("kmer-len", "k", 25, "splitter k-mer length")
	createCmd.Flags().Int("segment-size", 60000, "target splitter spacing")
	createCmd.Flags().Int("min-match-len", 20, "minimum delta-match length")
	createCmd.Flags().Int("pack-cardinality", 100, "segments per delta batch")
	createCmd.Flags().Uint32("no-raw-groups", 64, "size of the reserved raw-group band")
	createCmd.Flags().Int("min-len", 200, "skip contigs shorter than this many bases")
	createCmd.Flags().Bool("concatenated-genomes", false, "treat every FASTA record as its own sample")
	createCmd.Flags().Bool("adaptive-compression", false, "run new-splitter discovery for contigs with no terminal (takes effect with --reproducibility-mode only)")
	createCmd.Flags().Bool("reproducibility-mode", false, "deterministic group assignment regardless of thread count")
	createCmd.Flags().Bool("v1", false, "write the legacy single-blob collection descriptor instead of v2")
	createCmd.Flags().Bool("legacy-gzip", false, "gzip-compress the v1 collection descriptor instead of zstd")
	createCmd.Flags().Int("details-batch-size", 1, "samples per collection-details batch (v2 only)")
	createCmd.Flags().String("max-queue-bytes", "0", "warn if the ingested sequence queue exceeds this size (e.g. 2G); 0 disables the check")
}

func runCreate(cmd *cobra.Command, args []string) {
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
		files = args
	}
	if len(files) == 0 {
		checkError(fmt.Errorf("create: no input files given, provide them as arguments or via --infile-list"))
	}
	checkFiles(files...)

	opt := pangc.DefaultOptions()
	opt.K = getFlagPositiveInt(cmd, "kmer-len")
	opt.SegmentSize = getFlagPositiveInt(cmd, "segment-size")
	opt.MinMatchLen = getFlagPositiveInt(cmd, "min-match-len")
	opt.PackCardinality = getFlagPositiveInt(cmd, "pack-cardinality")
	noRawGroups, err := cmd.Flags().GetUint32("no-raw-groups")
	checkError(err)
	opt.NoRawGroups = noRawGroups
	opt.ConcatenatedGenomes = getFlagBool(cmd, "concatenated-genomes")
	opt.AdaptiveCompression = getFlagBool(cmd, "adaptive-compression")
	opt.ReproducibilityMode = getFlagBool(cmd, "reproducibility-mode")
	opt.NoThreads = getFlagPositiveInt(cmd, "threads")
	minLen := getFlagNonNegativeInt(cmd, "min-len")

	outfile := getFlagString(cmd, "outfile")
	if outfile == "" {
		outfile = strings.TrimSuffix(filepath.Base(files[0]), filepath.Ext(files[0])) + extArchive
	}

	maxQueueBytesStr := getFlagString(cmd, "max-queue-bytes")
	maxQueueBytes, err := bytesize.Parse([]byte(maxQueueBytesStr))
	checkError(errors.Wrapf(err, "parsing --max-queue-bytes %q", maxQueueBytesStr))

	log.Infof("reading %d input file(s)", len(files))

	var samples []genomeio.Sample
	bar := newProgressBar(getFlagBool(cmd, "verbose"), len(files), "ingesting")
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
		bar.Increment()
	}
	bar.Wait()
	if len(samples) == 0 {
		checkError(fmt.Errorf("create: no contigs survived the --min-len filter"))
	}
	warnDuplicateFingerprints(samples)

	if maxQueueBytes > 0 {
		var queued uint64
		for _, s := range samples {
			for _, c := range s.Contigs {
				queued += uint64(len(c.Seq))
			}
		}
		if float64(queued) > maxQueueBytes {
			log.Warningf("ingested sequence queue is %s, over the --max-queue-bytes budget of %s",
				bytesize.ByteSize(queued), bytesize.ByteSize(maxQueueBytes))
		}
	}

	runtime.GOMAXPROCS(opt.NoThreads)

	log.Infof("selecting splitters from reference sample %q (%d contigs)", samples[0].Name, len(samples[0].Contigs))
	selector := pangc.NewSplitterSelector(opt)
	refSymbols := make([]pangc.NamedContig, len(samples[0].Contigs))
	for i, c := range samples[0].Contigs {
		refSymbols[i] = pangc.NamedContig{
			Sample: samples[0].Name,
			Contig: c.Name,
			Seq:    pangc.ContigSymbols(nil, pangc.PreprocessContig(c.Seq)),
		}
	}
	selector.Pass1(refSymbols)

	idx := pangc.NewSplitterIndex(256)
	for _, c := range refSymbols {
		for _, hit := range selector.Splitters(c.Seq) {
			idx.InsertFast(hit.Value)
		}
	}
	log.Infof("selected %d splitters", idx.Len())

	sm := pangc.NewSegmentMap(opt.NoRawGroups)
	store := segstore.NewStore(opt.MinMatchLen)
	router := pangc.NewRouter(opt, sm, store)
	col := collection.New()

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

	log.Infof("segmenting and routing %d sample(s) with %d worker(s)", len(inputs), opt.NoThreads)
	checkError(pipeline.Run(inputs))

	log.Infof("writing archive %s", outfile)
	arc, err := archive.Create(outfile)
	checkError(errors.Wrap(err, "creating archive"))

	writeMetadata(arc, opt, idx, sm)
	col.AddCmdLine(time.Now().UTC().Format(time.RFC3339), strings.Join(os.Args, " "))
	writeCollection(arc, col, !getFlagBool(cmd, "v1"), getFlagBool(cmd, "legacy-gzip"), getFlagPositiveInt(cmd, "details-batch-size"))
	writeGroups(arc, store)

	checkError(errors.Wrap(arc.Close(), "closing archive"))

	checkError(errors.Wrap(writeBuildInfo(outfile+".toml", buildInfo{
		Archive:         outfile,
		K:               opt.K,
		SegmentSize:     opt.SegmentSize,
		MinMatchLen:     opt.MinMatchLen,
		PackCardinality: opt.PackCardinality,
		NoRawGroups:     opt.NoRawGroups,
		NoSamples:       col.NoSamples(),
		CreatedAt:       time.Now().UTC().Format(time.RFC3339),
		CmdLine:         strings.Join(os.Args, " "),
	}), "writing build summary"))

	log.Noticef("wrote %s", outfile)
}

// collectionSink adapts collection.Collection to pangc.SegmentSink: every
// routed write is recorded at its segment position, not just appended,
// since reproducibility mode resolves writes out of per-contig order.
type collectionSink struct {
	col *collection.Collection
}

func (s *collectionSink) WriteSegment(sample, contig string, w pangc.SegmentWrite) {
	err := s.col.SetSegment(sample, contig, w.SegPartNo, collection.Segment{
		GroupID:   w.Group,
		InGroupID: w.InGroupID,
		IsRevComp: w.IsRC,
		RawLength: uint32(w.RawLength),
	})
	if err != nil {
		log.Warningf("collection: %s", err)
	}
}

func writeMetadata(arc *archive.Store, opt pangc.Options, idx *pangc.SplitterIndex, sm *pangc.SegmentMap) {
	mw := pangc.NewMetadataWriter(arc)
	checkError(mw.WriteFileTypeInfo(map[string]string{
		"producer": "pangc",
		"version":  VERSION,
	}))
	checkError(mw.WriteParams(opt))
	checkError(mw.WriteSplitters(idx.Sorted()))
	checkError(mw.WriteSegmentSplitters(sm.Entries()))
}

func writeCollection(arc *archive.Store, col *collection.Collection, v2, legacyGzip bool, detailsBatchSize int) {
	if !v2 {
		var blob []byte
		if legacyGzip {
			var err error
			blob, err = col.SerializeV1Gzip(true)
			checkError(errors.Wrap(err, "gzip-compressing collection descriptor"))
		} else {
			blob = col.SerializeV1(true)
		}
		checkError(arc.PutStream("collection-desc", blob))
		return
	}
	main, details, err := col.SerializeV2(true, detailsBatchSize)
	checkError(errors.Wrap(err, "serializing collection"))
	checkError(arc.PutStream("collection-main", main))
	for _, d := range details {
		checkError(arc.AppendPart("collection-details", d))
	}
}

func writeGroups(arc *archive.Store, store *segstore.Store) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedBestCompression))
	checkError(errors.Wrap(err, "creating zstd encoder"))
	defer enc.Close()

	for _, g := range store.GroupIDs() {
		checkError(store.Finalize(g))
		if ref, ok := store.ReferenceBytes(g); ok {
			checkError(arc.PutStream(fmt.Sprintf("seg-%d-ref", g), ref))
		}
		deltaStream := fmt.Sprintf("seg-%d-delta", g)
		for _, part := range store.DeltaParts(g) {
			checkError(arc.AppendPart(deltaStream, enc.EncodeAll(part, nil)))
		}
		for _, part := range store.RawParts(g) {
			checkError(arc.AppendPart(deltaStream, enc.EncodeAll(part, nil)))
		}
	}
}

// newProgressBar returns an mpb bar that renders only when verbose is set,
// matching the teacher's convention of keeping non-verbose runs quiet.
func newProgressBar(verbose bool, total int, label string) *progressBar {
	if !verbose || total == 0 {
		return &progressBar{}
	}
	p := mpb.New()
	bar := p.AddBar(int64(total),
		mpb.PrependDecorators(decor.Name(label+" ")),
		mpb.AppendDecorators(decor.CountersNoUnit("%d / %d"), decor.Percentage()),
	)
	return &progressBar{p: p, bar: bar}
}

type progressBar struct {
	p   *mpb.Progress
	bar *mpb.Bar
}

func (b *progressBar) Increment() {
	if b.bar != nil {
		b.bar.Increment()
	}
}

func (b *progressBar) Wait() {
	if b.p != nil {
		b.p.Wait()
	}
}
