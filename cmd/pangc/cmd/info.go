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

	humanize "github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/shenwei356/kmers"
	"github.com/shenwei356/stable"
	"github.com/spf13/cobra"

	"github.com/shenwei356/pangc"
	"github.com/shenwei356/pangc/archive"
	"github.com/shenwei356/pangc/collection"
)

var infoCmd = &cobra.Command{
	Use:     "info",
	Aliases: []string{"stats"},
	Short:   "report an archive's samples, contigs and component sizes",
	Run: func(cmd *cobra.Command, args []string) {
		runInfo(cmd, args)
	},
}

func init() {
	RootCmd.AddCommand(infoCmd)

	infoCmd.Flags().Bool("list-samples", false, "list every sample and its contig count")
	infoCmd.Flags().Bool("list-streams", false, "list every archive stream and its on-disk size")
	infoCmd.Flags().Bool("history", false, "show the command-line history recorded at creation/append time")
	infoCmd.Flags().Bool("show-splitters", false, "decode and print every splitter k-mer as a DNA string")
}

func runInfo(cmd *cobra.Command, args []string) {
	if len(args) != 1 {
		checkError(fmt.Errorf("info: expects exactly one archive path"))
	}
	checkFiles(args[0])

	r, err := archive.Open(args[0])
	checkError(errors.Wrapf(err, "opening %s", args[0]))
	defer r.Close()

	mr := pangc.NewMetadataReader(r)
	fti, err := mr.ReadFileTypeInfo()
	checkError(errors.Wrap(err, "reading file_type_info"))
	opt, err := mr.ReadParams()
	checkError(errors.Wrap(err, "reading params"))
	splitters, err := mr.ReadSplitters()
	checkError(errors.Wrap(err, "reading splitters"))

	col, err := loadCollection(r)
	checkError(errors.Wrap(err, "reading collection descriptor"))

	fmt.Printf("producer: %s v%s\n", fti["producer"], fti["version"])
	fmt.Printf("k-mer length: %d\n", opt.K)
	fmt.Printf("min match length: %d\n", opt.MinMatchLen)
	fmt.Printf("pack cardinality: %d\n", opt.PackCardinality)
	fmt.Printf("segment size: %d\n", opt.SegmentSize)
	fmt.Printf("splitters: %s\n", humanize.Comma(int64(len(splitters))))
	fmt.Printf("samples: %s\n", humanize.Comma(int64(col.NoSamples())))

	if getFlagBool(cmd, "history") {
		fmt.Println("\ncommand history:")
		for _, rec := range col.CmdLines() {
			fmt.Printf("  [%s] %s\n", rec.Timestamp, rec.CmdLine)
		}
	}

	if getFlagBool(cmd, "show-splitters") {
		fmt.Println("\nsplitters:")
		for _, v := range splitters {
			fmt.Println(string(kmers.Decode(v, opt.K)))
		}
	}

	if getFlagBool(cmd, "list-samples") {
		fmt.Println("\nsamples:")
		style := stable.TableStyle{
			Name:      "plain",
			HeaderRow: stable.RowStyle{Begin: "", Sep: "  ", End: ""},
			DataRow:   stable.RowStyle{Begin: "", Sep: "  ", End: ""},
		}
		tbl := stable.New()
		tbl.HeaderWithFormat([]stable.Column{
			{Header: "sample"},
			{Header: "contigs", Align: stable.AlignRight},
		})
		for _, name := range col.Samples() {
			contigs, _ := col.ContigsInSample(name)
			tbl.AddRow([]interface{}{name, len(contigs)})
		}
		fmt.Print(string(tbl.Render(&style)))
	}

	if getFlagBool(cmd, "list-streams") {
		fmt.Println("\nstreams:")
		style := stable.TableStyle{
			Name:      "plain",
			HeaderRow: stable.RowStyle{Begin: "", Sep: "  ", End: ""},
			DataRow:   stable.RowStyle{Begin: "", Sep: "  ", End: ""},
		}
		tbl := stable.New()
		tbl.HeaderWithFormat([]stable.Column{
			{Header: "stream"},
			{Header: "parts", Align: stable.AlignRight},
			{Header: "size", Align: stable.AlignRight},
		})
		var total uint64
		for _, name := range r.StreamNames() {
			size := r.StreamSize(name)
			total += size
			tbl.AddRow([]interface{}{name, r.PartCount(name), humanize.Bytes(size)})
		}
		fmt.Print(string(tbl.Render(&style)))
		fmt.Printf("total: %s\n", humanize.Bytes(total))
	}
}

// loadCollection reads whichever collection descriptor shape the archive
// carries: v2's split main+details streams if present, else the legacy
// v1 single blob.
func loadCollection(r *archive.Reader) (*collection.Collection, error) {
	if r.PartCount("collection-main") > 0 {
		main, err := r.GetStream("collection-main")
		if err != nil {
			return nil, err
		}
		col, segCounts, batchSize, err := collection.DeserializeV2Main(main)
		if err != nil {
			return nil, err
		}
		n := r.PartCount("collection-details")
		for i := 0; i < n; i++ {
			part, err := r.GetPart("collection-details", i)
			if err != nil {
				return nil, err
			}
			if err := collection.DeserializeV2Details(col, segCounts, batchSize, i, part); err != nil {
				return nil, err
			}
		}
		return col, nil
	}
	blob, err := r.GetStream("collection-desc")
	if err != nil {
		return nil, fmt.Errorf("archive has neither collection-main nor collection-desc: %w", err)
	}
	return collection.DeserializeV1(blob)
}
