package genomeio

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFasta(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestReadFileSplitsContigs(t *testing.T) {
	dir := t.TempDir()
	path := writeFasta(t, dir, "sample1.fa.gz", ">contig1\nACGTACGTACGTACGTACGT\n>contig2\nTTTTGGGGCCCCAAAATTTT\n")
	// The .fa.gz copy above holds plain text and is not read; the test
	// reads the plain sample1.fa copy, so only ".fa" stripping is checked.
	path = writeFasta(t, dir, "sample1.fa", ">contig1\nACGTACGTACGTACGTACGT\n>contig2\nTTTTGGGGCCCCAAAATTTT\n")

	s, err := ReadFile(path, 1)
	if err != nil {
		t.Fatal(err)
	}
	if s.Name != "sample1" {
		t.Fatalf("sample name = %q, want sample1", s.Name)
	}
	if len(s.Contigs) != 2 {
		t.Fatalf("contigs = %d, want 2", len(s.Contigs))
	}
	if s.Contigs[0].Name != "contig1" || s.Contigs[1].Name != "contig2" {
		t.Fatalf("contig names = %q, %q", s.Contigs[0].Name, s.Contigs[1].Name)
	}
	_ = path
}

func TestReadFileMinLenFilter(t *testing.T) {
	dir := t.TempDir()
	path := writeFasta(t, dir, "sample2.fasta", ">short\nACGT\n>long\nACGTACGTACGTACGTACGTACGTACGT\n")

	s, err := ReadFile(path, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(s.Contigs) != 1 || s.Contigs[0].Name != "long" {
		t.Fatalf("expected only the long contig to survive, got %+v", s.Contigs)
	}
}

func TestFingerprintStableForIdenticalSequence(t *testing.T) {
	seq1 := []byte("ACGTACGTACGTACGTACGTACGTACGTACGT")
	seq2 := append([]byte(nil), seq1...)
	if Fingerprint(seq1) != Fingerprint(seq2) {
		t.Fatal("identical sequences produced different fingerprints")
	}
	other := []byte("TTTTGGGGCCCCAAAATTTTGGGGCCCCAAAA")
	if Fingerprint(seq1) == Fingerprint(other) {
		t.Fatal("distinct sequences collided (extremely unlikely, check hashing)")
	}
}
