package archive

import (
	"os"
	"path/filepath"
	"testing"
)

func TestStoreWriteReadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.pangc")

	s, err := Create(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.PutStream("params", []byte{1, 2, 3, 4}); err != nil {
		t.Fatal(err)
	}
	if err := s.AppendPart("seg-5-delta", []byte("first")); err != nil {
		t.Fatal(err)
	}
	if err := s.AppendPart("seg-5-delta", []byte("second")); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	r, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	params, err := r.GetStream("params")
	if err != nil {
		t.Fatal(err)
	}
	if string(params) != "\x01\x02\x03\x04" {
		t.Fatalf("params = %v", params)
	}

	if n := r.PartCount("seg-5-delta"); n != 2 {
		t.Fatalf("part count = %d, want 2", n)
	}
	p0, err := r.GetPart("seg-5-delta", 0)
	if err != nil || string(p0) != "first" {
		t.Fatalf("part 0 = %q, err %v", p0, err)
	}
	p1, err := r.GetPart("seg-5-delta", 1)
	if err != nil || string(p1) != "second" {
		t.Fatalf("part 1 = %q, err %v", p1, err)
	}
}

func TestOpenRejectsBadMagic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.pangc")
	if err := os.WriteFile(path, []byte("not an archive at all, just junk bytes"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Open(path); err == nil {
		t.Fatal("expected an error opening a non-archive file")
	}
}
