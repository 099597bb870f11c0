package pangc

import (
	"encoding/binary"
	"testing"
)

type fakeStreamWriter struct {
	streams map[string][]byte
	parts   map[string][][]byte
}

func newFakeStreamWriter() *fakeStreamWriter {
	return &fakeStreamWriter{streams: map[string][]byte{}, parts: map[string][][]byte{}}
}

func (f *fakeStreamWriter) PutStream(name string, data []byte) error {
	f.streams[name] = append([]byte(nil), data...)
	return nil
}

func (f *fakeStreamWriter) AppendPart(name string, data []byte) error {
	f.parts[name] = append(f.parts[name], append([]byte(nil), data...))
	return nil
}

func TestMetadataWriterParamsRoundTrip(t *testing.T) {
	fw := newFakeStreamWriter()
	mw := NewMetadataWriter(fw)
	opt := DefaultOptions()
	if err := mw.WriteParams(opt); err != nil {
		t.Fatal(err)
	}

	buf := fw.streams["params"]
	k, n, err := Varint(buf)
	if err != nil || int(k) != opt.K {
		t.Fatalf("k = %d (err %v), want %d", k, err, opt.K)
	}
	buf = buf[n:]
	mml, n, err := Varint(buf)
	if err != nil || int(mml) != opt.MinMatchLen {
		t.Fatalf("min_match_len mismatch: %d %v", mml, err)
	}
	buf = buf[n:]
	pc, n, err := Varint(buf)
	if err != nil || int(pc) != opt.PackCardinality {
		t.Fatalf("pack_cardinality mismatch: %d %v", pc, err)
	}
	buf = buf[n:]
	ss, _, err := Varint(buf)
	if err != nil || int(ss) != opt.SegmentSize {
		t.Fatalf("segment_size mismatch: %d %v", ss, err)
	}
}

func TestMetadataWriterSplitters(t *testing.T) {
	fw := newFakeStreamWriter()
	mw := NewMetadataWriter(fw)
	values := []uint64{1, 5, 9999999999}
	if err := mw.WriteSplitters(values); err != nil {
		t.Fatal(err)
	}
	buf := fw.streams["splitters"]
	if len(buf) != 8*len(values) {
		t.Fatalf("len = %d, want %d", len(buf), 8*len(values))
	}
	for i, v := range values {
		got := binary.LittleEndian.Uint64(buf[i*8:])
		if got != v {
			t.Fatalf("value %d: got %d want %d", i, got, v)
		}
	}
}

func TestMetadataWriterSegmentSplittersExcludesReserved(t *testing.T) {
	sm := NewSegmentMap(4)
	sm.InsertNew(Fingerprint{10, 20})
	sm.InsertNew(Fingerprint{30, 40})

	fw := newFakeStreamWriter()
	mw := NewMetadataWriter(fw)
	entries := sm.Entries()
	if err := mw.WriteSegmentSplitters(entries); err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2 (reserved fingerprint must be excluded)", len(entries))
	}

	buf := fw.streams["segment-splitters"]
	off := 0
	for _, e := range entries {
		k1 := binary.LittleEndian.Uint64(buf[off:])
		off += 8
		k2 := binary.LittleEndian.Uint64(buf[off:])
		off += 8
		g, n, err := Varint(buf[off:])
		if err != nil {
			t.Fatal(err)
		}
		off += n
		if k1 != e.Fingerprint.K1 || k2 != e.Fingerprint.K2 || uint32(g) != e.Group {
			t.Fatalf("entry mismatch: got (%d,%d,%d) want %+v", k1, k2, g, e)
		}
	}
}

func TestMetadataWriterFileTypeInfo(t *testing.T) {
	fw := newFakeStreamWriter()
	mw := NewMetadataWriter(fw)
	kv := map[string]string{"producer": "pangc", "format-version": "2"}
	if err := mw.WriteFileTypeInfo(kv); err != nil {
		t.Fatal(err)
	}
	if len(fw.streams["file_type_info"]) == 0 {
		t.Fatal("file_type_info stream is empty")
	}
}

type fakeStreamReader struct {
	streams map[string][]byte
}

func (f *fakeStreamReader) GetStream(name string) ([]byte, error) {
	buf, ok := f.streams[name]
	if !ok {
		return nil, ErrVarintTruncated
	}
	return buf, nil
}

func TestMetadataRoundTrip(t *testing.T) {
	fw := newFakeStreamWriter()
	mw := NewMetadataWriter(fw)

	kv := map[string]string{"producer": "pangc", "version": "0.1.0"}
	if err := mw.WriteFileTypeInfo(kv); err != nil {
		t.Fatal(err)
	}
	opt := DefaultOptions()
	if err := mw.WriteParams(opt); err != nil {
		t.Fatal(err)
	}
	splitters := []uint64{7, 42, 1 << 40}
	if err := mw.WriteSplitters(splitters); err != nil {
		t.Fatal(err)
	}
	sm := NewSegmentMap(4)
	sm.InsertNew(Fingerprint{10, 20})
	sm.InsertNew(Fingerprint{30, 40})
	entries := sm.Entries()
	if err := mw.WriteSegmentSplitters(entries); err != nil {
		t.Fatal(err)
	}

	fr := &fakeStreamReader{streams: fw.streams}
	mr := NewMetadataReader(fr)

	gotKV, err := mr.ReadFileTypeInfo()
	if err != nil {
		t.Fatal(err)
	}
	if gotKV["producer"] != "pangc" || gotKV["version"] != "0.1.0" {
		t.Fatalf("file_type_info round trip mismatch: %+v", gotKV)
	}

	gotOpt, err := mr.ReadParams()
	if err != nil {
		t.Fatal(err)
	}
	if gotOpt.K != opt.K || gotOpt.MinMatchLen != opt.MinMatchLen ||
		gotOpt.PackCardinality != opt.PackCardinality || gotOpt.SegmentSize != opt.SegmentSize {
		t.Fatalf("params round trip mismatch: got %+v want %+v", gotOpt, opt)
	}

	gotSplitters, err := mr.ReadSplitters()
	if err != nil {
		t.Fatal(err)
	}
	if len(gotSplitters) != len(splitters) {
		t.Fatalf("splitters len = %d, want %d", len(gotSplitters), len(splitters))
	}
	for i, v := range splitters {
		if gotSplitters[i] != v {
			t.Fatalf("splitter %d = %d, want %d", i, gotSplitters[i], v)
		}
	}

	gotEntries, err := mr.ReadSegmentSplitters()
	if err != nil {
		t.Fatal(err)
	}
	if len(gotEntries) != len(entries) {
		t.Fatalf("entries len = %d, want %d", len(gotEntries), len(entries))
	}
	for i, e := range entries {
		if gotEntries[i] != e {
			t.Fatalf("entry %d = %+v, want %+v", i, gotEntries[i], e)
		}
	}
}
