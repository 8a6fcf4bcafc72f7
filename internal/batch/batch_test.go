package batch

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
)

func sampleRows(n int) []Row {
	rows := make([]Row, n)
	for i := range rows {
		rows[i] = Row{
			DomainCode: "en",
			Language:   "en",
			Domain:     "wikipedia.org",
			Mobile:     i%2 == 1,
			PageTitle:  "Page_" + string(rune('A'+i%26)) + string(rune('a'+i/26%26)),
			Views:      uint64(i + 1),
		}
	}
	return rows
}

func TestWriteAndRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pageviews.parquet")

	rows := sampleRows(10)
	w, err := NewWriter(path, DefaultOptions())
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	if err := w.Write(rows); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if w.RowCount() != 10 {
		t.Errorf("RowCount = %d, want 10", w.RowCount())
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if err := w.Write(rows); !errors.Is(err, ErrWriterClosed) {
		t.Errorf("write after close: expected ErrWriterClosed, got %v", err)
	}

	r, err := NewReader(path)
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	defer r.Close()

	if r.NumRows() != 10 {
		t.Fatalf("NumRows = %d, want 10", r.NumRows())
	}

	got, err := r.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(got) != len(rows) {
		t.Fatalf("read %d rows, want %d", len(got), len(rows))
	}
	for i := range rows {
		if got[i] != rows[i] {
			t.Errorf("row %d = %+v, want %+v", i, got[i], rows[i])
		}
	}
}

func TestReadChunk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chunks.parquet")
	opts := DefaultOptions()
	opts.RowGroupSize = 4

	if err := WriteFile(path, sampleRows(10), opts); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	r, err := NewReader(path)
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	defer r.Close()

	buf := make([]Row, 3)
	var sizes []int
	var total uint64
	for {
		n, err := r.ReadChunk(buf)
		if n > 0 {
			sizes = append(sizes, n)
			for _, row := range buf[:n] {
				total += row.Views
			}
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("ReadChunk: %v", err)
		}
	}

	if total != 55 {
		t.Errorf("sum of views = %d, want 55", total)
	}
	sum := 0
	for _, s := range sizes {
		if s > 3 {
			t.Errorf("chunk of %d rows exceeds buffer", s)
		}
		sum += s
	}
	if sum != 10 {
		t.Errorf("read %d rows in chunks %v, want 10", sum, sizes)
	}
}

func TestTempFile(t *testing.T) {
	f, err := NewTempFile("https://dumps.wikimedia.org/other/pageviews/2024/2024-08/pageviews-20240818-100000.gz")
	if err != nil {
		t.Fatalf("NewTempFile: %v", err)
	}

	if filepath.Base(f.Path) != "pageviews-20240818-100000.parquet" {
		t.Errorf("unexpected name %s", filepath.Base(f.Path))
	}
	if err := WriteFile(f.Path, sampleRows(2), DefaultOptions()); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	dir := filepath.Dir(f.Path)
	if err := f.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Errorf("temp dir should be removed, stat err = %v", err)
	}
	if err := f.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

func TestFileName(t *testing.T) {
	tests := map[string]string{
		"pageviews-20240803-060000.gz":         "pageviews-20240803-060000.parquet",
		"/tmp/dumps/pageviews-20240803-060000": "pageviews-20240803-060000.parquet",
		"s3://bucket/x/pageviews.parquet":      "pageviews.parquet",
		"":                                     "batch.parquet",
	}
	for in, want := range tests {
		if got := FileName(in); got != want {
			t.Errorf("FileName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestParseCompressionType(t *testing.T) {
	tests := map[string]CompressionType{
		"none":   CompressionNone,
		"snappy": CompressionSnappy,
		"zstd":   CompressionZstd,
		"lz4":    CompressionLZ4,
		"gzip":   CompressionGzip,
	}
	for in, want := range tests {
		got, err := ParseCompressionType(in)
		if err != nil || got != want {
			t.Errorf("ParseCompressionType(%q) = %v, %v, want %v", in, got, err, want)
		}
	}

	for _, in := range []string{"", "brotli", "SNAPPY"} {
		if _, err := ParseCompressionType(in); err == nil {
			t.Errorf("ParseCompressionType(%q): expected error", in)
		}
	}
}

func TestWriteFile_Compression(t *testing.T) {
	rows := sampleRows(100)
	for _, ct := range []CompressionType{CompressionNone, CompressionZstd, CompressionGzip} {
		path := filepath.Join(t.TempDir(), "pageviews.parquet")
		if err := WriteFile(path, rows, Options{Compression: ct}); err != nil {
			t.Fatalf("WriteFile(%v): %v", ct, err)
		}

		r, err := NewReader(path)
		if err != nil {
			t.Fatal(err)
		}
		got, err := r.ReadAll()
		r.Close()
		if err != nil {
			t.Fatalf("ReadAll(%v): %v", ct, err)
		}
		if len(got) != len(rows) || got[99] != rows[99] {
			t.Errorf("compression %v: read %d rows", ct, len(got))
		}
	}
}
