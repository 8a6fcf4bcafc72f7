// Package batch reads and writes pageview row batches as parquet files.
//
// A batch is the unit handed from the fetcher to the merger: one parquet file
// whose columns match the aggregate table.
package batch

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress"

	"github.com/vegardege/pvduck/config"
	"github.com/vegardege/pvduck/internal/errors"
)

// Options configures the Parquet writer.
type Options struct {
	// Compression algorithm
	Compression CompressionType

	// RowGroupSize is the target number of rows per row group
	RowGroupSize int64
}

// CompressionType represents a Parquet compression algorithm.
type CompressionType int

const (
	CompressionNone CompressionType = iota
	CompressionSnappy
	CompressionZstd
	CompressionLZ4
	CompressionGzip
)

// DefaultOptions returns default Parquet options.
func DefaultOptions() Options {
	ct, _ := ParseCompressionType(config.DefaultCompression)
	return Options{
		Compression:  ct,
		RowGroupSize: config.DefaultBatchSize,
	}
}

// ParseCompressionType parses a compression name: none, snappy, zstd, lz4
// or gzip.
func ParseCompressionType(s string) (CompressionType, error) {
	switch s {
	case "snappy":
		return CompressionSnappy, nil
	case "zstd":
		return CompressionZstd, nil
	case "lz4":
		return CompressionLZ4, nil
	case "gzip":
		return CompressionGzip, nil
	case "none":
		return CompressionNone, nil
	default:
		return CompressionNone, errors.NewInvalidValue("compression", s, "expected none, snappy, zstd, lz4 or gzip")
	}
}

// getCompression returns the parquet-go compression codec.
func getCompression(ct CompressionType) compress.Codec {
	switch ct {
	case CompressionSnappy:
		return &parquet.Snappy
	case CompressionZstd:
		return &parquet.Zstd
	case CompressionLZ4:
		return &parquet.Lz4Raw
	case CompressionGzip:
		return &parquet.Gzip
	default:
		return &parquet.Uncompressed
	}
}

// Row is one pageview count in parquet format. The column names match the
// aggregate table.
type Row struct {
	DomainCode string `parquet:"domain_code,dict"`
	Language   string `parquet:"language,dict"`
	Domain     string `parquet:"domain,dict"`
	Mobile     bool   `parquet:"mobile"`
	PageTitle  string `parquet:"page_title"`
	Views      uint64 `parquet:"views"`
}

// Writer writes rows to a Parquet file.
type Writer struct {
	mu       sync.Mutex
	path     string
	file     *os.File
	writer   *parquet.GenericWriter[Row]
	rowCount int64
	closed   bool
}

// NewWriter creates a new Parquet writer at path.
func NewWriter(path string, opts Options) (*Writer, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create file: %w", err)
	}

	writerOpts := []parquet.WriterOption{
		parquet.Compression(getCompression(opts.Compression)),
	}
	if opts.RowGroupSize > 0 {
		writerOpts = append(writerOpts, parquet.MaxRowsPerRowGroup(opts.RowGroupSize))
	}

	return &Writer{
		path:   path,
		file:   f,
		writer: parquet.NewGenericWriter[Row](f, writerOpts...),
	}, nil
}

// Write writes rows to the Parquet file.
func (w *Writer) Write(rows []Row) error {
	if len(rows) == 0 {
		return nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrWriterClosed
	}

	n, err := w.writer.Write(rows)
	if err != nil {
		return fmt.Errorf("write rows: %w", err)
	}

	w.rowCount += int64(n)
	return nil
}

// Close flushes the footer and closes the file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	if err := w.writer.Close(); err != nil {
		w.file.Close()
		return fmt.Errorf("close writer: %w", err)
	}

	return w.file.Close()
}

// RowCount returns the number of rows written.
func (w *Writer) RowCount() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.rowCount
}

// Path returns the file path.
func (w *Writer) Path() string {
	return w.path
}

// WriteFile writes rows to a new parquet file at path in one go.
func WriteFile(path string, rows []Row, opts Options) error {
	w, err := NewWriter(path, opts)
	if err != nil {
		return err
	}
	if err := w.Write(rows); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}

// ErrWriterClosed is returned when writing to a closed writer.
var ErrWriterClosed = errors.New("parquet writer is closed")
