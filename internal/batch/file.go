package batch

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// File is a batch living in its own temporary directory. Close removes the
// directory, so a File must be closed on every exit path once acquired.
type File struct {
	// Path is the parquet file.
	Path string

	// Rows is the number of rows in the batch.
	Rows int64

	// Skipped counts source lines that were dropped as malformed.
	Skipped int64

	dir string
}

// NewTempFile reserves a parquet path inside a fresh temporary directory.
// The file name is derived from name with a trailing .gz replaced by
// .parquet.
func NewTempFile(name string) (*File, error) {
	dir, err := os.MkdirTemp("", "pvduck-batch-*")
	if err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}

	return &File{
		Path: filepath.Join(dir, FileName(name)),
		dir:  dir,
	}, nil
}

// FileName maps a snapshot name to its batch file name.
func FileName(name string) string {
	base := strings.TrimSuffix(filepath.Base(name), ".gz")
	if base == "" || base == "." {
		base = "batch"
	}
	if !strings.HasSuffix(base, ".parquet") {
		base += ".parquet"
	}
	return base
}

// Close removes the batch and its directory. It is safe to call more than
// once.
func (f *File) Close() error {
	if f == nil || f.dir == "" {
		return nil
	}
	dir := f.dir
	f.dir = ""
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("remove batch dir: %w", err)
	}
	return nil
}
