package batch

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/parquet-go/parquet-go"
)

// Reader reads rows from a Parquet file.
type Reader struct {
	file   *os.File
	reader *parquet.GenericReader[Row]
	path   string
}

// NewReader opens a Parquet batch for reading.
func NewReader(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}

	reader := parquet.NewGenericReader[Row](f, parquet.ReadBufferSize(1024*1024))

	return &Reader{
		file:   f,
		reader: reader,
		path:   path,
	}, nil
}

// ReadChunk fills buf with the next rows of the file. It returns the number of
// rows read and io.EOF once the file is exhausted; n may be non-zero together
// with io.EOF.
func (r *Reader) ReadChunk(buf []Row) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := r.reader.Read(buf[total:])
		total += n
		if errors.Is(err, io.EOF) {
			return total, io.EOF
		}
		if err != nil {
			return total, fmt.Errorf("read rows: %w", err)
		}
		if n == 0 {
			break
		}
	}
	if total == 0 {
		return 0, io.EOF
	}
	return total, nil
}

// ReadAll reads all rows from the file.
func (r *Reader) ReadAll() ([]Row, error) {
	rows := make([]Row, r.reader.NumRows())
	if len(rows) == 0 {
		return rows, nil
	}

	n, err := r.ReadChunk(rows)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return rows[:n], nil
}

// NumRows returns the total number of rows in the file.
func (r *Reader) NumRows() int64 {
	return r.reader.NumRows()
}

// Close closes the reader.
func (r *Reader) Close() error {
	if err := r.reader.Close(); err != nil {
		r.file.Close()
		return err
	}
	return r.file.Close()
}

// Path returns the file path.
func (r *Reader) Path() string {
	return r.path
}
