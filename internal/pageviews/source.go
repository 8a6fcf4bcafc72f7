package pageviews

import (
	"bufio"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/klauspost/compress/gzip"

	"github.com/vegardege/pvduck/config"
	"github.com/vegardege/pvduck/internal/errors"
)

// S3API is the subset of the S3 client used to read dumps.
type S3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Source opens dump locators: http(s) URLs, s3://bucket/key objects, and
// local files. Gzip payloads are decompressed transparently.
type Source struct {
	http *http.Client

	s3Once sync.Once
	s3     S3API
	s3Err  error
}

// SourceOption configures a Source.
type SourceOption func(*Source)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) SourceOption {
	return func(s *Source) { s.http = c }
}

// WithS3Client replaces the S3 client. By default one is built on first use
// from the default AWS configuration chain.
func WithS3Client(c S3API) SourceOption {
	return func(s *Source) {
		s.s3 = c
		s.s3Once.Do(func() {})
	}
}

// NewSource creates a Source.
func NewSource(opts ...SourceOption) *Source {
	s := &Source{
		http: &http.Client{Timeout: config.DefaultHTTPTimeout},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open returns the decompressed contents of the dump at locator.
//
// A dump that does not exist on a remote mirror yields ErrUnavailable; a
// missing local file yields ErrNotFound.
func (s *Source) Open(ctx context.Context, locator string) (io.ReadCloser, error) {
	var (
		body io.ReadCloser
		err  error
	)

	switch {
	case strings.HasPrefix(locator, "http://"), strings.HasPrefix(locator, "https://"):
		body, err = s.openHTTP(ctx, locator)
	case strings.HasPrefix(locator, "s3://"):
		body, err = s.openS3(ctx, locator)
	case strings.Contains(locator, "://"):
		return nil, fmt.Errorf("%q: %w", locator, errors.ErrUnsupportedSource)
	default:
		body, err = openFile(locator)
	}
	if err != nil {
		return nil, err
	}

	return decompress(body)
}

func (s *Source) openHTTP(ctx context.Context, locator string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, locator, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", locator, err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		resp.Body.Close()
		return nil, fmt.Errorf("%s: %w", locator, errors.ErrUnavailable)
	case resp.StatusCode != http.StatusOK:
		resp.Body.Close()
		return nil, fmt.Errorf("get %s: unexpected status %s", locator, resp.Status)
	}
	return resp.Body, nil
}

func (s *Source) openS3(ctx context.Context, locator string) (io.ReadCloser, error) {
	bucket, key, err := ParseS3Locator(locator)
	if err != nil {
		return nil, err
	}

	s.s3Once.Do(func() {
		cfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			s.s3Err = fmt.Errorf("load AWS config: %w", err)
			return
		}
		s.s3 = s3.NewFromConfig(cfg)
	})
	if s.s3Err != nil {
		return nil, s.s3Err
	}

	resp, err := s.s3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if stderrors.As(err, &noKey) {
			return nil, fmt.Errorf("%s: %w", locator, errors.ErrUnavailable)
		}
		return nil, fmt.Errorf("get object %s: %w", locator, err)
	}
	return resp.Body, nil
}

// ParseS3Locator splits s3://bucket/key into bucket and key.
func ParseS3Locator(locator string) (bucket, key string, err error) {
	u, err := url.Parse(locator)
	if err != nil || u.Scheme != "s3" || u.Host == "" || len(u.Path) < 2 {
		return "", "", fmt.Errorf("%q: expected s3://bucket/key: %w", locator, errors.ErrUnsupportedSource)
	}
	return u.Host, strings.TrimPrefix(u.Path, "/"), nil
}

func openFile(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewNotFound(errors.ErrNotFound, path)
		}
		return nil, fmt.Errorf("open dump: %w", err)
	}
	return f, nil
}

// decompress wraps body in a gzip reader when it starts with the gzip magic
// number. Closing the result closes body.
func decompress(body io.ReadCloser) (io.ReadCloser, error) {
	br := bufio.NewReaderSize(body, 256*1024)
	magic, err := br.Peek(2)
	if err != nil && !stderrors.Is(err, io.EOF) {
		body.Close()
		return nil, fmt.Errorf("read dump header: %w", err)
	}

	if len(magic) < 2 || magic[0] != 0x1f || magic[1] != 0x8b {
		return &readCloser{Reader: br, closers: []io.Closer{body}}, nil
	}

	gz, err := gzip.NewReader(br)
	if err != nil {
		body.Close()
		return nil, fmt.Errorf("open gzip stream: %w", err)
	}
	return &readCloser{Reader: gz, closers: []io.Closer{gz, body}}, nil
}

type readCloser struct {
	io.Reader
	closers []io.Closer
}

func (rc *readCloser) Close() error {
	var errs []error
	for _, c := range rc.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return stderrors.Join(errs...)
}
