// Package config provides configuration defaults for pvduck.
//
// This package defines all configurable constants with documented defaults.
// Users can override most of these values in a project file or through
// PVDUCK_ environment variables.
package config

import "time"

// =============================================================================
// Source Defaults
// =============================================================================

const (
	// DefaultBaseURL is the official Wikimedia dump server. Mirrors closer to
	// the user are recommended, see
	// https://meta.wikimedia.org/wiki/Mirroring_Wikimedia_project_XML_dumps
	// Override via config: base_url
	DefaultBaseURL = "https://dumps.wikimedia.org/"

	// DefaultSleepTime is the pause between two successfully merged snapshots.
	// Override via config: sleep_time
	DefaultSleepTime = 5 * time.Second

	// DefaultHTTPTimeout bounds a single snapshot download.
	DefaultHTTPTimeout = 30 * time.Minute

	// DefaultBatchSize is the number of rows per parquet row group written by
	// the fetcher. Matches the parquet default row group size.
	// Override via config: filter.batch_size
	DefaultBatchSize = 122_880

	// DefaultCompression is the parquet codec of fetched batches.
	// Override via config: filter.compression
	DefaultCompression = "snappy"
)

// =============================================================================
// Sampling Defaults
// =============================================================================

const (
	// DefaultSampleRate selects every snapshot in the date range.
	// Override via config: sample_rate
	DefaultSampleRate = 1.0

	// DefaultOrder is the order timestamps are processed in.
	// Override via config: order
	DefaultOrder = "random"
)

// =============================================================================
// Ledger and Merge Defaults
// =============================================================================

const (
	// DefaultGracePeriod is how long after its hour a snapshot may still be
	// missing from the mirror. Failures inside this window are not recorded.
	DefaultGracePeriod = 12 * time.Hour

	// DefaultChunkSize caps the number of batch rows staged per merge step.
	// Override via config: chunk_size
	DefaultChunkSize = 1_000_000
)

// =============================================================================
// Database Defaults
// =============================================================================

const (
	// DefaultMaxOpenConns is the connection pool size for a project store.
	// The store has a single writer, readers are rare.
	DefaultMaxOpenConns = 4

	// DefaultMaxIdleConns is the number of idle connections kept open.
	DefaultMaxIdleConns = 2

	// DefaultConnMaxLifetime recycles long-lived connections.
	DefaultConnMaxLifetime = 30 * time.Minute

	// DefaultPingTimeout bounds the connectivity check when opening a store.
	DefaultPingTimeout = 5 * time.Second
)

// =============================================================================
// Paths
// =============================================================================

const (
	// AppName names the XDG sub-directories.
	AppName = "pvduck"

	// ConfigExt is the extension of project configuration files.
	ConfigExt = ".yml"

	// DatabaseExt is the extension of project database files.
	DatabaseExt = ".duckdb"

	// DefaultEditor is used when $EDITOR is not set.
	DefaultEditor = "nano"

	// EnvPrefix prefixes environment overrides of project settings.
	// PVDUCK_SLEEP_TIME=1s overrides sleep_time,
	// PVDUCK_FILTER__MIN_VIEWS=10 overrides filter.min_views.
	EnvPrefix = "PVDUCK_"
)
