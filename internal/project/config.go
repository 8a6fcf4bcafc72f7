package project

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	kyaml "github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"gopkg.in/yaml.v3"

	pvconfig "github.com/vegardege/pvduck/config"
	"github.com/vegardege/pvduck/internal/errors"
	"github.com/vegardege/pvduck/internal/pageviews"
	"github.com/vegardege/pvduck/internal/timeseries"
)

//go:embed default_config.yml
var defaultConfig []byte

// DefaultConfig returns the template written for new projects.
func DefaultConfig() []byte {
	return bytes.Clone(defaultConfig)
}

// Config is the configuration of one project.
type Config struct {
	BaseURL     string       `koanf:"base_url" yaml:"base_url"`
	StartDate   string       `koanf:"start_date" yaml:"start_date"`
	EndDate     string       `koanf:"end_date" yaml:"end_date"`
	SampleRate  float64      `koanf:"sample_rate" yaml:"sample_rate"`
	Seed        any          `koanf:"seed" yaml:"seed"`
	Order       string       `koanf:"order" yaml:"order"`
	SleepTime   float64      `koanf:"sleep_time" yaml:"sleep_time"`
	MaxFiles    int          `koanf:"max_files" yaml:"max_files"`
	HaltOnError bool         `koanf:"halt_on_error" yaml:"halt_on_error"`
	ChunkSize   int          `koanf:"chunk_size" yaml:"chunk_size"`
	Filter      FilterConfig `koanf:"filter" yaml:"filter"`
}

// FilterConfig mirrors pageviews.Filter.
type FilterConfig struct {
	LineRegex   string   `koanf:"line_regex" yaml:"line_regex"`
	DomainCodes []string `koanf:"domain_codes" yaml:"domain_codes"`
	PageTitle   string   `koanf:"page_title" yaml:"page_title"`
	MinViews    *uint64  `koanf:"min_views" yaml:"min_views"`
	MaxViews    *uint64  `koanf:"max_views" yaml:"max_views"`
	Languages   []string `koanf:"languages" yaml:"languages"`
	Domains     []string `koanf:"domains" yaml:"domains"`
	Mobile      *bool    `koanf:"mobile" yaml:"mobile"`
	BatchSize   int      `koanf:"batch_size" yaml:"batch_size"`
	Compression string   `koanf:"compression" yaml:"compression"`
}

// defaults are applied below the file and the environment.
func defaults() map[string]any {
	return map[string]any{
		"base_url":           pvconfig.DefaultBaseURL,
		"sample_rate":        pvconfig.DefaultSampleRate,
		"order":              pvconfig.DefaultOrder,
		"sleep_time":         pvconfig.DefaultSleepTime.Seconds(),
		"max_files":          0,
		"halt_on_error":      true,
		"chunk_size":         pvconfig.DefaultChunkSize,
		"filter.batch_size":  pvconfig.DefaultBatchSize,
		"filter.compression": pvconfig.DefaultCompression,
	}
}

// LoadConfig reads the configuration at path with defaults underneath and
// PVDUCK_ environment variables on top. PVDUCK_FILTER__MIN_VIEWS sets
// filter.min_views.
func LoadConfig(path string) (*Config, error) {
	k := koanf.New(".")

	// 1. Defaults
	for key, value := range defaults() {
		k.Set(key, value)
	}

	// 2. File
	if err := k.Load(file.Provider(path), kyaml.Parser()); err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}

	// 3. Environment
	if err := k.Load(env.Provider(pvconfig.EnvPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(
			strings.TrimPrefix(s, pvconfig.EnvPrefix)), "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	var cfg Config
	err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{
		DecoderConfig: &mapstructure.DecoderConfig{
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				timeToString,
				mapstructure.StringToTimeDurationHookFunc()),
			Result:           &cfg,
			WeaklyTypedInput: true,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("decode %s: %v: %w", path, err, errors.ErrInvalidConfig)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &cfg, nil
}

// timeToString keeps YAML timestamps such as an unquoted 2024-01-01 usable
// as string fields.
func timeToString(from, to reflect.Type, data any) (any, error) {
	if t, ok := data.(time.Time); ok && to.Kind() == reflect.String {
		return t.Format(time.RFC3339), nil
	}
	return data, nil
}

// ValidateFile checks that the YAML at path is a complete configuration
// without unknown keys.
func ValidateFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	cfg := Config{
		BaseURL:     pvconfig.DefaultBaseURL,
		SampleRate:  pvconfig.DefaultSampleRate,
		Order:       pvconfig.DefaultOrder,
		SleepTime:   pvconfig.DefaultSleepTime.Seconds(),
		HaltOnError: true,
		ChunkSize:   pvconfig.DefaultChunkSize,
	}
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return fmt.Errorf("parse %s: %v: %w", path, err, errors.ErrInvalidConfig)
	}
	return cfg.Validate()
}

// Validate checks the fields that have no usable default.
func (c *Config) Validate() error {
	verrs := errors.NewValidationErrors()

	start, end, err := c.Range()
	switch {
	case err != nil:
		verrs.Add(err)
	case end != nil && end.Before(start):
		verrs.Add(fmt.Errorf("end_date before start_date: %w", errors.ErrInvalidRange))
	}

	if _, err := timeseries.ParseOrder(c.Order); err != nil {
		verrs.Add(err)
	}
	if c.SleepTime < 0 {
		verrs.AddField("sleep_time", "must not be negative")
	}
	if c.MaxFiles < 0 {
		verrs.AddField("max_files", "must not be negative")
	}
	if c.ChunkSize < 0 {
		verrs.AddField("chunk_size", "must not be negative")
	}
	if c.Filter.BatchSize < 0 {
		verrs.AddField("filter.batch_size", "must not be negative")
	}
	if err := c.PageviewsFilter().Validate(); err != nil {
		verrs.Add(err)
	}

	return verrs.Err()
}

// Range returns the parsed start and end dates. A nil end means now.
func (c *Config) Range() (time.Time, *time.Time, error) {
	if strings.TrimSpace(c.StartDate) == "" {
		return time.Time{}, nil, errors.NewMissingField("start_date")
	}
	start, err := parseDate(c.StartDate)
	if err != nil {
		return time.Time{}, nil, errors.NewInvalidValue("start_date", c.StartDate, "expected YYYY-MM-DD or RFC 3339")
	}

	if strings.TrimSpace(c.EndDate) == "" {
		return start, nil, nil
	}
	end, err := parseDate(c.EndDate)
	if err != nil {
		return time.Time{}, nil, errors.NewInvalidValue("end_date", c.EndDate, "expected YYYY-MM-DD or RFC 3339")
	}
	return start, &end, nil
}

func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

// TimestampOrder returns the parsed order.
func (c *Config) TimestampOrder() timeseries.Order {
	order, err := timeseries.ParseOrder(c.Order)
	if err != nil {
		return timeseries.Random
	}
	return order
}

// Sleep returns the pause between downloads.
func (c *Config) Sleep() time.Duration {
	return time.Duration(c.SleepTime * float64(time.Second))
}

// PageviewsFilter converts the filter section.
func (c *Config) PageviewsFilter() pageviews.Filter {
	f := c.Filter
	return pageviews.Filter{
		LineRegex:   f.LineRegex,
		DomainCodes: f.DomainCodes,
		PageTitle:   f.PageTitle,
		MinViews:    f.MinViews,
		MaxViews:    f.MaxViews,
		Languages:   f.Languages,
		Domains:     f.Domains,
		Mobile:      f.Mobile,
		BatchSize:   f.BatchSize,
		Compression: f.Compression,
	}
}
