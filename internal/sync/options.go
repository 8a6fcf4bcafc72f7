package sync

import (
	"github.com/vegardege/pvduck/internal/project"
)

// OptionsFromConfig builds engine options from a project configuration.
func OptionsFromConfig(cfg *project.Config) (Options, error) {
	if err := cfg.Validate(); err != nil {
		return Options{}, err
	}

	start, end, err := cfg.Range()
	if err != nil {
		return Options{}, err
	}

	return Options{
		MaxFiles:    cfg.MaxFiles,
		SleepTime:   cfg.Sleep(),
		HaltOnError: cfg.HaltOnError,
		ChunkSize:   cfg.ChunkSize,
		Filter:      cfg.PageviewsFilter(),
		BaseURL:     cfg.BaseURL,
		Start:       start,
		End:         end,
		SampleRate:  cfg.SampleRate,
		Seed:        cfg.Seed,
		Order:       cfg.TimestampOrder(),
	}, nil
}
