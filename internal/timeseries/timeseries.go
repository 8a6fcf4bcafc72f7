// Package timeseries selects the hourly snapshot timestamps a project syncs.
//
// Every timestamp gets a score in [0, 1) that depends only on the timestamp
// and the seed. A timestamp is selected when its score is below the sample
// rate, so widening the date range or raising the sample rate only ever adds
// timestamps: previously selected snapshots stay selected.
package timeseries

import (
	"crypto/md5"
	"encoding/binary"
	"fmt"
	"math/rand/v2"
	"sort"
	"strings"
	"time"

	"github.com/vegardege/pvduck/internal/errors"
)

// Order is the order timestamps are returned in.
type Order int

const (
	// Random orders timestamps by ascending score. The order is reproducible
	// for a given seed.
	Random Order = iota

	// Chronological orders timestamps oldest first.
	Chronological

	// ReverseChronological orders timestamps newest first.
	ReverseChronological
)

// String returns the configuration name of the order.
func (o Order) String() string {
	switch o {
	case Random:
		return "random"
	case Chronological:
		return "chronological"
	case ReverseChronological:
		return "reverse_chronological"
	default:
		return fmt.Sprintf("Order(%d)", int(o))
	}
}

// ParseOrder parses an order name as used in project files.
func ParseOrder(s string) (Order, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "random", "":
		return Random, nil
	case "chronological":
		return Chronological, nil
	case "reverse_chronological", "reverse-chronological":
		return ReverseChronological, nil
	default:
		return Random, fmt.Errorf("%q: %w", s, errors.ErrInvalidOrder)
	}
}

// isoFormat is the textual timestamp representation that is hashed.
const isoFormat = "2006-01-02T15:04:05"

// Floor truncates t to the start of its hour in UTC.
func Floor(t time.Time) time.Time {
	return t.UTC().Truncate(time.Hour)
}

// Score returns the deterministic score of a timestamp for a seed.
//
// The score only depends on (timestamp, seed). A different seed gives a fresh,
// independent sample.
func Score(ts time.Time, seed any) float64 {
	input := ts.UTC().Format(isoFormat) + "|" + Repr(seed)
	sum := md5.Sum([]byte(input))

	hi := binary.BigEndian.Uint64(sum[:8])
	lo := binary.BigEndian.Uint64(sum[8:])

	return rand.New(rand.NewPCG(hi, lo)).Float64()
}

// Generate returns the sampled hourly timestamps between start and end, both
// inclusive. A nil end means the current time.
//
// sampleRate is not validated: values <= 0 select nothing and values >= 1
// select everything.
func Generate(start time.Time, end *time.Time, sampleRate float64, seed any, order Order) ([]time.Time, error) {
	return GenerateAt(time.Now(), start, end, sampleRate, seed, order)
}

// GenerateAt is Generate with an explicit current time.
func GenerateAt(now, start time.Time, end *time.Time, sampleRate float64, seed any, order Order) ([]time.Time, error) {
	last := now
	if end != nil {
		last = *end
	}
	if last.Before(start) {
		return nil, fmt.Errorf("end %s before start %s: %w",
			last.Format(time.RFC3339), start.Format(time.RFC3339), errors.ErrInvalidRange)
	}

	first := Floor(start)
	last = Floor(last)

	type scored struct {
		ts    time.Time
		score float64
	}

	var selected []scored
	for ts := first; !ts.After(last); ts = ts.Add(time.Hour) {
		score := Score(ts, seed)
		if score < sampleRate {
			selected = append(selected, scored{ts: ts, score: score})
		}
	}

	switch order {
	case Random:
		sort.SliceStable(selected, func(i, j int) bool {
			return selected[i].score < selected[j].score
		})
	case ReverseChronological:
		for i, j := 0, len(selected)-1; i < j; i, j = i+1, j-1 {
			selected[i], selected[j] = selected[j], selected[i]
		}
	}

	result := make([]time.Time, len(selected))
	for i, s := range selected {
		result[i] = s.ts
	}
	return result, nil
}
