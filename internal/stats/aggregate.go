package stats

import (
	"math"
	"sync"

	"github.com/DataDog/sketches-go/ddsketch"
)

// RelativeAccuracy of the quantile sketches.
const RelativeAccuracy = 0.01

// Distribution summarizes a set of view counts. Quantiles are approximate
// within RelativeAccuracy; everything else is exact.
type Distribution struct {
	Count int64
	Sum   uint64
	Min   uint64
	Max   uint64
	Avg   float64

	// Quantiles are nil for an empty distribution.
	P50 *float64
	P90 *float64
	P95 *float64
	P99 *float64
}

// HasQuantiles reports whether quantiles were computed.
func (d Distribution) HasQuantiles() bool {
	return d.P50 != nil
}

// Aggregate maintains running statistics over view counts.
type Aggregate struct {
	mu sync.Mutex

	count int64
	sum   uint64
	min   uint64
	max   uint64

	sketch *ddsketch.DDSketch
}

// NewAggregate creates an empty Aggregate.
func NewAggregate() (*Aggregate, error) {
	sketch, err := ddsketch.NewDefaultDDSketch(RelativeAccuracy)
	if err != nil {
		return nil, err
	}
	return &Aggregate{
		min:    math.MaxUint64,
		sketch: sketch,
	}, nil
}

// Add adds one view count.
func (a *Aggregate) Add(views uint64) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.sketch.Add(float64(views)); err != nil {
		return err
	}

	a.count++
	a.sum += views
	a.min = min(a.min, views)
	a.max = max(a.max, views)
	return nil
}

// Count returns the number of values added.
func (a *Aggregate) Count() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.count
}

// Merge folds other into a.
func (a *Aggregate) Merge(other *Aggregate) error {
	if other == nil || other == a {
		return nil
	}

	// Snapshot other first so the two locks are never held together.
	other.mu.Lock()
	if other.count == 0 {
		other.mu.Unlock()
		return nil
	}
	sketch := other.sketch.Copy()
	count, sum, lo, hi := other.count, other.sum, other.min, other.max
	other.mu.Unlock()

	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.sketch.MergeWith(sketch); err != nil {
		return err
	}

	a.count += count
	a.sum += sum
	a.min = min(a.min, lo)
	a.max = max(a.max, hi)
	return nil
}

// Result returns the distribution of the values added so far.
func (a *Aggregate) Result() Distribution {
	a.mu.Lock()
	defer a.mu.Unlock()

	d := Distribution{
		Count: a.count,
		Sum:   a.sum,
	}
	if a.count == 0 {
		return d
	}

	d.Min = a.min
	d.Max = a.max
	d.Avg = float64(a.sum) / float64(a.count)

	quantiles, err := a.sketch.GetValuesAtQuantiles([]float64{0.50, 0.90, 0.95, 0.99})
	if err == nil {
		d.P50, d.P90, d.P95, d.P99 = &quantiles[0], &quantiles[1], &quantiles[2], &quantiles[3]
	}
	return d
}
