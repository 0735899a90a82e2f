// Package counter implements the metric kernel: a small tagged union of
// Counter and Gauge values together with the merge/set/delta algebra the
// rest of the daemon builds on.
//
// This is deliberately not built on a third-party metrics collector type
// (see DESIGN.md): Counter/Gauge need an asymmetric set() — accumulate on
// Counter, replace on Gauge — and a delta() against another snapshot of
// the same kind, neither of which a standard collector interface exposes.
package counter

import (
	"fmt"
	"math"
)

// Kind identifies which variant a CounterType holds. The set is closed;
// dispatch is by exhaustive switch rather than an open interface (see
// the scrape-kind design note this mirrors).
type Kind uint8

const (
	KindCounter Kind = iota
	KindGauge
)

func (k Kind) String() string {
	switch k {
	case KindCounter:
		return "counter"
	case KindGauge:
		return "gauge"
	default:
		return "unknown"
	}
}

// CounterType is the tagged union of the two metric variants. Only the
// fields relevant to Kind are meaningful at any given time.
type CounterType struct {
	Kind Kind `json:"kind"`

	// Counter fields.
	TS    int64   `json:"ts,omitempty"` // microseconds since epoch, last update
	Value float64 `json:"value,omitempty"`

	// Gauge fields. Value() derives Total/Hits; Min/Max track range.
	Min   float64 `json:"min,omitempty"`
	Max   float64 `json:"max,omitempty"`
	Total float64 `json:"total,omitempty"`
	Hits  uint64  `json:"hits,omitempty"`
}

// NewCounter builds a Counter variant.
func NewCounter(ts int64, value float64) CounterType {
	return CounterType{Kind: KindCounter, TS: ts, Value: value}
}

// NewGauge builds a Gauge variant from a single observation.
func NewGauge(value float64) CounterType {
	return CounterType{Kind: KindGauge, Min: value, Max: value, Total: value, Hits: 1}
}

// ErrVariantMismatch is returned whenever an operation is attempted
// between a Counter and a Gauge.
var ErrVariantMismatch = fmt.Errorf("counter: variant mismatch")

// Merge combines two values of the same kind. Counter: value=a+b,
// timestamp is the mean. Gauge: min/max widen, hits and total sum.
// Merging across variants fails.
func Merge(a, b CounterType) (CounterType, error) {
	if a.Kind != b.Kind {
		return CounterType{}, ErrVariantMismatch
	}
	switch a.Kind {
	case KindCounter:
		return CounterType{
			Kind:  KindCounter,
			Value: a.Value + b.Value,
			TS:    meanTS(a.TS, b.TS),
		}, nil
	case KindGauge:
		return CounterType{
			Kind:  KindGauge,
			Min:   minNaN(a.Min, b.Min),
			Max:   maxNaN(a.Max, b.Max),
			Hits:  a.Hits + b.Hits,
			Total: a.Total + b.Total,
		}, nil
	default:
		return CounterType{}, fmt.Errorf("counter: unknown kind %v", a.Kind)
	}
}

// Set overwrites a with the value carried by b, using the load-bearing
// asymmetry the ingest path relies on: Counter accumulates (set is used
// where the client frames an increment as "set to this delta"), Gauge
// replaces outright with a single fresh sample.
func Set(a, b CounterType) (CounterType, error) {
	if a.Kind != b.Kind {
		return CounterType{}, ErrVariantMismatch
	}
	switch a.Kind {
	case KindCounter:
		return CounterType{
			Kind:  KindCounter,
			Value: a.Value + b.Value,
			TS:    b.TS,
		}, nil
	case KindGauge:
		return CounterType{
			Kind:  KindGauge,
			Min:   b.Total,
			Max:   b.Total,
			Total: b.Total,
			Hits:  1,
		}, nil
	default:
		return CounterType{}, fmt.Errorf("counter: unknown kind %v", a.Kind)
	}
}

// Delta computes the elementwise subtraction a-b, used to turn
// successive remote samples into local increments.
func Delta(a, b CounterType) (CounterType, error) {
	if a.Kind != b.Kind {
		return CounterType{}, ErrVariantMismatch
	}
	switch a.Kind {
	case KindCounter:
		return CounterType{
			Kind:  KindCounter,
			Value: a.Value - b.Value,
			TS:    a.TS,
		}, nil
	case KindGauge:
		return CounterType{
			Kind:  KindGauge,
			Min:   a.Min - b.Min,
			Max:   a.Max - b.Max,
			Total: a.Total - b.Total,
			Hits:  subHits(a.Hits, b.Hits),
		}, nil
	default:
		return CounterType{}, fmt.Errorf("counter: unknown kind %v", a.Kind)
	}
}

func subHits(a, b uint64) uint64 {
	if b > a {
		return 0
	}
	return a - b
}

// HasData reports whether the value carries anything worth serializing.
func (c CounterType) HasData() bool {
	switch c.Kind {
	case KindCounter:
		return c.Value != 0
	case KindGauge:
		return c.Hits != 0
	default:
		return false
	}
}

// Scalar returns the reportable value: Counter's raw value, or Gauge's
// total/hits (0 when hits is 0).
func (c CounterType) Scalar() float64 {
	switch c.Kind {
	case KindCounter:
		return c.Value
	case KindGauge:
		if c.Hits == 0 {
			return 0
		}
		return c.Total / float64(c.Hits)
	default:
		return 0
	}
}

// CleanNaN replaces NaN/Inf values with zero before persisting.
func (c CounterType) CleanNaN() CounterType {
	clean := func(f float64) float64 {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return 0
		}
		return f
	}
	switch c.Kind {
	case KindCounter:
		c.Value = clean(c.Value)
	case KindGauge:
		c.Min = clean(c.Min)
		c.Max = clean(c.Max)
		c.Total = clean(c.Total)
	}
	return c
}

func meanTS(a, b int64) int64 {
	return (a + b) / 2
}

func minNaN(a, b float64) float64 {
	if math.IsNaN(a) {
		return b
	}
	if math.IsNaN(b) {
		return a
	}
	if a < b {
		return a
	}
	return b
}

func maxNaN(a, b float64) float64 {
	if math.IsNaN(a) {
		return b
	}
	if math.IsNaN(b) {
		return a
	}
	if a > b {
		return a
	}
	return b
}
