/*
rollup.go - Numeric rules for roll-up maintenance

PURPOSE:
  The three pure rules every counter update obeys:

  1. SCALED SUMS: sums are stored as sum_milli = round(value * 1000),
     accumulated as signed integers. Distributed additive counters stay
     exact this way; floating accumulation drifts across many small
     increments. Rounding is half away from zero, done in decimal space
     so 6.6665 * 1000 is exactly 6666.5 before rounding.

  2. HISTOGRAM BUCKETS: bucket = floor(value) clamped to [0, 10].

  3. NUMERIC EXTRACTION: upstream values arrive as float64, int,
     json.Number or string depending on the producer; anything that
     parses as a number participates, anything else excludes the fact.
*/
package analytics

import (
	"encoding/json"
	"math"

	"github.com/shopspring/decimal"
)

// SumScale is the fixed-point multiplier for stored sums.
const SumScale = 1000

// Histogram bucket bounds.
const (
	BucketMin = 0
	BucketMax = 10
)

// ScaledDelta converts a grade value to its signed sum_milli delta,
// rounding half away from zero.
func ScaledDelta(value float64) int64 {
	return decimal.NewFromFloat(value).
		Mul(decimal.NewFromInt(SumScale)).
		Round(0).
		IntPart()
}

// Bucket maps a grade value onto the 0..10 histogram, clamping values
// outside the scale to the nearest boundary.
func Bucket(value float64) int {
	b := int(math.Floor(value))
	if b < BucketMin {
		return BucketMin
	}
	if b > BucketMax {
		return BucketMax
	}
	return b
}

// NumericValue extracts a float from whatever the producer sent.
// Returns ok=false for non-numeric values; the caller then drops the
// fact from roll-ups by design.
func NumericValue(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int32:
		return float64(val), true
	case int64:
		return float64(val), true
	case json.Number:
		d, err := decimal.NewFromString(val.String())
		if err != nil {
			return 0, false
		}
		return d.InexactFloat64(), true
	case string:
		d, err := decimal.NewFromString(val)
		if err != nil {
			return 0, false
		}
		return d.InexactFloat64(), true
	default:
		return 0, false
	}
}
