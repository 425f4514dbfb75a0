package analytics

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

// =============================================================================
// FIXED-POINT SCALING
// =============================================================================

func TestScaledDelta_Scaling(t *testing.T) {
	assert.Equal(t, int64(6000), ScaledDelta(6.0))
	assert.Equal(t, int64(8500), ScaledDelta(8.5))
	assert.Equal(t, int64(0), ScaledDelta(0))
}

func TestScaledDelta_RoundsHalfAwayFromZero(t *testing.T) {
	// 6.6665 * 1000 = 6666.5 exactly in decimal space
	assert.Equal(t, int64(6667), ScaledDelta(6.6665))
	assert.Equal(t, int64(-6667), ScaledDelta(-6.6665))
	// below the midpoint rounds down
	assert.Equal(t, int64(6666), ScaledDelta(6.6664))
}

func TestScaledDelta_Symmetric(t *testing.T) {
	for _, v := range []float64{1.2345, 6.6665, 9.9999, 0.0004} {
		assert.Equal(t, -ScaledDelta(v), ScaledDelta(-v), "value %v", v)
	}
}

// =============================================================================
// HISTOGRAM BUCKETS
// =============================================================================

func TestBucket_FloorsWithinScale(t *testing.T) {
	assert.Equal(t, 7, Bucket(7.9))
	assert.Equal(t, 0, Bucket(0.4))
	assert.Equal(t, 10, Bucket(10.0))
}

func TestBucket_ClampsOutOfScale(t *testing.T) {
	assert.Equal(t, 10, Bucket(10.4))
	assert.Equal(t, 0, Bucket(-0.2))
	assert.Equal(t, 10, Bucket(99))
	assert.Equal(t, 0, Bucket(-99))
}

// =============================================================================
// NUMERIC EXTRACTION
// =============================================================================

func TestNumericValue_AcceptedForms(t *testing.T) {
	cases := []struct {
		in   any
		want float64
	}{
		{8.5, 8.5},
		{float32(4), 4},
		{7, 7},
		{int64(9), 9},
		{json.Number("6.25"), 6.25},
		{"7.5", 7.5},
	}
	for _, tc := range cases {
		got, ok := NumericValue(tc.in)
		assert.True(t, ok, "input %v", tc.in)
		assert.InDelta(t, tc.want, got, 1e-9)
	}
}

func TestNumericValue_RejectsNonNumeric(t *testing.T) {
	for _, in := range []any{nil, "excellent", "", true, map[string]any{"v": 1}, []any{1}} {
		_, ok := NumericValue(in)
		assert.False(t, ok, "input %v must be rejected", in)
	}
}
