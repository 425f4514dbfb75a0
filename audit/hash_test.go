package audit

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// CANONICALIZATION TESTS
// =============================================================================

func TestCanonicalJSON_StableKeyOrdering(t *testing.T) {
	// GIVEN: two semantically equal payloads built in different orders
	a := map[string]any{"zeta": 1, "alpha": "x", "mid": map[string]any{"b": 2, "a": 1}}
	b := map[string]any{}
	b["mid"] = map[string]any{"a": 1, "b": 2}
	b["alpha"] = "x"
	b["zeta"] = 1

	// WHEN: both are canonicalized
	ca, err := CanonicalJSON(a)
	require.NoError(t, err)
	cb, err := CanonicalJSON(b)
	require.NoError(t, err)

	// THEN: the bytes are identical
	assert.Equal(t, string(ca), string(cb))
}

func TestCanonicalJSON_StructAndMapAgree(t *testing.T) {
	type snapshot struct {
		GradeID string  `json:"grade_id"`
		Value   float64 `json:"value"`
	}

	cs, err := CanonicalJSON(snapshot{GradeID: "G1", Value: 6.1})
	require.NoError(t, err)
	cm, err := CanonicalJSON(map[string]any{"value": 6.1, "grade_id": "G1"})
	require.NoError(t, err)

	assert.Equal(t, string(cs), string(cm))
}

func TestCanonicalJSON_NoHTMLEscaping(t *testing.T) {
	out, err := CanonicalJSON(map[string]any{"note": "a<b>&c"})
	require.NoError(t, err)
	assert.Contains(t, string(out), "a<b>&c")
}

func TestCanonicalJSON_UnserializablePayload(t *testing.T) {
	_, err := CanonicalJSON(map[string]any{"bad": make(chan int)})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSerialization)
}

// =============================================================================
// HASH TESTS
// =============================================================================

func testEventData() EventData {
	return EventData{
		EntityType: "grade",
		EntityID:   "GR-123",
		Action:     "CREATE",
		Actor:      "system",
		Payload:    map[string]any{"value": 8.5, "subject_id": "MATH"},
		Timestamp:  "2024-03-10T12:00:00Z",
	}
}

func TestComputeHash_Deterministic(t *testing.T) {
	// GIVEN: identical event data and previous hash
	// WHEN: hashed repeatedly
	// THEN: every call returns the same value
	h1, err := ComputeHash(testEventData(), "prev")
	require.NoError(t, err)
	h2, err := ComputeHash(testEventData(), "prev")
	require.NoError(t, err)

	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 64, "sha-256 hex")
	assert.Equal(t, strings.ToLower(h1), h1)
}

func TestComputeHash_PreviousHashChangesResult(t *testing.T) {
	h1, err := ComputeHash(testEventData(), "")
	require.NoError(t, err)
	h2, err := ComputeHash(testEventData(), h1)
	require.NoError(t, err)

	assert.NotEqual(t, h1, h2)
}

func TestComputeHash_ContentChangesResult(t *testing.T) {
	base := testEventData()
	changed := testEventData()
	changed.Payload = map[string]any{"value": 8.6, "subject_id": "MATH"}

	h1, err := ComputeHash(base, "")
	require.NoError(t, err)
	h2, err := ComputeHash(changed, "")
	require.NoError(t, err)

	assert.NotEqual(t, h1, h2)
}
