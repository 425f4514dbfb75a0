package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edugrade/audit-engine/audit"
	"github.com/edugrade/audit-engine/store/memory"
)

func gradeEvent(hash, prev string, at time.Time) audit.Event {
	return audit.Event{
		EntityType:   "grade",
		EntityID:     "G1",
		Action:       "CREATE",
		Actor:        "system",
		Payload:      map[string]any{"value": 8.5, "tags": []any{"final"}},
		Timestamp:    at,
		PreviousHash: prev,
		Hash:         hash,
	}
}

func TestEventStore_LoadedPayloadsAreIsolated(t *testing.T) {
	// GIVEN: a stored event with a nested payload
	store := memory.NewEventStore()
	ctx := context.Background()
	p := audit.Partition{EntityType: "grade", EntityID: "G1"}

	require.NoError(t, store.Append(ctx, gradeEvent("h1", "", time.Now().UTC())))

	// WHEN: a caller mutates the payload it was handed
	loaded, err := store.Load(ctx, p, audit.OrderAsc, 10)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	payload := loaded[0].Payload.(map[string]any)
	payload["value"] = 0.0
	payload["tags"].([]any)[0] = "tampered"

	// THEN: the stored event is unchanged
	reloaded, err := store.Load(ctx, p, audit.OrderAsc, 10)
	require.NoError(t, err)
	fresh := reloaded[0].Payload.(map[string]any)
	assert.Equal(t, 8.5, fresh["value"])
	assert.Equal(t, "final", fresh["tags"].([]any)[0])
}

func TestEventStore_AppendedPayloadsAreIsolated(t *testing.T) {
	store := memory.NewEventStore()
	ctx := context.Background()

	e := gradeEvent("h1", "", time.Now().UTC())
	require.NoError(t, store.Append(ctx, e))

	// Mutating the map after Append must not reach the store.
	e.Payload.(map[string]any)["value"] = 0.0

	loaded, err := store.Load(ctx, audit.Partition{EntityType: "grade", EntityID: "G1"},
		audit.OrderAsc, 10)
	require.NoError(t, err)
	assert.Equal(t, 8.5, loaded[0].Payload.(map[string]any)["value"])
}
