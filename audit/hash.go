/*
hash.go - Hash chaining for audit events

PURPOSE:
  Pure functions that link an event to its predecessor. The hash covers
  everything about the event EXCEPT its own hash, concatenated with the
  predecessor's hash, so changing any historical event (or reordering the
  chain) invalidates every hash after it.

FORMULA:
  hash = hex(SHA-256(CanonicalJSON(eventData) || previousHash))

  where eventData carries entity_type, entity_id, action, actor, payload
  and the timestamp as an RFC 3339 string. previousHash is "" for the
  first event of a partition.

SEE ALSO:
  - canonical.go: Byte-stable serialization
  - verify.go: Replays chains with these same functions
*/
package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// EventData is the hashed portion of an event: everything except Hash.
type EventData struct {
	EntityType string `json:"entity_type"`
	EntityID   string `json:"entity_id"`
	Action     string `json:"action"`
	Actor      string `json:"actor"`
	Payload    any    `json:"payload"`
	Timestamp  string `json:"timestamp"`
}

// TimestampFormat is the canonical text form of event timestamps, both in
// the hash input and in storage. RFC3339Nano round-trips exactly through
// time.Parse, which verification depends on.
const TimestampFormat = time.RFC3339Nano

// ComputeHash derives an event's hash from its content and its
// predecessor's hash ("" for a chain's first event). Deterministic, no
// side effects. The only failure mode is a payload that cannot be
// serialized, reported as *SerializationError.
func ComputeHash(data EventData, previousHash string) (string, error) {
	canonical, err := CanonicalJSON(data)
	if err != nil {
		return "", err
	}

	h := sha256.New()
	h.Write(canonical)
	h.Write([]byte(previousHash))
	return hex.EncodeToString(h.Sum(nil)), nil
}

// dataOf extracts the hashed portion of an already-built event.
func dataOf(e Event) EventData {
	return EventData{
		EntityType: e.EntityType,
		EntityID:   e.EntityID,
		Action:     e.Action,
		Actor:      e.Actor,
		Payload:    e.Payload,
		Timestamp:  e.Timestamp.UTC().Format(TimestampFormat),
	}
}
