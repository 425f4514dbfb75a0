/*
canonical.go - Deterministic JSON encoding for hashing

PURPOSE:
  The chain hash must be reproducible by an independent verifier replaying
  stored events, so the bytes fed to SHA-256 have to be identical for
  semantically equal values. encoding/json already sorts map keys; this
  file adds the two missing pieces: struct values are first round-tripped
  into maps (so field order never matters), and numbers are kept as their
  literal text via json.Number (so 6.1 never re-encodes as 6.1000000000001).

SEE ALSO:
  - hash.go: Consumes the canonical bytes
*/
package audit

import (
	"bytes"
	"encoding/json"
)

// CanonicalJSON encodes v deterministically: stable key ordering, literal
// number text, HTML escaping off, no trailing newline.
func CanonicalJSON(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, &SerializationError{Err: err}
	}

	// Round-trip through an untyped value so structs become sorted maps
	// and numbers keep their literal form.
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var decoded any
	if err := dec.Decode(&decoded); err != nil {
		return nil, &SerializationError{Err: err}
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(decoded); err != nil {
		return nil, &SerializationError{Err: err}
	}
	return bytes.TrimSpace(buf.Bytes()), nil
}
