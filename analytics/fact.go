/*
fact.go - Fact snapshots and the idempotency barrier entry

PURPOSE:
  A FactSnapshot is what the grade-producing collaborator hands the
  aggregator: entity dimensions plus a numeric value. The aggregator
  never reads the document store; everything it needs is denormalized
  into the snapshot at call time.

  A LedgerEntry is the write-once row that marks a fact as "already
  applied to every roll-up". Its conditional insert is the whole
  idempotency story: the first writer wins and applies the deltas,
  every retry or duplicate observes the existing row and no-ops.

SEE ALSO:
  - aggregator.go: Consumes both
  - rollup.go: Numeric resolution rules
*/
package analytics

import (
	"strings"
	"time"
)

// FactSnapshot carries one business fact (a grade) into the roll-ups.
// Only ID, Country and Value are load-bearing; every other dimension is
// optional and simply skipped when empty.
type FactSnapshot struct {
	// ID is the fact's unique id (grade id). The idempotency barrier
	// is keyed on it; a snapshot without one is dropped.
	ID string `json:"id"`

	Country       string `json:"country"`
	InstitutionID string `json:"institution_id,omitempty"`
	StudentID     string `json:"student_id,omitempty"`
	SubjectID     string `json:"subject_id,omitempty"`

	// SystemID names the grading system the value was issued under.
	SystemID string `json:"system_id,omitempty"`

	// Year of the grade. Zero means "derive from IssuedAt", and when
	// that is also unset, the current UTC year.
	Year     int       `json:"year,omitempty"`
	IssuedAt time.Time `json:"issued_at,omitempty"`

	// Value is the grade as produced upstream: float64, int,
	// json.Number or numeric string all work. Non-numeric values
	// exclude the fact from roll-ups entirely.
	Value any `json:"value"`
}

// ResolveYear applies the year-derivation fallback chain.
func (f FactSnapshot) ResolveYear(now time.Time) int {
	if f.Year != 0 {
		return f.Year
	}
	if !f.IssuedAt.IsZero() {
		return f.IssuedAt.Year()
	}
	return now.UTC().Year()
}

// NormalizedCountry returns the upper-cased country code, "" if unset.
func (f FactSnapshot) NormalizedCountry() string {
	return strings.ToUpper(strings.TrimSpace(f.Country))
}

// LedgerEntry is the idempotency barrier row for one fact. Written once
// via conditional insert, never updated; existence means "this fact's
// contribution is in all roll-ups".
type LedgerEntry struct {
	FactID        string    `json:"fact_id"`
	Country       string    `json:"country"`
	Year          int       `json:"year"`
	StudentID     string    `json:"student_id,omitempty"`
	InstitutionID string    `json:"institution_id,omitempty"`
	SubjectID     string    `json:"subject_id,omitempty"`
	Value         float64   `json:"value"`
	CreatedAt     time.Time `json:"created_at"`
}
