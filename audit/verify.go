/*
verify.go - Independent audit chain verification

PURPOSE:
  Replays one partition's events oldest-first and checks that (a) each
  event's PreviousHash links to its predecessor's Hash and (b) each Hash
  recomputes from the stored content. A chain that passes has provably
  not been edited, reordered, or truncated in the middle.

  Verification is pure: it uses only the event contents and the same
  ComputeHash used at append time, so any holder of the rows can run it
  without access to the tip cache or the live ledger.
*/
package audit

import (
	"fmt"
	"sort"
)

// VerifyReport summarizes a chain verification run. Truncated marks a
// run that covered only the oldest readable window of a longer chain;
// the caller that bounded the read sets it.
type VerifyReport struct {
	OK        bool     `json:"ok"`
	Checked   int      `json:"checked"`
	LastHash  string   `json:"last_hash,omitempty"`
	Truncated bool     `json:"truncated,omitempty"`
	Errors    []string `json:"errors,omitempty"`
}

// VerifyChain checks link integrity and hash recomputation for one
// partition's events. Input order does not matter; events are sorted by
// timestamp ascending before replay. An empty chain verifies trivially.
func VerifyChain(events []Event) VerifyReport {
	report := VerifyReport{OK: true}
	if len(events) == 0 {
		return report
	}

	ordered := make([]Event, len(events))
	copy(ordered, events)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Timestamp.Before(ordered[j].Timestamp)
	})

	previousHash := ""
	for i, e := range ordered {
		if e.PreviousHash != previousHash {
			report.OK = false
			report.Errors = append(report.Errors, fmt.Sprintf(
				"event %d: previous_hash %q does not link to %q",
				i, e.PreviousHash, previousHash))
		}

		recomputed, err := ComputeHash(dataOf(e), e.PreviousHash)
		if err != nil {
			report.OK = false
			report.Errors = append(report.Errors, fmt.Sprintf(
				"event %d: recompute failed: %v", i, err))
		} else if recomputed != e.Hash {
			report.OK = false
			report.Errors = append(report.Errors, fmt.Sprintf(
				"event %d: stored hash %q, recomputed %q",
				i, e.Hash, recomputed))
		}

		previousHash = e.Hash
		report.Checked++
	}

	report.LastHash = previousHash
	return report
}
