/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  JSON structures for the API surface. These decouple the core types
  from the external contract: the audit chain and the counter keyspaces
  can evolve without breaking clients.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Validation happens in handlers; DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/edugrade/audit-engine/audit"
)

// =============================================================================
// REQUEST TYPES
// =============================================================================

// GradeInput is one grade snapshot as sent by a client. It doubles as
// the "previous" and "corrected" halves of a correction request.
type GradeInput struct {
	StudentID     string         `json:"student_id"`
	InstitutionID string         `json:"institution_id"`
	SubjectID     string         `json:"subject_id"`
	SystemID      string         `json:"system_id,omitempty"`
	Country       string         `json:"country"`
	Year          int            `json:"year,omitempty"`
	IssuedAt      *time.Time     `json:"issued_at,omitempty"`
	Value         any            `json:"value"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// CreateGradeRequest is the body of POST /api/grades.
type CreateGradeRequest struct {
	GradeInput
	Actor string `json:"actor,omitempty"`
}

// CorrectGradeRequest is the body of POST /api/grades/{id}/correct.
// Previous is the snapshot as originally recorded; Corrected replaces
// it. Dimensions may differ between the two. CorrectionID is the
// client's idempotency key: retries carrying the same id are applied to
// the roll-ups at most once. When absent the server mints one, and each
// retry counts as a distinct correction.
type CorrectGradeRequest struct {
	CorrectionID string     `json:"correction_id,omitempty"`
	Previous     GradeInput `json:"previous"`
	Corrected    GradeInput `json:"corrected"`
	Actor        string     `json:"actor,omitempty"`
}

// RebuildRequest is the body of POST /api/admin/rollups/rebuild: the
// full fact stream to replay.
type RebuildRequest struct {
	Facts []GradeFactDTO `json:"facts"`
}

// =============================================================================
// RESPONSE TYPES
// =============================================================================

// CreateGradeResponse confirms a recorded grade.
type CreateGradeResponse struct {
	Status  string `json:"status"`
	GradeID string `json:"grade_id"`
	Hash    string `json:"hash"`
}

// CorrectGradeResponse confirms a recorded correction.
type CorrectGradeResponse struct {
	Status       string `json:"status"`
	GradeID      string `json:"grade_id"`
	CorrectionID string `json:"correction_id"`
	Hash         string `json:"hash"`
}

// AuditEventDTO is one audit event in history responses.
type AuditEventDTO struct {
	EntityType   string    `json:"entity_type"`
	EntityID     string    `json:"entity_id"`
	Action       string    `json:"action"`
	Actor        string    `json:"actor"`
	Payload      any       `json:"payload"`
	Timestamp    time.Time `json:"timestamp"`
	PreviousHash string    `json:"previous_hash,omitempty"`
	Hash         string    `json:"hash"`
}

func toEventDTOs(events []audit.Event) []AuditEventDTO {
	out := make([]AuditEventDTO, len(events))
	for i, e := range events {
		out[i] = AuditEventDTO{
			EntityType:   e.EntityType,
			EntityID:     e.EntityID,
			Action:       e.Action,
			Actor:        e.Actor,
			Payload:      e.Payload,
			Timestamp:    e.Timestamp,
			PreviousHash: e.PreviousHash,
			Hash:         e.Hash,
		}
	}
	return out
}

// GradeFactDTO mirrors analytics.FactSnapshot on the wire (rebuilds).
type GradeFactDTO struct {
	ID            string     `json:"id"`
	Country       string     `json:"country"`
	InstitutionID string     `json:"institution_id,omitempty"`
	StudentID     string     `json:"student_id,omitempty"`
	SubjectID     string     `json:"subject_id,omitempty"`
	SystemID      string     `json:"system_id,omitempty"`
	Year          int        `json:"year,omitempty"`
	IssuedAt      *time.Time `json:"issued_at,omitempty"`
	Value         any        `json:"value"`
}

// AverageDTO is the country/institution average report row.
type AverageDTO struct {
	Key          string   `json:"key"`
	Year         int      `json:"year"`
	Average      *float64 `json:"average"`
	TotalRecords int64    `json:"total_records"`
}

// LeaderboardEntryDTO is one ranked row of a top-N report.
type LeaderboardEntryDTO struct {
	ID      string  `json:"id"`
	Average float64 `json:"average"`
	Count   int64   `json:"count"`
}

// DistributionDTO is the grade histogram report.
type DistributionDTO struct {
	Country      string           `json:"country"`
	Year         int              `json:"year"`
	Distribution map[string]int64 `json:"distribution"`
}

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
