/*
handlers.go - HTTP handlers for the audit and analytics surface

PURPOSE:
  The thin collaborator layer driving the two cores. Grade endpoints
  stand in for the document-store CRUD services of the wider deployment:
  they assign ids, record audit events (failure propagates) and feed the
  aggregator (failure never propagates).

HANDLER PATTERN:
  1. Parse and validate input
  2. Call into the cores (audit first: its failure must fail the call)
  3. Best-effort analytics
  4. Serialize response

ERROR HANDLING:
  - 400: Malformed body or parameters
  - 404: Empty audit partition
  - 500: Audit path failed (the mutation's trail was NOT recorded)

SEE ALSO:
  - dto.go: Request/response structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"math"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/edugrade/audit-engine/analytics"
	"github.com/edugrade/audit-engine/audit"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Ledger     *audit.Ledger
	Aggregator *analytics.Aggregator
	Counters   analytics.CounterStore
}

// NewHandler creates a handler over the two cores and the counter read
// surface.
func NewHandler(ledger *audit.Ledger, aggregator *analytics.Aggregator, counters analytics.CounterStore) *Handler {
	return &Handler{Ledger: ledger, Aggregator: aggregator, Counters: counters}
}

// =============================================================================
// GRADE ENDPOINTS (fact producers)
// =============================================================================

// CreateGrade handles POST /api/grades. The audit trail is mandatory:
// if RecordEvent fails the whole request fails. The analytics update is
// fired afterwards and cannot fail the request.
func (h *Handler) CreateGrade(w http.ResponseWriter, r *http.Request) {
	var req CreateGradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.StudentID == "" || req.InstitutionID == "" || req.SubjectID == "" {
		writeError(w, http.StatusBadRequest,
			"student_id, institution_id and subject_id are required", nil)
		return
	}
	actor := req.Actor
	if actor == "" {
		actor = "system"
	}

	gradeID := uuid.NewString()
	snapshot := gradeSnapshot(gradeID, req.GradeInput)

	event, err := h.Ledger.RecordEvent(r.Context(),
		"grade", gradeID, "CREATE", actor, map[string]any{"snapshot": snapshot})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to record audit trail", err)
		return
	}

	// Mirror event on the student's own chain, so /audit/student/{id}
	// shows grade activity without scanning grade partitions.
	if _, err := h.Ledger.RecordEvent(r.Context(),
		"student", req.StudentID, "GRADE_CREATED", actor, map[string]any{
			"grade_id":       gradeID,
			"subject_id":     req.SubjectID,
			"institution_id": req.InstitutionID,
			"value":          req.Value,
		}); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to record audit trail", err)
		return
	}

	h.Aggregator.OnFactCreated(r.Context(), toFact(gradeID, req.GradeInput))

	writeJSON(w, http.StatusCreated, CreateGradeResponse{
		Status:  "OK",
		GradeID: gradeID,
		Hash:    event.Hash,
	})
}

// CorrectGrade handles POST /api/grades/{id}/correct. A correction is a
// new audit event on the grade's chain plus a compensating roll-up
// update; the original fact is never edited.
func (h *Handler) CorrectGrade(w http.ResponseWriter, r *http.Request) {
	gradeID := chi.URLParam(r, "id")

	var req CorrectGradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	actor := req.Actor
	if actor == "" {
		actor = "system"
	}

	// The correction's fact id gates the roll-up compensation. A client
	// that retries must send its own correction_id so the retry hits
	// the barrier; a server-minted id only dedupes within one request.
	correctionID := req.CorrectionID
	if correctionID == "" {
		correctionID = uuid.NewString()
	}

	event, err := h.Ledger.RecordEvent(r.Context(),
		"grade", gradeID, "UPDATE", actor, map[string]any{
			"correction_id": correctionID,
			"previous":      gradeSnapshot(gradeID, req.Previous),
			"corrected":     gradeSnapshot(gradeID, req.Corrected),
		})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to record audit trail", err)
		return
	}

	h.Aggregator.OnFactCorrected(r.Context(),
		toFact(gradeID, req.Previous),
		toFact(correctionID, req.Corrected))

	writeJSON(w, http.StatusOK, CorrectGradeResponse{
		Status:       "OK",
		GradeID:      gradeID,
		CorrectionID: correctionID,
		Hash:         event.Hash,
	})
}

// =============================================================================
// AUDIT ENDPOINTS
// =============================================================================

// GetHistory handles GET /api/audit/{entityType}/{entityID}.
// Query params: order=asc|desc (default desc), limit (default 100).
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	entityType := chi.URLParam(r, "entityType")
	entityID := chi.URLParam(r, "entityID")

	order := audit.Order(r.URL.Query().Get("order"))
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid limit", err)
			return
		}
		limit = parsed
	}

	events, err := h.Ledger.History(r.Context(), entityType, entityID, order, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to read audit history", err)
		return
	}
	writeJSON(w, http.StatusOK, toEventDTOs(events))
}

// VerifyChain handles GET /api/audit/{entityType}/{entityID}/verify.
// Loads the full partition (up to the read bound) and replays it.
func (h *Handler) VerifyChain(w http.ResponseWriter, r *http.Request) {
	entityType := chi.URLParam(r, "entityType")
	entityID := chi.URLParam(r, "entityID")

	events, err := h.Ledger.History(r.Context(), entityType, entityID,
		audit.OrderAsc, audit.MaxHistoryLimit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to read audit history", err)
		return
	}
	if len(events) == 0 {
		writeError(w, http.StatusNotFound, "No audit events for entity", nil)
		return
	}

	report := audit.VerifyChain(events)
	// A full read window means the chain may extend past it; the report
	// then covers a verified prefix, not the whole chain.
	if len(events) == audit.MaxHistoryLimit {
		report.Truncated = true
	}
	writeJSON(w, http.StatusOK, report)
}

// =============================================================================
// REPORT ENDPOINTS (counter reads)
// =============================================================================

// CountryAverage handles GET /api/reports/average/{country}/{year}.
func (h *Handler) CountryAverage(w http.ResponseWriter, r *http.Request) {
	h.dimAverage(w, r, analytics.DimCountry, normalizeCountry(chi.URLParam(r, "country")))
}

// InstitutionAverage handles GET /api/reports/average-institution/{id}/{year}.
func (h *Handler) InstitutionAverage(w http.ResponseWriter, r *http.Request) {
	h.dimAverage(w, r, analytics.DimInstitution, chi.URLParam(r, "id"))
}

func (h *Handler) dimAverage(w http.ResponseWriter, r *http.Request, dim, dimID string) {
	year, ok := yearParam(w, r)
	if !ok {
		return
	}

	stats, err := h.Counters.DimYearStats(r.Context(), dim, dimID, year)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to read stats", err)
		return
	}

	dto := AverageDTO{Key: dimID, Year: year, TotalRecords: stats.Count}
	if avg, ok := stats.Average(); ok {
		rounded := round2(avg)
		dto.Average = &rounded
	}
	writeJSON(w, http.StatusOK, dto)
}

// TopStudents handles GET /api/reports/top10/{country}/{year}.
func (h *Handler) TopStudents(w http.ResponseWriter, r *http.Request) {
	country := normalizeCountry(chi.URLParam(r, "country"))
	year, ok := yearParam(w, r)
	if !ok {
		return
	}

	rows, err := h.Counters.StudentStatsByCountryYear(r.Context(), country, year)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to read stats", err)
		return
	}

	entries := make([]LeaderboardEntryDTO, 0, len(rows))
	for _, row := range rows {
		if e, ok := leaderboardEntry(row.StudentID, row.Stats); ok {
			entries = append(entries, e)
		}
	}
	writeJSON(w, http.StatusOK, rank(entries, 10))
}

// TopSubjects handles GET /api/reports/top-subjects. With country and
// year query params it reads the per-country keyspace, otherwise the
// global one.
func (h *Handler) TopSubjects(w http.ResponseWriter, r *http.Request) {
	limit := 10
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 100 {
			writeError(w, http.StatusBadRequest, "limit must be in [1,100]", err)
			return
		}
		limit = parsed
	}

	var rows []analytics.SubjectStats
	var err error
	country := normalizeCountry(r.URL.Query().Get("country"))
	yearRaw := r.URL.Query().Get("year")
	if country != "" && yearRaw != "" {
		year, convErr := strconv.Atoi(yearRaw)
		if convErr != nil {
			writeError(w, http.StatusBadRequest, "Invalid year", convErr)
			return
		}
		rows, err = h.Counters.SubjectStatsByCountryYear(r.Context(), country, year)
	} else {
		rows, err = h.Counters.SubjectStatsGlobal(r.Context())
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to read stats", err)
		return
	}

	entries := make([]LeaderboardEntryDTO, 0, len(rows))
	for _, row := range rows {
		if e, ok := leaderboardEntry(row.SubjectID, row.Stats); ok {
			entries = append(entries, e)
		}
	}
	writeJSON(w, http.StatusOK, rank(entries, limit))
}

// Distribution handles GET /api/reports/distribution/{country}/{year}.
func (h *Handler) Distribution(w http.ResponseWriter, r *http.Request) {
	country := normalizeCountry(chi.URLParam(r, "country"))
	year, ok := yearParam(w, r)
	if !ok {
		return
	}

	hist, err := h.Counters.Histogram(r.Context(), country, year)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to read histogram", err)
		return
	}

	dist := make(map[string]int64, len(hist))
	for bucket, count := range hist {
		dist[strconv.Itoa(bucket)] = count
	}
	writeJSON(w, http.StatusOK, DistributionDTO{
		Country:      country,
		Year:         year,
		Distribution: dist,
	})
}

// =============================================================================
// ADMIN ENDPOINTS
// =============================================================================

// RebuildRollups handles POST /api/admin/rollups/rebuild: resets the
// derived counters and replays the supplied fact stream.
func (h *Handler) RebuildRollups(w http.ResponseWriter, r *http.Request) {
	var req RebuildRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	facts := make([]analytics.FactSnapshot, len(req.Facts))
	for i, f := range req.Facts {
		facts[i] = analytics.FactSnapshot{
			ID:            f.ID,
			Country:       f.Country,
			InstitutionID: f.InstitutionID,
			StudentID:     f.StudentID,
			SubjectID:     f.SubjectID,
			SystemID:      f.SystemID,
			Year:          f.Year,
			Value:         f.Value,
		}
		if f.IssuedAt != nil {
			facts[i].IssuedAt = *f.IssuedAt
		}
	}

	if err := h.Aggregator.Rebuild(r.Context(), facts); err != nil {
		writeError(w, http.StatusInternalServerError, "Rebuild failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "OK", "facts": len(facts)})
}

// =============================================================================
// HELPERS
// =============================================================================

func gradeSnapshot(gradeID string, in GradeInput) map[string]any {
	snapshot := map[string]any{
		"grade_id":       gradeID,
		"student_id":     in.StudentID,
		"institution_id": in.InstitutionID,
		"subject_id":     in.SubjectID,
		"country":        normalizeCountry(in.Country),
		"value":          in.Value,
	}
	if in.SystemID != "" {
		snapshot["system_id"] = in.SystemID
	}
	if in.Year != 0 {
		snapshot["year"] = in.Year
	}
	if in.IssuedAt != nil {
		snapshot["issued_at"] = in.IssuedAt.UTC().Format(time.RFC3339Nano)
	}
	if len(in.Metadata) > 0 {
		snapshot["metadata"] = in.Metadata
	}
	return snapshot
}

func toFact(id string, in GradeInput) analytics.FactSnapshot {
	fact := analytics.FactSnapshot{
		ID:            id,
		Country:       in.Country,
		InstitutionID: in.InstitutionID,
		StudentID:     in.StudentID,
		SubjectID:     in.SubjectID,
		SystemID:      in.SystemID,
		Year:          in.Year,
		Value:         in.Value,
	}
	if in.IssuedAt != nil {
		fact.IssuedAt = *in.IssuedAt
	}
	return fact
}

// leaderboardEntry converts one counter row, dropping empty counters.
func leaderboardEntry(id string, s analytics.Stats) (LeaderboardEntryDTO, bool) {
	avg, ok := s.Average()
	if !ok {
		return LeaderboardEntryDTO{}, false
	}
	return LeaderboardEntryDTO{ID: id, Average: round2(avg), Count: s.Count}, true
}

// rank sorts by average descending and keeps the top n.
func rank(entries []LeaderboardEntryDTO, n int) []LeaderboardEntryDTO {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Average > entries[j].Average
	})
	if len(entries) > n {
		entries = entries[:n]
	}
	return entries
}

func yearParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	year, err := strconv.Atoi(chi.URLParam(r, "year"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid year", err)
		return 0, false
	}
	return year, true
}

func normalizeCountry(c string) string {
	fact := analytics.FactSnapshot{Country: c}
	return fact.NormalizedCountry()
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
