/*
handlers.go - HTTP API handlers for the payroll engine

PURPOSE:
  Exposes pay run management and the collaborator data the engine reads
  via REST API. Handles HTTP request/response, JSON serialization, and
  delegates to engine.RunService and the SQLite store.

ENDPOINTS:
  Runs:
    GET    /api/runs                       List runs (?subsidiary_id=&state=)
    POST   /api/runs                       Create draft run
    GET    /api/runs/{id}                  Run status and progress
    DELETE /api/runs/{id}                  Delete draft run
    GET    /api/runs/{id}/concepts         Configured concepts
    PUT    /api/runs/{id}/concepts         Configure concepts (draft only)
    POST   /api/runs/{id}/launch           Launch or resume calculation
    POST   /api/runs/{id}/abort            Stop after the current batch
    POST   /api/runs/{id}/approve          calculated -> approved
    POST   /api/runs/{id}/pay              approved -> paid
    POST   /api/runs/{id}/cancel           -> cancelled / cancelled_for_correction
    GET    /api/runs/{id}/details          All pay details
    GET    /api/runs/{id}/details/{emp}    One pay detail
    GET    /api/runs/{id}/failures         Employees without a detail

  Collaborator data:
    GET|POST /api/subsidiaries             Work week and rates
    GET      /api/subsidiaries/{id}
    GET      /api/subsidiaries/{id}/employees
    POST     /api/employees                Create or update employee
    DELETE   /api/employees/{id}           Soft delete
    POST     /api/activities               Bulk activity upload
    GET      /api/employees/{id}/activities?start=&end=
    GET|POST /api/holidays                 ?subsidiary_id=
    POST     /api/holidays/defaults        Add default holiday set
    DELETE   /api/holidays/{id}

  Concept presets:
    GET    /api/concepts/presets/{name}    standard | piecework

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input, invalid period
  - 404: Run, detail, employee or subsidiary not found
  - 409: Run state conflicts (not launchable, not editable, active run exists)
  - 422: Concept configuration the engine cannot execute
  - 500: Internal errors

SECURITY NOTE:
  No authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/warp/payroll-engine/concepts"
	"github.com/warp/payroll-engine/engine"
	"github.com/warp/payroll-engine/factory"
	"github.com/warp/payroll-engine/observability"
	"github.com/warp/payroll-engine/store/sqlite"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store          *sqlite.Store
	Runs           *engine.RunService
	Calendar       *engine.WorkCalendar
	ConceptFactory *factory.ConceptFactory
	Logger         *zap.Logger

	mu              sync.Mutex
	currentScenario string
}

// NewHandler creates a new handler over a wired engine.
func NewHandler(store *sqlite.Store, eng *Engine, logger *zap.Logger) *Handler {
	return &Handler{
		Store:          store,
		Runs:           eng.Service,
		Calendar:       eng.Calendar,
		ConceptFactory: factory.NewConceptFactory(),
		Logger:         observability.OrNop(logger),
	}
}

// =============================================================================
// RUN HANDLERS
// =============================================================================

// ListRuns returns runs, optionally filtered by subsidiary and state.
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	filter := engine.RunFilter{SubsidiaryID: engine.SubsidiaryID(r.URL.Query().Get("subsidiary_id"))}
	for _, s := range r.URL.Query()["state"] {
		state := engine.RunState(s)
		if !state.Valid() {
			writeError(w, http.StatusBadRequest, "Unknown run state", errors.New(s))
			return
		}
		filter.States = append(filter.States, state)
	}

	runs, err := h.Runs.ListRuns(r.Context(), filter)
	if err != nil {
		writeEngineError(w, "Failed to list runs", err)
		return
	}

	dtos := make([]RunDTO, len(runs))
	for i, run := range runs {
		dtos[i] = runDTO(run)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateRun opens a draft run for a subsidiary and period.
func (h *Handler) CreateRun(w http.ResponseWriter, r *http.Request) {
	var req CreateRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.SubsidiaryID == "" {
		writeError(w, http.StatusBadRequest, "subsidiary_id is required", nil)
		return
	}
	period, err := req.period()
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid period", err)
		return
	}

	run, err := h.Runs.CreateRun(r.Context(), engine.SubsidiaryID(req.SubsidiaryID), period)
	if err != nil {
		writeEngineError(w, "Failed to create run", err)
		return
	}
	writeJSON(w, http.StatusCreated, runDTO(run))
}

// GetRun returns the state, progress and summary of a run.
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	status, err := h.Runs.GetRunStatus(r.Context(), runID(r))
	if err != nil {
		writeEngineError(w, "Failed to get run", err)
		return
	}
	writeJSON(w, http.StatusOK, toRunDTO(status))
}

func (h *Handler) DeleteRun(w http.ResponseWriter, r *http.Request) {
	if err := h.Runs.DeleteRun(r.Context(), runID(r)); err != nil {
		writeEngineError(w, "Failed to delete run", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// GetRunConcepts returns the concepts configured for a run.
func (h *Handler) GetRunConcepts(w http.ResponseWriter, r *http.Request) {
	defs, err := h.Store.LoadConfiguredConcepts(r.Context(), runID(r))
	if err != nil {
		writeEngineError(w, "Failed to load concepts", err)
		return
	}
	writeJSON(w, http.StatusOK, h.ConceptFactory.ToJSON(defs))
}

// ConfigureConcepts replaces a draft run's concepts.
func (h *Handler) ConfigureConcepts(w http.ResponseWriter, r *http.Request) {
	var req ConfigureConceptsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	var (
		defs []engine.ConceptDefinition
		err  error
	)
	switch {
	case req.Preset != "":
		preset, ok := conceptPreset(req.Preset)
		if !ok {
			writeError(w, http.StatusBadRequest, "Unknown concept preset", errors.New(req.Preset))
			return
		}
		defs, err = h.ConceptFactory.ParseConcepts(preset)
	default:
		defs, err = h.ConceptFactory.FromJSON(req.Concepts)
	}
	if err != nil {
		writeEngineError(w, "Invalid concepts", err)
		return
	}

	if err := h.Runs.ConfigureConcepts(r.Context(), runID(r), defs); err != nil {
		writeEngineError(w, "Failed to configure concepts", err)
		return
	}
	writeJSON(w, http.StatusOK, h.ConceptFactory.ToJSON(engine.SortConcepts(defs)))
}

// LaunchRun starts or resumes the calculation. Repeating the call while the
// run is executing returns the current run unchanged.
func (h *Handler) LaunchRun(w http.ResponseWriter, r *http.Request) {
	id := runID(r)
	if _, err := h.Runs.LaunchCalculation(r.Context(), id); err != nil {
		writeEngineError(w, "Failed to launch run", err)
		return
	}
	status, err := h.Runs.GetRunStatus(r.Context(), id)
	if err != nil {
		writeEngineError(w, "Failed to get run", err)
		return
	}
	h.Logger.Info("pay run launched", zap.String("run_id", string(id)))
	writeJSON(w, http.StatusAccepted, toRunDTO(status))
}

func (h *Handler) AbortRun(w http.ResponseWriter, r *http.Request) {
	if err := h.Runs.Abort(r.Context(), runID(r)); err != nil {
		writeEngineError(w, "Failed to abort run", err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "abort_requested"})
}

func (h *Handler) ApproveRun(w http.ResponseWriter, r *http.Request) {
	var req ApproveRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if strings.TrimSpace(req.ApprovedBy) == "" {
		writeError(w, http.StatusBadRequest, "approved_by is required", nil)
		return
	}
	run, err := h.Runs.Approve(r.Context(), runID(r), req.ApprovedBy)
	if err != nil {
		writeEngineError(w, "Failed to approve run", err)
		return
	}
	writeJSON(w, http.StatusOK, runDTO(run))
}

func (h *Handler) PayRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.Runs.MarkPaid(r.Context(), runID(r))
	if err != nil {
		writeEngineError(w, "Failed to mark run paid", err)
		return
	}
	writeJSON(w, http.StatusOK, runDTO(run))
}

// CancelRun accepts an empty body.
func (h *Handler) CancelRun(w http.ResponseWriter, r *http.Request) {
	var req CancelRunRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body", err)
			return
		}
	}
	run, err := h.Runs.Cancel(r.Context(), runID(r), req.Reason)
	if err != nil {
		writeEngineError(w, "Failed to cancel run", err)
		return
	}
	writeJSON(w, http.StatusOK, runDTO(run))
}

func (h *Handler) ListDetails(w http.ResponseWriter, r *http.Request) {
	details, err := h.Runs.ListDetails(r.Context(), runID(r))
	if err != nil {
		writeEngineError(w, "Failed to list details", err)
		return
	}
	if details == nil {
		details = []engine.PayDetail{}
	}
	writeJSON(w, http.StatusOK, details)
}

func (h *Handler) GetDetail(w http.ResponseWriter, r *http.Request) {
	detail, err := h.Runs.GetDetail(r.Context(), runID(r), engine.EmployeeID(chi.URLParam(r, "employeeID")))
	if err != nil {
		writeEngineError(w, "Failed to get detail", err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (h *Handler) ListFailures(w http.ResponseWriter, r *http.Request) {
	id := runID(r)
	failures, err := h.Runs.ListFailures(r.Context(), id)
	if err != nil {
		writeEngineError(w, "Failed to list failures", err)
		return
	}
	if failures == nil {
		failures = []engine.EmployeeFailure{}
	}
	writeJSON(w, http.StatusOK, RunFailuresDTO{RunID: string(id), Failures: failures})
}

// GetConceptPreset returns a preset concept set as JSON.
func (h *Handler) GetConceptPreset(w http.ResponseWriter, r *http.Request) {
	preset, ok := conceptPreset(chi.URLParam(r, "name"))
	if !ok {
		writeError(w, http.StatusNotFound, "Unknown concept preset", nil)
		return
	}
	defs, err := h.ConceptFactory.ParseConcepts(preset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Invalid preset", err)
		return
	}
	writeJSON(w, http.StatusOK, h.ConceptFactory.ToJSON(defs))
}

func conceptPreset(name string) (string, bool) {
	switch name {
	case "standard":
		return concepts.StandardConceptsJSON(), true
	case "piecework":
		return concepts.PieceworkConceptsJSON(), true
	}
	return "", false
}

// =============================================================================
// SUBSIDIARY HANDLERS
// =============================================================================

func (h *Handler) ListSubsidiaries(w http.ResponseWriter, r *http.Request) {
	subs, err := h.Store.ListSubsidiaries(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list subsidiaries", err)
		return
	}
	dtos := make([]SubsidiaryDTO, len(subs))
	for i, s := range subs {
		dtos[i] = toSubsidiaryDTO(s)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) GetSubsidiary(w http.ResponseWriter, r *http.Request) {
	settings, err := h.Store.LoadCompanySettings(r.Context(), engine.SubsidiaryID(chi.URLParam(r, "id")))
	if err != nil {
		writeEngineError(w, "Failed to get subsidiary", err)
		return
	}
	writeJSON(w, http.StatusOK, toSubsidiaryDTO(settings))
}

// SaveSubsidiary creates or replaces a subsidiary's work week and rates.
func (h *Handler) SaveSubsidiary(w http.ResponseWriter, r *http.Request) {
	var req SubsidiaryDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.ID == "" || req.Name == "" {
		writeError(w, http.StatusBadRequest, "id and name are required", nil)
		return
	}
	settings, err := req.toSettings()
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid subsidiary", err)
		return
	}

	if err := h.Store.SaveSubsidiary(r.Context(), settings); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save subsidiary", err)
		return
	}
	h.Calendar.Invalidate(settings.SubsidiaryID)
	writeJSON(w, http.StatusCreated, toSubsidiaryDTO(settings))
}

// =============================================================================
// EMPLOYEE AND ACTIVITY HANDLERS
// =============================================================================

func (h *Handler) ListEmployees(w http.ResponseWriter, r *http.Request) {
	employees, err := h.Store.ListEmployees(r.Context(), engine.SubsidiaryID(chi.URLParam(r, "id")))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list employees", err)
		return
	}
	dtos := make([]EmployeeDTO, len(employees))
	for i, e := range employees {
		dtos[i] = toEmployeeDTO(e)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// SaveEmployee creates or updates an employee profile.
func (h *Handler) SaveEmployee(w http.ResponseWriter, r *http.Request) {
	var req EmployeeDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.ID == "" || req.SubsidiaryID == "" {
		writeError(w, http.StatusBadRequest, "id and subsidiary_id are required", nil)
		return
	}
	if req.Salary.IsNegative() {
		writeError(w, http.StatusBadRequest, "salary must not be negative", nil)
		return
	}

	if err := h.Store.SaveEmployee(r.Context(), req.toProfile()); err != nil {
		writeEngineError(w, "Failed to save employee", err)
		return
	}
	writeJSON(w, http.StatusCreated, req)
}

// DeleteEmployee soft-deletes an employee. Existing pay details remain.
func (h *Handler) DeleteEmployee(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.SoftDeleteEmployee(r.Context(), engine.EmployeeID(chi.URLParam(r, "id"))); err != nil {
		writeEngineError(w, "Failed to delete employee", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// CreateActivities uploads activity records in one transaction.
func (h *Handler) CreateActivities(w http.ResponseWriter, r *http.Request) {
	var req CreateActivitiesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if len(req.Activities) == 0 {
		writeError(w, http.StatusBadRequest, "activities must not be empty", nil)
		return
	}

	records := make([]engine.ActivityRecord, 0, len(req.Activities))
	for _, a := range req.Activities {
		rec, err := a.toRecord()
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid activity", err)
			return
		}
		if rec.ID == "" {
			rec.ID = uuid.NewString()
		}
		records = append(records, rec)
	}

	if err := h.Store.SaveActivities(r.Context(), records); err != nil {
		writeEngineError(w, "Failed to save activities", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]int{"saved": len(records)})
}

// ListActivities returns an employee's records between start and end.
func (h *Handler) ListActivities(w http.ResponseWriter, r *http.Request) {
	start, err := engine.ParseDate(r.URL.Query().Get("start"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid start date (use YYYY-MM-DD)", err)
		return
	}
	end, err := engine.ParseDate(r.URL.Query().Get("end"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid end date (use YYYY-MM-DD)", err)
		return
	}
	period := engine.Period{Start: start, End: end}
	if err := period.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid period", err)
		return
	}

	records, err := h.Store.LoadActivityRange(r.Context(), engine.EmployeeID(chi.URLParam(r, "id")), period)
	if err != nil {
		writeEngineError(w, "Failed to load activities", err)
		return
	}
	dtos := make([]ActivityDTO, len(records))
	for i, rec := range records {
		qualifying := rec.Qualifying
		dtos[i] = ActivityDTO{
			ID:           rec.ID,
			EmployeeID:   string(rec.EmployeeID),
			Date:         rec.Date.String(),
			Hours:        rec.Hours,
			Productivity: rec.Productivity,
			Qualifying:   &qualifying,
			Piecework:    rec.Piecework,
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// HOLIDAY ENDPOINTS
// =============================================================================

// ListHolidays returns the holidays of a subsidiary, global ones included.
func (h *Handler) ListHolidays(w http.ResponseWriter, r *http.Request) {
	holidays, err := h.Store.ListHolidays(r.Context(), engine.SubsidiaryID(r.URL.Query().Get("subsidiary_id")))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list holidays", err)
		return
	}
	dtos := make([]HolidayDTO, len(holidays))
	for i, hol := range holidays {
		dtos[i] = toHolidayDTO(hol)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) CreateHoliday(w http.ResponseWriter, r *http.Request) {
	var req HolidayDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required", nil)
		return
	}
	hol, err := req.toHoliday()
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid holiday", err)
		return
	}
	if hol.ID == "" {
		hol.ID = uuid.NewString()
	}

	if err := h.Store.SaveHoliday(r.Context(), hol); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save holiday", err)
		return
	}
	h.invalidateCalendar(hol.SubsidiaryID)
	writeJSON(w, http.StatusCreated, toHolidayDTO(hol))
}

// AddDefaultHolidays adds the default recurring holidays for the given year.
func (h *Handler) AddDefaultHolidays(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SubsidiaryID string `json:"subsidiary_id"`
		Year         int    `json:"year"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Year == 0 {
		writeError(w, http.StatusBadRequest, "year is required", nil)
		return
	}

	holidays := DefaultHolidays(engine.SubsidiaryID(req.SubsidiaryID), req.Year)
	for _, hol := range holidays {
		if err := h.Store.SaveHoliday(r.Context(), hol); err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to save holiday", err)
			return
		}
	}
	h.invalidateCalendar(engine.SubsidiaryID(req.SubsidiaryID))

	dtos := make([]HolidayDTO, len(holidays))
	for i, hol := range holidays {
		dtos[i] = toHolidayDTO(hol)
	}
	writeJSON(w, http.StatusCreated, dtos)
}

func (h *Handler) DeleteHoliday(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.DeleteHoliday(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to delete holiday", err)
		return
	}
	h.Calendar.InvalidateAll()
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (h *Handler) invalidateCalendar(subsidiary engine.SubsidiaryID) {
	if subsidiary == "" {
		h.Calendar.InvalidateAll()
		return
	}
	h.Calendar.Invalidate(subsidiary)
}

// =============================================================================
// HELPERS
// =============================================================================

func runID(r *http.Request) engine.RunID {
	return engine.RunID(chi.URLParam(r, "id"))
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

// writeEngineError maps engine errors to HTTP statuses.
func writeEngineError(w http.ResponseWriter, message string, err error) {
	status := statusFor(err)
	resp := ErrorResponse{Error: message, Details: err.Error(), Code: errorCode(err)}
	writeJSON(w, status, resp)
}

func statusFor(err error) int {
	switch {
	case engine.IsNotFound(err):
		return http.StatusNotFound
	case errors.Is(err, engine.ErrConfiguration):
		return http.StatusUnprocessableEntity
	case errors.Is(err, engine.ErrInvalidPeriod):
		return http.StatusBadRequest
	case engine.IsClientError(err):
		return http.StatusConflict
	case errors.Is(err, ErrQueueFull), errors.Is(err, ErrSchedulerStopped):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, engine.ErrRunNotFound):
		return "run_not_found"
	case errors.Is(err, engine.ErrDetailNotFound):
		return "detail_not_found"
	case errors.Is(err, engine.ErrEmployeeNotFound):
		return "employee_not_found"
	case errors.Is(err, engine.ErrSubsidiaryNotFound):
		return "subsidiary_not_found"
	case errors.Is(err, engine.ErrConfiguration):
		return "configuration_error"
	case errors.Is(err, engine.ErrRunConflict):
		return "run_conflict"
	case errors.Is(err, engine.ErrRunNotLaunchable):
		return "run_not_launchable"
	case errors.Is(err, engine.ErrRunNotEditable):
		return "run_not_editable"
	case errors.Is(err, engine.ErrRunNotRunning):
		return "run_not_running"
	case errors.Is(err, engine.ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, engine.ErrInvalidPeriod):
		return "invalid_period"
	}
	return ""
}
