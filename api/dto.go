/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the engine's domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients (some double as request bodies)
  - *Request: Request body types from clients

TYPES:
  Runs:         RunDTO, CreateRunRequest, ApproveRunRequest, CancelRunRequest
  Concepts:     ConfigureConceptsRequest
  Subsidiaries: SubsidiaryDTO
  Employees:    EmployeeDTO
  Activities:   ActivityDTO, CreateActivitiesRequest
  Holidays:     HolidayDTO
  Scenarios:    ScenarioDTO, LoadScenarioRequest

MONEY:
  Amounts are decimal.Decimal, serialised as JSON strings ("2727.27") so
  clients never see float rounding.

VALIDATION:
  Validation is done in handlers and the engine, not in DTOs. DTOs are pure
  data carriers; the converters below only parse formats.

SEE ALSO:
  - handlers.go: Uses these types
  - factory/concept.go: ConceptJSON type
*/
package api

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/payroll-engine/engine"
	"github.com/warp/payroll-engine/factory"
)

// =============================================================================
// RUNS
// =============================================================================

// CreateRunRequest opens a draft run. Either give period_start and
// period_end, or year and month.
type CreateRunRequest struct {
	SubsidiaryID string `json:"subsidiary_id"`
	PeriodStart  string `json:"period_start,omitempty"`
	PeriodEnd    string `json:"period_end,omitempty"`
	Year         int    `json:"year,omitempty"`
	Month        int    `json:"month,omitempty"`
}

// RunDTO represents a pay run in API responses.
type RunDTO struct {
	ID             string             `json:"id"`
	SubsidiaryID   string             `json:"subsidiary_id"`
	PeriodStart    string             `json:"period_start"`
	PeriodEnd      string             `json:"period_end"`
	State          string             `json:"state"`
	Running        bool               `json:"running"`
	Halted         bool               `json:"halted"`
	LastError      string             `json:"last_error,omitempty"`
	Outcome        string             `json:"outcome,omitempty"`
	TotalEmployees int                `json:"total_employees"`
	Progress       engine.Progress    `json:"progress"`
	Summary        *engine.RunSummary `json:"summary,omitempty"`
	CreatedAt      string             `json:"created_at"`
	UpdatedAt      string             `json:"updated_at"`
	StartedAt      *string            `json:"started_at,omitempty"`
	CalculatedAt   *string            `json:"calculated_at,omitempty"`
	ApprovedAt     *string            `json:"approved_at,omitempty"`
	ApprovedBy     string             `json:"approved_by,omitempty"`
	PaidAt         *string            `json:"paid_at,omitempty"`
	CancelledAt    *string            `json:"cancelled_at,omitempty"`
	CancelReason   string             `json:"cancel_reason,omitempty"`
}

type ApproveRunRequest struct {
	ApprovedBy string `json:"approved_by"`
}

type CancelRunRequest struct {
	Reason string `json:"reason"`
}

// ConfigureConceptsRequest sets a draft run's concepts, either from a named
// preset ("standard", "piecework") or an explicit list.
type ConfigureConceptsRequest struct {
	Preset   string                `json:"preset,omitempty"`
	Concepts []factory.ConceptJSON `json:"concepts,omitempty"`
}

// RunFailuresDTO lists the employees of a run that produced no detail.
type RunFailuresDTO struct {
	RunID    string                   `json:"run_id"`
	Failures []engine.EmployeeFailure `json:"failures"`
}

// =============================================================================
// COLLABORATOR DATA
// =============================================================================

// SubsidiaryDTO is a subsidiary's work week and rates. Rates are
// percentages keyed by plan identifier.
type SubsidiaryDTO struct {
	ID                    string                     `json:"id"`
	Name                  string                     `json:"name"`
	NonWorkingDays        []string                   `json:"non_working_days,omitempty"`
	NormalDailyHours      decimal.Decimal            `json:"normal_daily_hours"`
	OvertimeTier1Hours    decimal.Decimal            `json:"overtime_tier1_hours"`
	OvertimeRate          decimal.Decimal            `json:"overtime_rate"`
	ProductivityThreshold decimal.Decimal            `json:"productivity_threshold"`
	RetirementRates       map[string]decimal.Decimal `json:"retirement_rates,omitempty"`
	HealthRates           map[string]decimal.Decimal `json:"health_rates,omitempty"`
	InsuranceRates        map[string]decimal.Decimal `json:"insurance_rates,omitempty"`
	EmployerHealthRates   map[string]decimal.Decimal `json:"employer_health_rates,omitempty"`
}

type EmployeeDTO struct {
	ID              string          `json:"id"`
	SubsidiaryID    string          `json:"subsidiary_id"`
	Name            string          `json:"name"`
	Position        string          `json:"position,omitempty"`
	Salary          decimal.Decimal `json:"salary"`
	RetirementPlan  string          `json:"retirement_plan,omitempty"`
	HealthPlan      string          `json:"health_plan,omitempty"`
	InsurancePlan   string          `json:"insurance_plan,omitempty"`
	FamilyAllowance bool            `json:"family_allowance"`
}

// ActivityDTO is one attendance or piecework record. Qualifying defaults to
// true when omitted.
type ActivityDTO struct {
	ID           string                 `json:"id,omitempty"`
	EmployeeID   string                 `json:"employee_id"`
	Date         string                 `json:"date"`
	Hours        decimal.Decimal        `json:"hours"`
	Productivity decimal.Decimal        `json:"productivity"`
	Qualifying   *bool                  `json:"qualifying,omitempty"`
	Piecework    *engine.PieceworkCount `json:"piecework,omitempty"`
}

type CreateActivitiesRequest struct {
	Activities []ActivityDTO `json:"activities"`
}

type HolidayDTO struct {
	ID           string `json:"id"`
	SubsidiaryID string `json:"subsidiary_id,omitempty"`
	Date         string `json:"date"`
	Name         string `json:"name"`
	Recurring    bool   `json:"recurring"`
}

// =============================================================================
// SCENARIOS
// =============================================================================

// ScenarioDTO describes a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func (req CreateRunRequest) period() (engine.Period, error) {
	if req.Year != 0 || req.Month != 0 {
		if req.Month < 1 || req.Month > 12 || req.Year < 1 {
			return engine.Period{}, fmt.Errorf("invalid year/month %d-%02d", req.Year, req.Month)
		}
		return engine.MonthPeriod(req.Year, time.Month(req.Month)), nil
	}
	start, err := engine.ParseDate(req.PeriodStart)
	if err != nil {
		return engine.Period{}, fmt.Errorf("invalid period_start: %w", err)
	}
	end, err := engine.ParseDate(req.PeriodEnd)
	if err != nil {
		return engine.Period{}, fmt.Errorf("invalid period_end: %w", err)
	}
	return engine.Period{Start: start, End: end}, nil
}

func toRunDTO(status engine.RunStatus) RunDTO {
	run := status.Run
	return RunDTO{
		ID:             string(run.ID),
		SubsidiaryID:   string(run.SubsidiaryID),
		PeriodStart:    run.Period.Start.String(),
		PeriodEnd:      run.Period.End.String(),
		State:          string(run.State),
		Running:        status.Running,
		Halted:         run.Halted,
		LastError:      run.LastError,
		Outcome:        string(status.Outcome),
		TotalEmployees: run.TotalEmployees,
		Progress:       run.Progress,
		Summary:        run.Summary,
		CreatedAt:      run.CreatedAt.Format(time.RFC3339),
		UpdatedAt:      run.UpdatedAt.Format(time.RFC3339),
		StartedAt:      formatTimePtr(run.StartedAt),
		CalculatedAt:   formatTimePtr(run.CalculatedAt),
		ApprovedAt:     formatTimePtr(run.ApprovedAt),
		ApprovedBy:     run.ApprovedBy,
		PaidAt:         formatTimePtr(run.PaidAt),
		CancelledAt:    formatTimePtr(run.CancelledAt),
		CancelReason:   run.CancelReason,
	}
}

func runDTO(run engine.PayRun) RunDTO {
	status := engine.RunStatus{Run: run}
	if run.Summary != nil {
		status.Outcome = run.Summary.Outcome
	}
	return toRunDTO(status)
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(time.RFC3339)
	return &s
}

var weekdays = map[string]time.Weekday{
	"sunday": time.Sunday, "monday": time.Monday, "tuesday": time.Tuesday,
	"wednesday": time.Wednesday, "thursday": time.Thursday, "friday": time.Friday,
	"saturday": time.Saturday,
}

func (dto SubsidiaryDTO) toSettings() (engine.CompanySettings, error) {
	var days []time.Weekday
	if dto.NonWorkingDays != nil {
		days = make([]time.Weekday, 0, len(dto.NonWorkingDays))
		for _, name := range dto.NonWorkingDays {
			wd, ok := weekdays[strings.ToLower(strings.TrimSpace(name))]
			if !ok {
				return engine.CompanySettings{}, fmt.Errorf("unknown weekday %q", name)
			}
			days = append(days, wd)
		}
	}
	return engine.CompanySettings{
		SubsidiaryID:          engine.SubsidiaryID(dto.ID),
		Name:                  dto.Name,
		NonWorkingDays:        days,
		NormalDailyHours:      dto.NormalDailyHours,
		OvertimeTier1Hours:    dto.OvertimeTier1Hours,
		OvertimeRate:          dto.OvertimeRate,
		ProductivityThreshold: dto.ProductivityThreshold,
		RetirementRates:       dto.RetirementRates,
		HealthRates:           dto.HealthRates,
		InsuranceRates:        dto.InsuranceRates,
		EmployerHealthRates:   dto.EmployerHealthRates,
	}, nil
}

func toSubsidiaryDTO(c engine.CompanySettings) SubsidiaryDTO {
	days := make([]string, 0, len(c.NonWorkingDays))
	sorted := append([]time.Weekday(nil), c.NonWorkingDays...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	for _, d := range sorted {
		days = append(days, strings.ToLower(d.String()))
	}
	return SubsidiaryDTO{
		ID:                    string(c.SubsidiaryID),
		Name:                  c.Name,
		NonWorkingDays:        days,
		NormalDailyHours:      c.NormalDailyHours,
		OvertimeTier1Hours:    c.OvertimeTier1Hours,
		OvertimeRate:          c.OvertimeRate,
		ProductivityThreshold: c.ProductivityThreshold,
		RetirementRates:       c.RetirementRates,
		HealthRates:           c.HealthRates,
		InsuranceRates:        c.InsuranceRates,
		EmployerHealthRates:   c.EmployerHealthRates,
	}
}

func (dto EmployeeDTO) toProfile() engine.EmployeeProfile {
	return engine.EmployeeProfile{
		EmployeeID:      engine.EmployeeID(dto.ID),
		SubsidiaryID:    engine.SubsidiaryID(dto.SubsidiaryID),
		Name:            dto.Name,
		Position:        dto.Position,
		Salary:          dto.Salary,
		RetirementPlan:  dto.RetirementPlan,
		HealthPlan:      dto.HealthPlan,
		InsurancePlan:   dto.InsurancePlan,
		FamilyAllowance: dto.FamilyAllowance,
	}
}

func toEmployeeDTO(p engine.EmployeeProfile) EmployeeDTO {
	return EmployeeDTO{
		ID:              string(p.EmployeeID),
		SubsidiaryID:    string(p.SubsidiaryID),
		Name:            p.Name,
		Position:        p.Position,
		Salary:          p.Salary,
		RetirementPlan:  p.RetirementPlan,
		HealthPlan:      p.HealthPlan,
		InsurancePlan:   p.InsurancePlan,
		FamilyAllowance: p.FamilyAllowance,
	}
}

func (dto ActivityDTO) toRecord() (engine.ActivityRecord, error) {
	date, err := engine.ParseDate(dto.Date)
	if err != nil {
		return engine.ActivityRecord{}, fmt.Errorf("invalid date %q: %w", dto.Date, err)
	}
	qualifying := true
	if dto.Qualifying != nil {
		qualifying = *dto.Qualifying
	}
	return engine.ActivityRecord{
		ID:           dto.ID,
		EmployeeID:   engine.EmployeeID(dto.EmployeeID),
		Date:         date,
		Hours:        dto.Hours,
		Productivity: dto.Productivity,
		Qualifying:   qualifying,
		Piecework:    dto.Piecework,
	}, nil
}

func (dto HolidayDTO) toHoliday() (engine.Holiday, error) {
	date, err := engine.ParseDate(dto.Date)
	if err != nil {
		return engine.Holiday{}, fmt.Errorf("invalid date %q: %w", dto.Date, err)
	}
	return engine.Holiday{
		ID:           dto.ID,
		SubsidiaryID: engine.SubsidiaryID(dto.SubsidiaryID),
		Date:         date,
		Name:         dto.Name,
		Recurring:    dto.Recurring,
	}, nil
}

func toHolidayDTO(h engine.Holiday) HolidayDTO {
	return HolidayDTO{
		ID:           h.ID,
		SubsidiaryID: string(h.SubsidiaryID),
		Date:         h.Date.String(),
		Name:         h.Name,
		Recurring:    h.Recurring,
	}
}
