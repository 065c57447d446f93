package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/payroll-engine/engine"
)

// =============================================================================
// SUBSIDIARIES (engine.CompanySource)
// =============================================================================

type ratesJSON struct {
	Retirement     map[string]decimal.Decimal `json:"retirement,omitempty"`
	Health         map[string]decimal.Decimal `json:"health,omitempty"`
	Insurance      map[string]decimal.Decimal `json:"insurance,omitempty"`
	EmployerHealth map[string]decimal.Decimal `json:"employer_health,omitempty"`
}

// SaveSubsidiary inserts or updates a subsidiary's settings.
func (s *Store) SaveSubsidiary(ctx context.Context, c engine.CompanySettings) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	days := make([]int, 0, len(c.NonWorkingDays))
	for _, d := range c.NonWorkingDays {
		days = append(days, int(d))
	}
	var daysJSON []byte
	if c.NonWorkingDays == nil {
		daysJSON = []byte("null")
	} else {
		daysJSON, _ = json.Marshal(days)
	}
	rates, _ := json.Marshal(ratesJSON{
		Retirement:     c.RetirementRates,
		Health:         c.HealthRates,
		Insurance:      c.InsuranceRates,
		EmployerHealth: c.EmployerHealthRates,
	})

	query := `
		INSERT INTO subsidiaries (id, name, non_working_days_json, normal_daily_hours, overtime_tier1_hours,
		                          overtime_rate, productivity_threshold, rates_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			non_working_days_json = excluded.non_working_days_json,
			normal_daily_hours = excluded.normal_daily_hours,
			overtime_tier1_hours = excluded.overtime_tier1_hours,
			overtime_rate = excluded.overtime_rate,
			productivity_threshold = excluded.productivity_threshold,
			rates_json = excluded.rates_json
	`
	_, err := s.db.ExecContext(ctx, query,
		c.SubsidiaryID, c.Name, string(daysJSON),
		c.NormalDailyHours.String(), c.OvertimeTier1Hours.String(),
		c.OvertimeRate.String(), c.ProductivityThreshold.String(),
		string(rates), formatTime(time.Now()),
	)
	return err
}

func (s *Store) LoadCompanySettings(ctx context.Context, subsidiary engine.SubsidiaryID) (engine.CompanySettings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, subsidiarySelect+" WHERE id = ?", subsidiary)
	if err != nil {
		return engine.CompanySettings{}, engine.Transient("load company settings", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return engine.CompanySettings{}, engine.Transient("load company settings", err)
		}
		return engine.CompanySettings{}, engine.ErrSubsidiaryNotFound
	}
	return scanSubsidiary(rows)
}

// ListSubsidiaries returns every subsidiary ordered by ID.
func (s *Store) ListSubsidiaries(ctx context.Context) ([]engine.CompanySettings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, subsidiarySelect+" ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []engine.CompanySettings
	for rows.Next() {
		c, err := scanSubsidiary(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

const subsidiarySelect = `
	SELECT id, name, non_working_days_json, normal_daily_hours, overtime_tier1_hours,
	       overtime_rate, productivity_threshold, rates_json
	FROM subsidiaries`

func scanSubsidiary(rows *sql.Rows) (engine.CompanySettings, error) {
	var (
		c                  engine.CompanySettings
		daysJSON, ratesRaw string
	)
	if err := rows.Scan(&c.SubsidiaryID, &c.Name, &daysJSON, &c.NormalDailyHours, &c.OvertimeTier1Hours,
		&c.OvertimeRate, &c.ProductivityThreshold, &ratesRaw); err != nil {
		return engine.CompanySettings{}, corrupt(err)
	}

	var days []int
	if err := json.Unmarshal([]byte(daysJSON), &days); err != nil {
		return engine.CompanySettings{}, fmt.Errorf("subsidiary %s: bad work week: %w", c.SubsidiaryID, err)
	}
	if days != nil {
		c.NonWorkingDays = make([]time.Weekday, 0, len(days))
		for _, d := range days {
			c.NonWorkingDays = append(c.NonWorkingDays, time.Weekday(d))
		}
	}

	var rates ratesJSON
	if err := json.Unmarshal([]byte(ratesRaw), &rates); err != nil {
		return engine.CompanySettings{}, fmt.Errorf("subsidiary %s: bad rates: %w", c.SubsidiaryID, err)
	}
	c.RetirementRates = rates.Retirement
	c.HealthRates = rates.Health
	c.InsuranceRates = rates.Insurance
	c.EmployerHealthRates = rates.EmployerHealth
	return c, nil
}

// =============================================================================
// EMPLOYEES (engine.EmployeeSource, engine.ProfileSource)
// =============================================================================

// SaveEmployee inserts or updates an employee profile. Saving clears a
// previous soft delete.
func (s *Store) SaveEmployee(ctx context.Context, p engine.EmployeeProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO employees (id, subsidiary_id, name, position, salary, retirement_plan,
		                       health_plan, insurance_plan, family_allowance, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			subsidiary_id = excluded.subsidiary_id,
			name = excluded.name,
			position = excluded.position,
			salary = excluded.salary,
			retirement_plan = excluded.retirement_plan,
			health_plan = excluded.health_plan,
			insurance_plan = excluded.insurance_plan,
			family_allowance = excluded.family_allowance,
			deleted_at = NULL
	`
	_, err := s.db.ExecContext(ctx, query,
		p.EmployeeID, p.SubsidiaryID, p.Name, nullString(p.Position), p.Salary.String(),
		nullString(p.RetirementPlan), nullString(p.HealthPlan), nullString(p.InsurancePlan),
		p.FamilyAllowance, formatTime(time.Now()),
	)
	if isForeignKeyError(err) {
		return engine.ErrSubsidiaryNotFound
	}
	return err
}

// SoftDeleteEmployee stamps deleted_at. The employee disappears from every
// engine source but existing pay details stay intact.
func (s *Store) SoftDeleteEmployee(ctx context.Context, id engine.EmployeeID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		"UPDATE employees SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL",
		formatTime(time.Now()), id,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return engine.ErrEmployeeNotFound
	}
	return nil
}

func (s *Store) LoadEmployeeProfile(ctx context.Context, employee engine.EmployeeID) (engine.EmployeeProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, employeeSelect+" WHERE id = ? AND deleted_at IS NULL", employee)
	if err != nil {
		return engine.EmployeeProfile{}, engine.Transient("load employee profile", err)
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return engine.EmployeeProfile{}, engine.Transient("load employee profile", err)
		}
		return engine.EmployeeProfile{}, engine.ErrEmployeeNotFound
	}
	return scanEmployee(rows)
}

// ListEmployees returns the active employees of a subsidiary ordered by ID.
func (s *Store) ListEmployees(ctx context.Context, subsidiary engine.SubsidiaryID) ([]engine.EmployeeProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		employeeSelect+" WHERE subsidiary_id = ? AND deleted_at IS NULL ORDER BY id", subsidiary)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []engine.EmployeeProfile
	for rows.Next() {
		p, err := scanEmployee(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

const employeeSelect = `
	SELECT id, subsidiary_id, name, position, salary, retirement_plan, health_plan,
	       insurance_plan, family_allowance
	FROM employees`

func scanEmployee(rows *sql.Rows) (engine.EmployeeProfile, error) {
	var (
		p                                    engine.EmployeeProfile
		position, retirement, health, insure sql.NullString
	)
	if err := rows.Scan(&p.EmployeeID, &p.SubsidiaryID, &p.Name, &position, &p.Salary,
		&retirement, &health, &insure, &p.FamilyAllowance); err != nil {
		return engine.EmployeeProfile{}, corrupt(err)
	}
	p.Position = position.String
	p.RetirementPlan = retirement.String
	p.HealthPlan = health.String
	p.InsurancePlan = insure.String
	return p, nil
}

// ResolveEmployeesInPeriod implements keyset pagination over active
// employees with at least one qualifying activity in the period.
func (s *Store) ResolveEmployeesInPeriod(ctx context.Context, subsidiary engine.SubsidiaryID, period engine.Period, after engine.EmployeeID, limit int) ([]engine.EmployeeID, error) {
	if err := period.Validate(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM subsidiaries WHERE id = ?", subsidiary).Scan(&count); err != nil {
		return nil, engine.Transient("resolve employees", err)
	}
	if count == 0 {
		return nil, engine.ErrSubsidiaryNotFound
	}

	query := `
		SELECT e.id FROM employees e
		WHERE e.subsidiary_id = ?
		  AND e.deleted_at IS NULL
		  AND e.id > ?
		  AND EXISTS (
			SELECT 1 FROM activities a
			WHERE a.employee_id = e.id
			  AND a.qualifying = 1
			  AND a.date >= ? AND a.date <= ?
		  )
		ORDER BY e.id ASC
		LIMIT ?
	`
	rows, err := s.db.QueryContext(ctx, query, subsidiary, after, period.Start.String(), period.End.String(), limit)
	if err != nil {
		return nil, engine.Transient("resolve employees", err)
	}
	defer rows.Close()

	var ids []engine.EmployeeID
	for rows.Next() {
		var id engine.EmployeeID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// =============================================================================
// ACTIVITIES (engine.ActivityRangeSource)
// =============================================================================

// SaveActivities inserts or replaces activity records atomically.
func (s *Store) SaveActivities(ctx context.Context, records []engine.ActivityRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	query := `
		INSERT INTO activities (id, employee_id, date, hours, productivity, qualifying,
		                        piece_minimum, piece_unit_price, piece_produced, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			employee_id = excluded.employee_id,
			date = excluded.date,
			hours = excluded.hours,
			productivity = excluded.productivity,
			qualifying = excluded.qualifying,
			piece_minimum = excluded.piece_minimum,
			piece_unit_price = excluded.piece_unit_price,
			piece_produced = excluded.piece_produced
	`
	now := formatTime(time.Now())
	for _, r := range records {
		var minimum, price, produced sql.NullString
		if r.Piecework != nil {
			minimum = sql.NullString{String: r.Piecework.MinimumUnits.String(), Valid: true}
			price = sql.NullString{String: r.Piecework.UnitPrice.String(), Valid: true}
			produced = sql.NullString{String: r.Piecework.Produced.String(), Valid: true}
		}
		_, err := sqlTx.ExecContext(ctx, query,
			r.ID, r.EmployeeID, r.Date.String(), r.Hours.String(), r.Productivity.String(),
			r.Qualifying, minimum, price, produced, now,
		)
		if isForeignKeyError(err) {
			return fmt.Errorf("activity %s: %w", r.ID, engine.ErrEmployeeNotFound)
		}
		if err != nil {
			return fmt.Errorf("failed to save activity %s: %w", r.ID, err)
		}
	}
	return sqlTx.Commit()
}

func (s *Store) LoadDailyActivity(ctx context.Context, employee engine.EmployeeID, date engine.Date) ([]engine.ActivityRecord, error) {
	return s.LoadActivityRange(ctx, employee, engine.Period{Start: date, End: date})
}

func (s *Store) LoadActivityRange(ctx context.Context, employee engine.EmployeeID, period engine.Period) ([]engine.ActivityRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, employee_id, date, hours, productivity, qualifying,
		       piece_minimum, piece_unit_price, piece_produced
		FROM activities
		WHERE employee_id = ? AND date >= ? AND date <= ?
		ORDER BY date ASC, id ASC
	`
	rows, err := s.db.QueryContext(ctx, query, employee, period.Start.String(), period.End.String())
	if err != nil {
		return nil, engine.Transient("load activity", err)
	}
	defer rows.Close()

	var out []engine.ActivityRecord
	for rows.Next() {
		var (
			r                        engine.ActivityRecord
			date                     string
			minimum, price, produced decimal.NullDecimal
		)
		if err := rows.Scan(&r.ID, &r.EmployeeID, &date, &r.Hours, &r.Productivity, &r.Qualifying,
			&minimum, &price, &produced); err != nil {
			return nil, corrupt(err)
		}
		r.Date = parseDate(date)
		if produced.Valid {
			r.Piecework = &engine.PieceworkCount{MinimumUnits: minimum.Decimal, UnitPrice: price.Decimal, Produced: produced.Decimal}
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// =============================================================================
// HOLIDAYS (engine.HolidayCalendar)
// =============================================================================

// SaveHoliday saves a holiday to the database.
func (s *Store) SaveHoliday(ctx context.Context, h engine.Holiday) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO holidays (id, subsidiary_id, date, name, recurring, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(subsidiary_id, date, name) DO UPDATE SET
			recurring = excluded.recurring
	`
	_, err := s.db.ExecContext(ctx, query,
		h.ID, h.SubsidiaryID, h.Date.String(), h.Name, h.Recurring, formatTime(time.Now()),
	)
	return err
}

// DeleteHoliday deletes a holiday by ID.
func (s *Store) DeleteHoliday(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, "DELETE FROM holidays WHERE id = ?", id)
	return err
}

// IsHoliday checks if a date is a holiday for the given subsidiary.
func (s *Store) IsHoliday(ctx context.Context, subsidiary engine.SubsidiaryID, date engine.Date) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT COUNT(*) FROM holidays
		WHERE (subsidiary_id = ? OR subsidiary_id = '')
		  AND (
			(recurring = 0 AND date = ?)
			OR (recurring = 1 AND strftime('%m-%d', date) = ?)
		  )
	`
	var count int
	err := s.db.QueryRowContext(ctx, query, subsidiary, date.String(), date.Time.Format("01-02")).Scan(&count)
	if err != nil {
		return false, engine.Transient("holiday lookup", err)
	}
	return count > 0, nil
}

// ListHolidays returns the holidays that apply to a subsidiary, global ones
// included.
func (s *Store) ListHolidays(ctx context.Context, subsidiary engine.SubsidiaryID) ([]engine.Holiday, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, subsidiary_id, date, name, recurring
		FROM holidays
		WHERE subsidiary_id = ? OR subsidiary_id = ''
		ORDER BY date ASC
	`
	rows, err := s.db.QueryContext(ctx, query, subsidiary)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var holidays []engine.Holiday
	for rows.Next() {
		var h engine.Holiday
		var date string
		if err := rows.Scan(&h.ID, &h.SubsidiaryID, &date, &h.Name, &h.Recurring); err != nil {
			return nil, err
		}
		h.Date = parseDate(date)
		holidays = append(holidays, h)
	}
	return holidays, rows.Err()
}

// =============================================================================
// CONCEPTS (engine.ConceptSource)
// =============================================================================

func (s *Store) LoadConfiguredConcepts(ctx context.Context, run engine.RunID) ([]engine.ConceptDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, err := getRun(ctx, s.db, run); err != nil {
		return nil, err
	}

	query := `
		SELECT code, name, category, value_kind, value, priority, config_json
		FROM run_concepts
		WHERE run_id = ?
		ORDER BY priority ASC, code ASC
	`
	rows, err := s.db.QueryContext(ctx, query, run)
	if err != nil {
		return nil, engine.Transient("load configured concepts", err)
	}
	defer rows.Close()

	var out []engine.ConceptDefinition
	for rows.Next() {
		var (
			c          engine.ConceptDefinition
			configJSON sql.NullString
		)
		if err := rows.Scan(&c.Code, &c.Name, &c.Category, &c.ValueKind, &c.Value, &c.Priority, &configJSON); err != nil {
			return nil, corrupt(err)
		}
		if configJSON.Valid && configJSON.String != "" {
			if err := json.Unmarshal([]byte(configJSON.String), &c.Config); err != nil {
				return nil, &engine.ConfigurationError{ConceptCode: c.Code, Reason: "malformed config: " + err.Error()}
			}
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// SaveRunConcepts replaces the concepts configured for a run.
func (s *Store) SaveRunConcepts(ctx context.Context, id engine.RunID, concepts []engine.ConceptDefinition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := saveRunConcepts(ctx, sqlTx, id, concepts); err != nil {
		return err
	}
	return sqlTx.Commit()
}

func saveRunConcepts(ctx context.Context, q querier, id engine.RunID, concepts []engine.ConceptDefinition) error {
	if _, err := getRun(ctx, q, id); err != nil {
		return err
	}
	if _, err := q.ExecContext(ctx, "DELETE FROM run_concepts WHERE run_id = ?", id); err != nil {
		return err
	}

	query := `
		INSERT INTO run_concepts (run_id, code, name, category, value_kind, value, priority, config_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	for _, c := range concepts {
		var configJSON sql.NullString
		if len(c.Config) > 0 {
			b, _ := json.Marshal(c.Config)
			configJSON = sql.NullString{String: string(b), Valid: true}
		}
		if _, err := q.ExecContext(ctx, query,
			id, c.Code, c.Name, c.Category, c.ValueKind, c.Value.String(), c.Priority, configJSON,
		); err != nil {
			if isUniqueConstraintError(err) {
				return &engine.ConfigurationError{ConceptCode: c.Code, Reason: "concept configured twice"}
			}
			return err
		}
	}
	return nil
}
