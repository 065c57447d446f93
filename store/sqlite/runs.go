package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/warp/payroll-engine/engine"
)

// =============================================================================
// RUN STORE (engine.RunStore interface)
// =============================================================================

func (s *Store) CreateRun(ctx context.Context, run engine.PayRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return createRun(ctx, s.db, run)
}

func createRun(ctx context.Context, q querier, run engine.PayRun) error {
	progress, _ := json.Marshal(run.Progress)
	query := `
		INSERT INTO pay_runs (id, subsidiary_id, period_start, period_end, state, halted, last_error,
		                      total_employees, progress_json, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := q.ExecContext(ctx, query,
		run.ID, run.SubsidiaryID, run.Period.Start.String(), run.Period.End.String(),
		run.State, run.Halted, nullString(run.LastError), run.TotalEmployees, string(progress),
		formatTime(run.CreatedAt), formatTime(run.UpdatedAt),
	)
	switch {
	case isUniqueConstraintError(err) && strings.Contains(err.Error(), "pay_runs.id"):
		return fmt.Errorf("run %s already exists", run.ID)
	case isUniqueConstraintError(err):
		return fmt.Errorf("%w: an active run covers %s", engine.ErrRunConflict, run.Period)
	}
	return err
}

func (s *Store) GetRun(ctx context.Context, id engine.RunID) (engine.PayRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getRun(ctx, s.db, id)
}

func (s *Store) SaveRun(ctx context.Context, run engine.PayRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveRun(ctx, s.db, run)
}

func (s *Store) DeleteRun(ctx context.Context, id engine.RunID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return deleteRun(ctx, s.db, id)
}

func deleteRun(ctx context.Context, q querier, id engine.RunID) error {
	res, err := q.ExecContext(ctx, "DELETE FROM pay_runs WHERE id = ?", id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return engine.ErrRunNotFound
	}
	return nil
}

func (s *Store) ListRuns(ctx context.Context, filter engine.RunFilter) ([]engine.PayRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listRuns(ctx, s.db, filter)
}

func listRuns(ctx context.Context, q querier, filter engine.RunFilter) ([]engine.PayRun, error) {
	var (
		where []string
		args  []any
	)
	if filter.SubsidiaryID != "" {
		where = append(where, "subsidiary_id = ?")
		args = append(args, filter.SubsidiaryID)
	}
	if len(filter.States) > 0 {
		placeholders := make([]string, len(filter.States))
		for i, st := range filter.States {
			placeholders[i] = "?"
			args = append(args, st)
		}
		where = append(where, "state IN ("+strings.Join(placeholders, ", ")+")")
	}

	query := runSelect
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at ASC, id ASC"

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []engine.PayRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

const runSelect = `
	SELECT id, subsidiary_id, period_start, period_end, state, halted, last_error, total_employees,
	       progress_json, summary_json, created_at, updated_at, started_at, calculated_at,
	       approved_at, approved_by, paid_at, cancelled_at, cancel_reason
	FROM pay_runs`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (engine.PayRun, error) {
	var (
		run                                     engine.PayRun
		start, end, progress, created, updated  string
		lastError, summary, approvedBy, reason  sql.NullString
		started, calculated, approved, paid, cx sql.NullString
	)
	if err := row.Scan(&run.ID, &run.SubsidiaryID, &start, &end, &run.State, &run.Halted, &lastError,
		&run.TotalEmployees, &progress, &summary, &created, &updated, &started, &calculated,
		&approved, &approvedBy, &paid, &cx, &reason); err != nil {
		return engine.PayRun{}, err
	}

	run.Period = engine.Period{Start: parseDate(start), End: parseDate(end)}
	run.LastError = lastError.String
	if err := json.Unmarshal([]byte(progress), &run.Progress); err != nil {
		return engine.PayRun{}, fmt.Errorf("run %s: bad progress: %w", run.ID, err)
	}
	if summary.Valid && summary.String != "" {
		var sum engine.RunSummary
		if err := json.Unmarshal([]byte(summary.String), &sum); err != nil {
			return engine.PayRun{}, fmt.Errorf("run %s: bad summary: %w", run.ID, err)
		}
		run.Summary = &sum
	}
	run.CreatedAt = parseTime(created)
	run.UpdatedAt = parseTime(updated)
	run.StartedAt = parseNullTime(started)
	run.CalculatedAt = parseNullTime(calculated)
	run.ApprovedAt = parseNullTime(approved)
	run.ApprovedBy = approvedBy.String
	run.PaidAt = parseNullTime(paid)
	run.CancelledAt = parseNullTime(cx)
	run.CancelReason = reason.String
	return run, nil
}

func getRun(ctx context.Context, q querier, id engine.RunID) (engine.PayRun, error) {
	run, err := scanRun(q.QueryRowContext(ctx, runSelect+" WHERE id = ?", id))
	if err == sql.ErrNoRows {
		return engine.PayRun{}, engine.ErrRunNotFound
	}
	if err != nil {
		return engine.PayRun{}, engine.Transient("get run", err)
	}
	return run, nil
}

func saveRun(ctx context.Context, q querier, run engine.PayRun) error {
	progress, _ := json.Marshal(run.Progress)
	var summary sql.NullString
	if run.Summary != nil {
		b, _ := json.Marshal(run.Summary)
		summary = sql.NullString{String: string(b), Valid: true}
	}
	updated := run.UpdatedAt
	if updated.IsZero() {
		updated = time.Now()
	}

	query := `
		UPDATE pay_runs SET
			state = ?, halted = ?, last_error = ?, total_employees = ?, progress_json = ?,
			summary_json = ?, updated_at = ?, started_at = ?, calculated_at = ?, approved_at = ?,
			approved_by = ?, paid_at = ?, cancelled_at = ?, cancel_reason = ?
		WHERE id = ?
	`
	res, err := q.ExecContext(ctx, query,
		run.State, run.Halted, nullString(run.LastError), run.TotalEmployees, string(progress),
		summary, formatTime(updated), nullTime(run.StartedAt), nullTime(run.CalculatedAt),
		nullTime(run.ApprovedAt), nullString(run.ApprovedBy), nullTime(run.PaidAt),
		nullTime(run.CancelledAt), nullString(run.CancelReason), run.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to save run %s: %w", run.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return engine.ErrRunNotFound
	}
	return nil
}

// =============================================================================
// DETAILS AND FAILURES
// =============================================================================

func insertDetail(ctx context.Context, q querier, detail engine.PayDetail) error {
	body, err := detail.Marshal()
	if err != nil {
		return fmt.Errorf("failed to encode detail: %w", err)
	}
	_, err = q.ExecContext(ctx, `
		INSERT INTO pay_details (run_id, employee_id, net_to_pay, detail_json, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, detail.RunID, detail.EmployeeID, detail.NetToPay.String(), string(body), formatTime(time.Now()))
	switch {
	case isUniqueConstraintError(err):
		return &engine.DataIntegrityError{RunID: detail.RunID, EmployeeID: detail.EmployeeID, Err: fmt.Errorf("detail already persisted")}
	case isForeignKeyError(err):
		return &engine.DataIntegrityError{RunID: detail.RunID, EmployeeID: detail.EmployeeID, Err: err}
	case err != nil:
		return fmt.Errorf("failed to insert detail: %w", err)
	}
	return nil
}

func insertFailure(ctx context.Context, q querier, run engine.RunID, f engine.EmployeeFailure) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO run_failures (run_id, employee_id, concept_code, reason, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, run, f.EmployeeID, nullString(string(f.ConceptCode)), f.Reason, formatTime(time.Now()))
	if isForeignKeyError(err) {
		return &engine.DataIntegrityError{RunID: run, EmployeeID: f.EmployeeID, Err: err}
	}
	return err
}

func (s *Store) GetDetail(ctx context.Context, id engine.RunID, employee engine.EmployeeID) (engine.PayDetail, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var body string
	err := s.db.QueryRowContext(ctx,
		"SELECT detail_json FROM pay_details WHERE run_id = ? AND employee_id = ?", id, employee,
	).Scan(&body)
	if err == sql.ErrNoRows {
		return engine.PayDetail{}, engine.ErrDetailNotFound
	}
	if err != nil {
		return engine.PayDetail{}, err
	}
	var d engine.PayDetail
	if err := json.Unmarshal([]byte(body), &d); err != nil {
		return engine.PayDetail{}, fmt.Errorf("failed to decode detail: %w", err)
	}
	return d, nil
}

func (s *Store) ListDetails(ctx context.Context, id engine.RunID) ([]engine.PayDetail, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT detail_json FROM pay_details WHERE run_id = ? ORDER BY employee_id ASC", id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []engine.PayDetail
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, err
		}
		var d engine.PayDetail
		if err := json.Unmarshal([]byte(body), &d); err != nil {
			return nil, fmt.Errorf("failed to decode detail: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *Store) ListFailures(ctx context.Context, id engine.RunID) ([]engine.EmployeeFailure, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT employee_id, concept_code, reason FROM run_failures WHERE run_id = ? ORDER BY id ASC", id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []engine.EmployeeFailure
	for rows.Next() {
		var (
			f    engine.EmployeeFailure
			code sql.NullString
		)
		if err := rows.Scan(&f.EmployeeID, &code, &f.Reason); err != nil {
			return nil, err
		}
		f.ConceptCode = engine.ConceptCode(code.String)
		out = append(out, f)
	}
	return out, rows.Err()
}
