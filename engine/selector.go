package engine

import "context"

// =============================================================================
// ELIGIBLE EMPLOYEE SELECTOR - Keyset-paged pipeline source
// =============================================================================

// DefaultPageSize bounds one EmployeeSource query.
const DefaultPageSize = 200

// Selector streams the employees with qualifying activity in a period in
// ascending EmployeeID order. It holds at most one page in memory and can be
// restarted from any key.
type Selector struct {
	source     EmployeeSource
	subsidiary SubsidiaryID
	period     Period
	pageSize   int

	after     EmployeeID
	buf       []EmployeeID
	exhausted bool
}

// NewSelector fails fast on an invalid period.
func NewSelector(source EmployeeSource, subsidiary SubsidiaryID, period Period, pageSize int) (*Selector, error) {
	if err := period.Validate(); err != nil {
		return nil, err
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Selector{source: source, subsidiary: subsidiary, period: period, pageSize: pageSize}, nil
}

// After restarts the sequence strictly after key. An empty key restarts from
// the beginning.
func (s *Selector) After(key EmployeeID) {
	s.after = key
	s.buf = nil
	s.exhausted = false
}

// Position is the last key handed out.
func (s *Selector) Position() EmployeeID { return s.after }

// Next returns the next employee, or false when the sequence is exhausted.
func (s *Selector) Next(ctx context.Context) (EmployeeID, bool, error) {
	if len(s.buf) == 0 {
		if s.exhausted {
			return "", false, nil
		}
		page, err := s.source.ResolveEmployeesInPeriod(ctx, s.subsidiary, s.period, s.after, s.pageSize)
		if err != nil {
			return "", false, asTransient("resolve employees", err)
		}
		if len(page) < s.pageSize {
			s.exhausted = true
		}
		if len(page) == 0 {
			return "", false, nil
		}
		s.buf = page
	}
	id := s.buf[0]
	s.buf = s.buf[1:]
	s.after = id
	return id, true, nil
}

// NextChunk returns up to n employees. An empty result means exhausted.
func (s *Selector) NextChunk(ctx context.Context, n int) ([]EmployeeID, error) {
	chunk := make([]EmployeeID, 0, n)
	for len(chunk) < n {
		id, ok, err := s.Next(ctx)
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		chunk = append(chunk, id)
	}
	return chunk, nil
}
