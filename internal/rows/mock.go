package rows

// Static is an in-memory Source for tests.
type Static struct {
	Cols    []string
	Rows    []Row
	NextErr error

	pos    int
	Closed bool
}

func (s *Static) Columns() []string {
	return s.Cols
}

func (s *Static) Next() (Row, error) {
	if s.NextErr != nil {
		return nil, s.NextErr
	}
	if s.pos >= len(s.Rows) {
		return nil, nil
	}
	row := s.Rows[s.pos]
	s.pos++
	return row, nil
}

func (s *Static) Close() error {
	s.Closed = true
	return nil
}
