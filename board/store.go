package board

import (
	"onboarding-board/domain"
)

// Store holds one session's tasks grouped by column. It is not safe for
// concurrent use; Controller serialises access.
type Store struct {
	columns map[domain.ColumnID][]domain.Task
}

// Snapshot is an immutable copy of the store used for rendering.
type Snapshot struct {
	Columns map[domain.ColumnID][]domain.Task `json:"columns"`
}

func NewStore() *Store {
	s := &Store{}
	s.reset()
	return s
}

func (s *Store) reset() {
	s.columns = make(map[domain.ColumnID][]domain.Task, len(domain.Columns))
	for _, c := range domain.Columns {
		s.columns[c] = []domain.Task{}
	}
}

// Replace clears every column and re-buckets tasks by their status, keeping
// the order in which they were supplied.
func (s *Store) Replace(tasks []domain.Task) {
	s.reset()
	for _, t := range tasks {
		c := t.Status.Column()
		s.columns[c] = append(s.columns[c], t)
	}
}

// Column returns a copy of the tasks in c.
func (s *Store) Column(c domain.ColumnID) []domain.Task {
	out := make([]domain.Task, len(s.columns[c]))
	copy(out, s.columns[c])
	return out
}

// Find locates a task by display or backend id.
func (s *Store) Find(id string) (domain.ColumnID, int, domain.Task, bool) {
	for _, c := range domain.Columns {
		for i, t := range s.columns[c] {
			if t.Matches(id) {
				return c, i, t, true
			}
		}
	}
	return "", -1, domain.Task{}, false
}

// Len returns the number of tasks across all columns.
func (s *Store) Len() int {
	n := 0
	for _, c := range domain.Columns {
		n += len(s.columns[c])
	}
	return n
}

func (s *Store) Snapshot() Snapshot {
	snap := Snapshot{Columns: make(map[domain.ColumnID][]domain.Task, len(domain.Columns))}
	for _, c := range domain.Columns {
		snap.Columns[c] = s.Column(c)
	}
	return snap
}

func (s *Store) removeAt(c domain.ColumnID, idx int) {
	col := s.columns[c]
	out := make([]domain.Task, 0, len(col)-1)
	out = append(out, col[:idx]...)
	out = append(out, col[idx+1:]...)
	s.columns[c] = out
}

func (s *Store) insertAt(c domain.ColumnID, idx int, t domain.Task) {
	col := s.columns[c]
	if idx < 0 || idx > len(col) {
		idx = len(col)
	}
	out := make([]domain.Task, 0, len(col)+1)
	out = append(out, col[:idx]...)
	out = append(out, t)
	out = append(out, col[idx:]...)
	s.columns[c] = out
}

func (s *Store) indexIn(c domain.ColumnID, id string) int {
	for i, t := range s.columns[c] {
		if t.Matches(id) {
			return i
		}
	}
	return -1
}
