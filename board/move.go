package board

import (
	"fmt"

	"github.com/google/uuid"

	"onboarding-board/domain"
)

// Move is a speculative column change. It records the task before and after
// so a failed backend write can be undone exactly.
type Move struct {
	ID        string
	From      domain.ColumnID
	FromIndex int
	To        domain.ColumnID
	Before    domain.Task
	After     domain.Task
}

func newMove(from domain.ColumnID, idx int, task domain.Task, to domain.State) *Move {
	return &Move{
		ID:        uuid.NewString(),
		From:      from,
		FromIndex: idx,
		To:        to.Column(),
		Before:    task,
		After:     task.WithState(to),
	}
}

// Apply takes the task out of its source column and appends the updated copy
// to the target column.
func (m *Move) Apply(s *Store) error {
	idx := s.indexIn(m.From, m.Before.Key())
	if idx < 0 {
		return fmt.Errorf("apply move %s: %w", m.ID, domain.ErrTaskNotFound)
	}
	m.FromIndex = idx
	s.removeAt(m.From, idx)
	s.insertAt(m.To, -1, m.After)
	return nil
}

// Revert removes the updated copy and puts the original task back where it
// was taken from.
func (m *Move) Revert(s *Store) error {
	idx := s.indexIn(m.To, m.After.Key())
	if idx < 0 {
		return fmt.Errorf("revert move %s: %w", m.ID, domain.ErrTaskNotFound)
	}
	s.removeAt(m.To, idx)
	s.insertAt(m.From, m.FromIndex, m.Before)
	return nil
}
