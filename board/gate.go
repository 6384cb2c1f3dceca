package board

import (
	"onboarding-board/domain"
)

// GateState is the state of the final decision dialog.
type GateState string

const (
	GateIdle             GateState = "idle"
	GateAwaitingDecision GateState = "awaiting_decision"
	GateFinallyApproved  GateState = "finally_approved"
	GateFinallyRejected  GateState = "finally_rejected"
)

// pendingMove is a task picked up from an open column. The source state is
// Open, so completed tasks can never be recorded here.
type pendingMove struct {
	taskID string
	from   domain.Open
}

// Gate guards the done column: a drop there only records the move until an
// explicit approve or reject succeeds. Terminal states behave like Idle for
// the next drop.
type Gate struct {
	state      GateState
	pending    *pendingMove
	submitting bool
}

// GateStatus is the externally visible gate state.
type GateStatus struct {
	State      GateState       `json:"state"`
	TaskID     string          `json:"taskId,omitempty"`
	From       domain.ColumnID `json:"from,omitempty"`
	Submitting bool            `json:"submitting,omitempty"`
}

func newGate() *Gate { return &Gate{state: GateIdle} }

func (g *Gate) Awaiting() bool { return g.state == GateAwaitingDecision }

func (g *Gate) Status() GateStatus {
	st := GateStatus{State: g.state, Submitting: g.submitting}
	if g.pending != nil {
		st.TaskID = g.pending.taskID
		st.From = g.pending.from.Column()
	}
	return st
}

func (g *Gate) open(p pendingMove) error {
	if g.Awaiting() {
		return domain.ErrDecisionPending
	}
	g.state = GateAwaitingDecision
	g.pending = &p
	g.submitting = false
	return nil
}

// cancel discards the recorded move without touching the store.
func (g *Gate) cancel() error {
	if !g.Awaiting() {
		return domain.ErrNoDecisionPending
	}
	if g.submitting {
		return domain.ErrDecisionInFlight
	}
	g.state = GateIdle
	g.pending = nil
	return nil
}

// begin marks a decision as submitted and hands back the recorded move.
func (g *Gate) begin() (pendingMove, error) {
	if !g.Awaiting() {
		return pendingMove{}, domain.ErrNoDecisionPending
	}
	if g.submitting {
		return pendingMove{}, domain.ErrDecisionInFlight
	}
	g.submitting = true
	return *g.pending, nil
}

// fail returns the gate to Idle after a backend error.
func (g *Gate) fail() {
	g.state = GateIdle
	g.pending = nil
	g.submitting = false
}

func (g *Gate) resolve(approval domain.ApprovalType) {
	if approval == domain.ApprovalFinalRejected {
		g.state = GateFinallyRejected
	} else {
		g.state = GateFinallyApproved
	}
	g.pending = nil
	g.submitting = false
}
