package ingestion

import (
	"fmt"
	"time"
)

// State is the processing state of one report year.
type State string

const (
	StatePending     State = "pending"     // queued, not started
	StateDownloading State = "downloading" // fetching raw rows from the source
	StateNormalizing State = "normalizing" // dropping malformed rows, resolving contracts
	StateDeriving    State = "deriving"    // seeding history, computing metrics
	StateWriting     State = "writing"     // upserting raw then derived rows
	StateDone        State = "done"        // finished, possibly with per-unit errors
	StateFailed      State = "failed"      // retrieval failed, nothing written
)

// StateTransition defines a valid state transition.
type StateTransition struct {
	From        State
	To          State
	Description string
}

// ValidTransitions lists every allowed transition of the year state machine.
var ValidTransitions = []StateTransition{
	{StatePending, StateDownloading, "year started"},
	{StateDownloading, StateNormalizing, "rows fetched"},
	{StateNormalizing, StateDeriving, "rows normalized and contracts resolved"},
	{StateDeriving, StateWriting, "metrics computed"},
	{StateWriting, StateDone, "batches submitted"},

	// Report not yet published
	{StateDownloading, StateDone, "report unavailable"},

	{StateDownloading, StateFailed, "retrieval failed"},
	{StateNormalizing, StateFailed, "normalization aborted"},
	{StateDeriving, StateFailed, "derivation aborted"},
	{StateWriting, StateFailed, "writing aborted"},
}

// ValidTransition reports whether from -> to is allowed.
func ValidTransition(from, to State) bool {
	for _, t := range ValidTransitions {
		if t.From == from && t.To == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether s ends a year.
func (s State) IsTerminal() bool {
	return s == StateDone || s == StateFailed
}

// Transition is one state change of one year, as seen by an Observer.
type Transition struct {
	RunID  string    `json:"run_id"`
	Year   int       `json:"year"`
	From   State     `json:"from"`
	To     State     `json:"to"`
	At     time.Time `json:"at"`
	Rows   int       `json:"rows,omitempty"`   // rows handled by the state being left
	Reason string    `json:"reason,omitempty"` // set when To is StateFailed
}

// Observer receives year state transitions. Implementations must not block.
type Observer interface {
	OnTransition(t Transition)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(t Transition)

// OnTransition calls f(t).
func (f ObserverFunc) OnTransition(t Transition) {
	f(t)
}

// yearMachine tracks the state of a single year.
type yearMachine struct {
	runID    string
	year     int
	state    State
	observer Observer
	now      func() time.Time
}

func newYearMachine(runID string, year int, observer Observer, now func() time.Time) *yearMachine {
	return &yearMachine{runID: runID, year: year, state: StatePending, observer: observer, now: now}
}

// advance moves to the next state and notifies the observer.
func (m *yearMachine) advance(to State, rows int, reason error) error {
	if !ValidTransition(m.state, to) {
		return fmt.Errorf("invalid transition from %s to %s for year %d", m.state, to, m.year)
	}

	t := Transition{
		RunID: m.runID,
		Year:  m.year,
		From:  m.state,
		To:    to,
		At:    m.now().UTC(),
		Rows:  rows,
	}
	if reason != nil {
		t.Reason = reason.Error()
	}

	m.state = to
	if m.observer != nil {
		m.observer.OnTransition(t)
	}
	return nil
}
