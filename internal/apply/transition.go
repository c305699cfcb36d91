package apply

import "time"

// State is the persisted slice of an Apply the state machine cares about.
type State struct {
	Status       Status
	Canceled     bool
	CanceledDate *time.Time
}

// Effects describes what a transition changed. Callers decide which effects
// warrant notifications; the diff itself is side-effect free.
type Effects struct {
	// EnteredCanceled is true when the row went active -> canceled.
	EnteredCanceled bool
	// LeftCanceled is true when the row went canceled -> active.
	LeftCanceled bool
}

// Transition computes the next state for a status change. Canceled is derived
// from the status, never set independently, and canceled_date moves in
// lockstep: stamped on entering unapplied, cleared on leaving it. Saving the
// same status twice produces no effects.
func Transition(old State, newStatus Status, now time.Time) (State, Effects) {
	next := State{
		Status:       newStatus,
		Canceled:     newStatus == StatusUnapplied,
		CanceledDate: old.CanceledDate,
	}

	var effects Effects
	switch {
	case next.Canceled && !old.Canceled:
		next.CanceledDate = &now
		effects.EnteredCanceled = true
	case !next.Canceled && old.Canceled:
		next.CanceledDate = nil
		effects.LeftCanceled = true
	case !next.Canceled:
		// Active to active keeps canceled_date null.
		next.CanceledDate = nil
	}

	return next, effects
}
