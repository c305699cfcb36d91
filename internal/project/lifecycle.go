package project

import "time"

// lifecycleTransitions reports which lifecycle flags flipped false->true on
// this save. Only those first transitions stamp dates and notify; flipping a
// flag that is already true is a no-op.
type lifecycleTransitions struct {
	Published bool
	Closed    bool
	Deleted   bool
}

// diffLifecycle compares the stored flags with the updated ones, stamps the
// corresponding dates on updated and returns the transitions that happened.
// Dates are set exactly once and never cleared.
func diffLifecycle(orig, updated *Project, now time.Time) lifecycleTransitions {
	var t lifecycleTransitions

	if !orig.Published && updated.Published {
		updated.PublishedDate = &now
		t.Published = true
	}
	if !orig.Closed && updated.Closed {
		updated.ClosedDate = &now
		t.Closed = true
	}
	if !orig.Deleted && updated.Deleted {
		updated.DeletedDate = &now
		t.Deleted = true
	}

	return t
}
