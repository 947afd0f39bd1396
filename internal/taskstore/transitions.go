package taskstore

// forwardTransitions is the happy-path lifecycle plus the gate-rejection
// edge and unblock; "any non-terminal -> blocked/cancelled" is handled
// separately in legalTransition since it fans out from every non-terminal
// state rather than being enumerable per-source.
var forwardTransitions = map[Status]map[Status]bool{
	StatusBacklog:    {StatusReady: true},
	StatusReady:      {StatusInProgress: true},
	StatusInProgress: {StatusReview: true, StatusDeadletter: true},
	StatusReview:     {StatusDone: true, StatusInProgress: true},
	StatusBlocked:    {StatusReady: true},
}

// legalTransition reports whether moving a task from 'from' to 'to' is
// permitted by the lifecycle table above. Terminal states never appear as
// 'from'; callers must check Status.Terminal() first so the immutability
// invariant is enforced uniformly regardless of the target.
func legalTransition(from, to Status) bool {
	if from == to {
		return true // transition(s) is idempotent: re-stating the same value is a no-op
	}
	if from.Terminal() {
		return false
	}
	if to == StatusBlocked || to == StatusCancelled {
		return true
	}
	return forwardTransitions[from][to]
}
