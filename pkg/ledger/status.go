package ledger

import "fmt"

// Status defines the lifecycle state of an order.
// Pending and Ongoing are the only non-terminal states.
type Status int8

const (
	Pending   Status = iota // Registered, not yet picked up by the controller
	Ongoing                 // Controller is working the order
	Expired                 // Marked stale by the controller (terminal)
	Succeeded               // Executed at or better than target (terminal)
	Cancelled               // Withdrawn by its creator or the controller (terminal)
)

func (s Status) String() string {
	switch s {
	case Pending:
		return "Pending"
	case Ongoing:
		return "Ongoing"
	case Expired:
		return "Expired"
	case Succeeded:
		return "Succeeded"
	case Cancelled:
		return "Cancelled"
	default:
		return "Unknown"
	}
}

// ParseStatus converts a string (as used in API queries) back to a Status.
func ParseStatus(s string) (Status, error) {
	switch s {
	case "Pending":
		return Pending, nil
	case "Ongoing":
		return Ongoing, nil
	case "Expired":
		return Expired, nil
	case "Succeeded":
		return Succeeded, nil
	case "Cancelled":
		return Cancelled, nil
	default:
		return 0, fmt.Errorf("unknown status %q", s)
	}
}

// Valid reports whether s is one of the five defined statuses.
func (s Status) Valid() bool {
	return s >= Pending && s <= Cancelled
}

// Terminal reports whether no further transition is permitted from s.
func (s Status) Terminal() bool {
	switch s {
	case Expired, Succeeded, Cancelled:
		return true
	default:
		return false
	}
}

// Active reports whether the order is still live (Pending or Ongoing).
func (s Status) Active() bool {
	return s == Pending || s == Ongoing
}

// transitions is the full state machine:
//
//	Pending ──> Ongoing | Cancelled | Expired
//	Ongoing ──> Succeeded | Cancelled | Expired
//	Expired / Succeeded / Cancelled ──> (terminal)
var transitions = map[Status][]Status{
	Pending: {Ongoing, Cancelled, Expired},
	Ongoing: {Succeeded, Cancelled, Expired},
}

// CanTransition reports whether the pair (from, to) appears in the
// transition table. It carries no business logic about why a transition
// should happen; callers decide that outside the ledger.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Transition validates and performs a status change, returning the new
// status or ErrInvalidTransition.
func Transition(from, to Status) (Status, error) {
	if !to.Valid() {
		return from, fmt.Errorf("%w: target status %d is not defined", ErrInvalidTransition, to)
	}
	if !CanTransition(from, to) {
		return from, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return to, nil
}
