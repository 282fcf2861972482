package request

import "time"

// Status is the request lifecycle state.
type Status string

const (
	StatusOpen      Status = "open"
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
)

// Request is a recipient's claim for a quantity against a listing. ListingID
// is empty until the request is bound by RequestDonation.
type Request struct {
	ID                string
	ListingID         string
	RequesterIdentity string
	Quantity          int64
	Deadline          int64
	Category          string
	Status            Status
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// transitions is the single source of truth for the request state machine.
// The marketplace coordinator and the HTTP surface both route every status
// change through CanTransition so the rules cannot diverge.
var transitions = map[Status][]Status{
	StatusOpen:     {StatusPending},
	StatusPending:  {StatusApproved, StatusCancelled},
	StatusApproved: {StatusCompleted},
}

// CanTransition reports whether a request may move from one status to
// another. Cancelled and completed are terminal.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transition is possible from the status.
func Terminal(s Status) bool {
	return len(transitions[s]) == 0
}
