package listing

import "time"

// Status is the listing lifecycle state. Unlisted is terminal; listings are
// never physically removed so history stays queryable.
type Status string

const (
	StatusListed   Status = "listed"
	StatusUnlisted Status = "unlisted"
)

// Listing is a donor's standing offer of a quantity of donatable goods.
// QuantityListed records the original quantity so the reservation invariant
// (approved reservations never exceed it) stays checkable after settlement
// debits shrink QuantityAvailable.
type Listing struct {
	ID                string
	OwnerIdentity     string
	QuantityAvailable int64
	QuantityListed    int64
	Category          string
	Status            Status
	CreatedAt         time.Time
	UpdatedAt         time.Time
}
