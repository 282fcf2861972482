package actor

import "time"

// Role distinguishes the two marketplace actor types. An identity holds at
// most one role.
type Role string

const (
	RoleDonor     Role = "donor"
	RoleRecipient Role = "recipient"
)

// Donor is a registered donor profile. The donor's spendable token balance
// lives in the ledger account keyed by the same identity.
type Donor struct {
	Identity       string
	DisplayName    string
	CredentialHash string
	WalletLimit    int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Recipient is a registered recipient profile. HeldTokens are settled by an
// approval but not yet completed; WithdrawableTokens are completed and
// awaiting withdrawal into the spendable ledger balance.
type Recipient struct {
	Identity           string
	DisplayName        string
	CredentialHash     string
	Category           string
	HeldTokens         int64
	WithdrawableTokens int64
	AccumulatedTokens  int64
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Profile is the role-tagged union returned by profile lookups.
type Profile struct {
	Role      Role
	Donor     *Donor
	Recipient *Recipient
}
