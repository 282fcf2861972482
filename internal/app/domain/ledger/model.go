package ledger

import "time"

// Account holds a single identity's spendable token balance.
type Account struct {
	Identity  string
	Balance   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TransactionType classifies ledger mutations.
type TransactionType string

const (
	TypeCredit   TransactionType = "credit"
	TypeDebit    TransactionType = "debit"
	TypeTransfer TransactionType = "transfer"
	TypeCashOut  TransactionType = "cashout"
)

// Transaction records one ledger mutation. Every credit, debit, transfer and
// cash-out appends exactly one transaction.
type Transaction struct {
	ID        string
	Type      TransactionType
	From      string
	To        string
	Amount    int64
	Note      string
	CreatedAt time.Time
}
