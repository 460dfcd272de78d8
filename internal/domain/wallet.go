package domain

import "time"

// Wallet holds a user's ITC token balance. The balance is only ever mutated
// together with a matching signed Transaction row.
type Wallet struct {
	UserID     string
	ITCBalance int
	UpdatedAt  time.Time
}

// TransactionType distinguishes debits from credits.
type TransactionType string

const (
	TransactionDebit  TransactionType = "debit"
	TransactionCredit TransactionType = "credit"
)

// Transaction records one signed balance mutation. Amount is negative for
// debits and positive for credits.
type Transaction struct {
	ID        string
	UserID    string
	Amount    int
	Type      TransactionType
	Reference string
	CreatedAt time.Time
}
