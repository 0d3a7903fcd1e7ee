package bank

import (
	"context"

	"github.com/shopspring/decimal"
)

// Store is the persistence contract the Service depends on. Implementations
// live in internal/ledger.
type Store interface {
	CreateAccount(ctx context.Context, a *Account) error
	GetAccount(ctx context.Context, id string) (*Account, error)
	GetAccountByEmail(ctx context.Context, email string) (*Account, error)
	ListTransactions(ctx context.Context, accountID string) ([]Transaction, error)

	// Update runs fn inside a single unit of work. Every write issued
	// through the Tx commits together or not at all; returning an error
	// from fn rolls everything back.
	Update(ctx context.Context, fn func(Tx) error) error
}

// Tx is the write surface available inside a unit of work.
type Tx interface {
	// AccountForUpdate loads an account and locks its row until the unit
	// of work commits, so concurrent balance checks serialize.
	AccountForUpdate(ctx context.Context, id string) (*Account, error)
	SetBalance(ctx context.Context, id string, balance decimal.Decimal) error
	AppendTransaction(ctx context.Context, t *Transaction) error
}
