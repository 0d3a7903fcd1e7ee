package bank

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account is a customer account. The identity fields mirror what
// registration collects; the balance is only ever mutated through the
// Service so it never goes observably negative.
type Account struct {
	ID           string          `json:"id"`
	Email        string          `json:"email"`
	Mobile       string          `json:"mobile,omitempty"`
	Balance      decimal.Decimal `json:"balance"`
	PasswordHash string          `json:"-"`
	CreatedAt    time.Time       `json:"created_at"`
}

// Transaction is one immutable ledger row. Amount is signed: positive for
// credits (deposit, incoming transfer), negative for debits (withdrawal,
// outgoing transfer). Counterparty is set only for transfers and names the
// account on the other side.
type Transaction struct {
	ID           int64           `json:"id"`
	AccountID    string          `json:"account_id"`
	Amount       decimal.Decimal `json:"amount"`
	Date         time.Time       `json:"date"`
	Counterparty *string         `json:"counterparty,omitempty"`
}
