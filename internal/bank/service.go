package bank

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Service enforces the accounting rules for balance-changing operations and
// produces the corresponding ledger rows. It holds no state between calls;
// every operation re-reads current balances inside a store unit of work.
type Service struct {
	store Store
	now   func() time.Time
}

// NewService creates a Service backed by the given store.
func NewService(store Store) *Service {
	return &Service{store: store, now: time.Now}
}

// Register creates a new account with a zero balance. passwordHash must
// already be hashed by the caller; the service never sees plaintext
// credentials.
func (s *Service) Register(ctx context.Context, email, mobile, passwordHash string) (*Account, error) {
	account := &Account{
		ID:           uuid.NewString(),
		Email:        email,
		Mobile:       mobile,
		Balance:      decimal.Zero,
		PasswordHash: passwordHash,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.store.CreateAccount(ctx, account); err != nil {
		return nil, err
	}
	return account, nil
}

// GetAccount returns the current account state.
func (s *Service) GetAccount(ctx context.Context, id string) (*Account, error) {
	return s.store.GetAccount(ctx, id)
}

// GetAccountByEmail resolves an account by its registered email.
func (s *Service) GetAccountByEmail(ctx context.Context, email string) (*Account, error) {
	return s.store.GetAccountByEmail(ctx, email)
}

// History returns the account's transactions ordered by time.
func (s *Service) History(ctx context.Context, accountID string) ([]Transaction, error) {
	if _, err := s.store.GetAccount(ctx, accountID); err != nil {
		return nil, err
	}
	return s.store.ListTransactions(ctx, accountID)
}

// Deposit credits amount to the account and appends a transaction with
// amount = +amount. Returns the updated account.
func (s *Service) Deposit(ctx context.Context, accountID string, amount decimal.Decimal) (*Account, error) {
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}

	var updated *Account
	err := s.store.Update(ctx, func(tx Tx) error {
		account, err := tx.AccountForUpdate(ctx, accountID)
		if err != nil {
			return err
		}

		account.Balance = account.Balance.Add(amount)
		if err := tx.SetBalance(ctx, account.ID, account.Balance); err != nil {
			return err
		}

		if err := tx.AppendTransaction(ctx, &Transaction{
			AccountID: account.ID,
			Amount:    amount,
			Date:      s.now().UTC(),
		}); err != nil {
			return err
		}

		updated = account
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("deposit: %w", err)
	}
	return updated, nil
}

// Withdraw debits amount from the account and appends a transaction with
// amount = -amount. Fails with ErrInsufficientBalance if the account holds
// less than amount; no mutation happens in that case.
func (s *Service) Withdraw(ctx context.Context, accountID string, amount decimal.Decimal) (*Account, error) {
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}

	var updated *Account
	err := s.store.Update(ctx, func(tx Tx) error {
		account, err := tx.AccountForUpdate(ctx, accountID)
		if err != nil {
			return err
		}

		if account.Balance.LessThan(amount) {
			return ErrInsufficientBalance
		}

		account.Balance = account.Balance.Sub(amount)
		if err := tx.SetBalance(ctx, account.ID, account.Balance); err != nil {
			return err
		}

		if err := tx.AppendTransaction(ctx, &Transaction{
			AccountID: account.ID,
			Amount:    amount.Neg(),
			Date:      s.now().UTC(),
		}); err != nil {
			return err
		}

		updated = account
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("withdraw: %w", err)
	}
	return updated, nil
}

// Transfer moves amount from sender to receiver and appends a matched pair
// of ledger rows: a debit under the sender and a credit under the receiver,
// each carrying a counterparty reference to the other account. Both balance
// updates and both rows commit as one unit of work. Returns the updated
// sender account.
func (s *Service) Transfer(ctx context.Context, senderID, receiverID string, amount decimal.Decimal) (*Account, error) {
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	if senderID == receiverID {
		return nil, ErrSelfTransfer
	}

	var updated *Account
	err := s.store.Update(ctx, func(tx Tx) error {
		// Lock in a stable order so two opposing transfers cannot
		// deadlock on each other's rows.
		first, second := senderID, receiverID
		if second < first {
			first, second = second, first
		}

		locked := make(map[string]*Account, 2)
		for _, id := range []string{first, second} {
			account, err := tx.AccountForUpdate(ctx, id)
			if err != nil {
				return err
			}
			locked[id] = account
		}
		sender, receiver := locked[senderID], locked[receiverID]

		if sender.Balance.LessThan(amount) {
			return ErrInsufficientBalance
		}

		sender.Balance = sender.Balance.Sub(amount)
		receiver.Balance = receiver.Balance.Add(amount)

		if err := tx.SetBalance(ctx, sender.ID, sender.Balance); err != nil {
			return err
		}
		if err := tx.SetBalance(ctx, receiver.ID, receiver.Balance); err != nil {
			return err
		}

		when := s.now().UTC()
		if err := tx.AppendTransaction(ctx, &Transaction{
			AccountID:    sender.ID,
			Amount:       amount.Neg(),
			Date:         when,
			Counterparty: &receiver.ID,
		}); err != nil {
			return err
		}
		if err := tx.AppendTransaction(ctx, &Transaction{
			AccountID:    receiver.ID,
			Amount:       amount,
			Date:         when,
			Counterparty: &sender.ID,
		}); err != nil {
			return err
		}

		updated = sender
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("transfer: %w", err)
	}
	return updated, nil
}
