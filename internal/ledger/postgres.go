package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/example/webank/internal/bank"
)

const queryTimeout = 5 * time.Second

// PostgresStore implements bank.Store on PostgreSQL. Units of work run
// under SERIALIZABLE isolation with row locks on the touched accounts;
// serialization failures (40001) are retried.
type PostgresStore struct {
	Pool *pgxpool.Pool
}

// NewPostgresStore creates a PostgreSQL-backed ledger store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{Pool: pool}
}

func (s *PostgresStore) CreateAccount(ctx context.Context, a *bank.Account) error {
	queryCtx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	_, err := s.Pool.Exec(queryCtx, `
		INSERT INTO accounts (id, email, mobile, balance, password_hash, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, a.ID, a.Email, a.Mobile, a.Balance.String(), a.PasswordHash, a.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return bank.ErrEmailTaken
		}
		return fmt.Errorf("failed to insert account: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetAccount(ctx context.Context, id string) (*bank.Account, error) {
	queryCtx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	return scanAccount(s.Pool.QueryRow(queryCtx, `
		SELECT id, email, mobile, balance::text, password_hash, created_at
		FROM accounts WHERE id = $1
	`, id))
}

func (s *PostgresStore) GetAccountByEmail(ctx context.Context, email string) (*bank.Account, error) {
	queryCtx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	return scanAccount(s.Pool.QueryRow(queryCtx, `
		SELECT id, email, mobile, balance::text, password_hash, created_at
		FROM accounts WHERE email = $1
	`, email))
}

func (s *PostgresStore) ListTransactions(ctx context.Context, accountID string) ([]bank.Transaction, error) {
	queryCtx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := s.Pool.Query(queryCtx, `
		SELECT id, account_id, amount::text, date, counterparty
		FROM transactions
		WHERE account_id = $1
		ORDER BY date, id
	`, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var out []bank.Transaction
	for rows.Next() {
		var t bank.Transaction
		var amount string
		if err := rows.Scan(&t.ID, &t.AccountID, &amount, &t.Date, &t.Counterparty); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		t.Amount, err = decimal.NewFromString(amount)
		if err != nil {
			return nil, fmt.Errorf("bad amount %q: %w", amount, err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// Update runs fn in a SERIALIZABLE transaction and commits only if fn
// succeeds. Serialization failures are retried with a short backoff.
func (s *PostgresStore) Update(ctx context.Context, fn func(bank.Tx) error) error {
	const maxRetries = 3

	var err error
	for attempt := 0; attempt < maxRetries; attempt++ {
		err = s.updateOnce(ctx, fn)
		if err == nil {
			return nil
		}

		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "40001" {
			time.Sleep(time.Duration(attempt+1) * 10 * time.Millisecond)
			continue
		}
		return err
	}
	return fmt.Errorf("unit of work failed after %d retries due to serialization failure: %w", maxRetries, err)
}

func (s *PostgresStore) updateOnce(ctx context.Context, fn func(bank.Tx) error) error {
	queryCtx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	conn, err := s.Pool.Acquire(queryCtx)
	if err != nil {
		return fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer conn.Release()

	tx, err := conn.BeginTx(queryCtx, pgx.TxOptions{
		IsoLevel:   pgx.Serializable,
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(queryCtx)

	if err := fn(&pgTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(queryCtx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) AccountForUpdate(ctx context.Context, id string) (*bank.Account, error) {
	return scanAccount(t.tx.QueryRow(ctx, `
		SELECT id, email, mobile, balance::text, password_hash, created_at
		FROM accounts WHERE id = $1
		FOR UPDATE
	`, id))
}

func (t *pgTx) SetBalance(ctx context.Context, id string, balance decimal.Decimal) error {
	tag, err := t.tx.Exec(ctx, `UPDATE accounts SET balance = $1 WHERE id = $2`, balance.String(), id)
	if err != nil {
		return fmt.Errorf("failed to update balance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return bank.ErrAccountNotFound
	}
	return nil
}

func (t *pgTx) AppendTransaction(ctx context.Context, tr *bank.Transaction) error {
	err := t.tx.QueryRow(ctx, `
		INSERT INTO transactions (account_id, amount, date, counterparty)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, tr.AccountID, tr.Amount.String(), tr.Date, tr.Counterparty).Scan(&tr.ID)
	if err != nil {
		return fmt.Errorf("failed to insert transaction: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*bank.Account, error) {
	var a bank.Account
	var balance string
	err := row.Scan(&a.ID, &a.Email, &a.Mobile, &balance, &a.PasswordHash, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, bank.ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to scan account: %w", err)
	}
	a.Balance, err = decimal.NewFromString(balance)
	if err != nil {
		return nil, fmt.Errorf("bad balance %q: %w", balance, err)
	}
	return &a, nil
}
