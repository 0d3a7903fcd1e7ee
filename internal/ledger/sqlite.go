package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/example/webank/internal/bank"
)

// SQLiteStore implements bank.Store on SQLite through database/sql. It is
// the development and test backend; amounts are stored as TEXT and go
// through decimal parsing on the way out, so no float rounding sneaks in.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a SQLite-backed ledger store.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// Migrate creates the ledger tables if they do not exist.
func Migrate(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS accounts (
		id TEXT PRIMARY KEY,
		email TEXT UNIQUE NOT NULL,
		mobile TEXT NOT NULL DEFAULT '',
		balance TEXT NOT NULL,
		password_hash TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS transactions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		account_id TEXT NOT NULL REFERENCES accounts(id),
		amount TEXT NOT NULL,
		date TIMESTAMP NOT NULL,
		counterparty TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_transactions_account_date ON transactions(account_id, date);
	`

	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

func (s *SQLiteStore) CreateAccount(ctx context.Context, a *bank.Account) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO accounts (id, email, mobile, balance, password_hash, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, a.ID, a.Email, a.Mobile, a.Balance.String(), a.PasswordHash, a.CreatedAt)
	if err != nil {
		var sqlErr sqlite3.Error
		if errors.As(err, &sqlErr) && sqlErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return bank.ErrEmailTaken
		}
		return fmt.Errorf("failed to insert account: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetAccount(ctx context.Context, id string) (*bank.Account, error) {
	return scanSQLAccount(s.db.QueryRowContext(ctx, `
		SELECT id, email, mobile, balance, password_hash, created_at
		FROM accounts WHERE id = ?
	`, id))
}

func (s *SQLiteStore) GetAccountByEmail(ctx context.Context, email string) (*bank.Account, error) {
	return scanSQLAccount(s.db.QueryRowContext(ctx, `
		SELECT id, email, mobile, balance, password_hash, created_at
		FROM accounts WHERE email = ?
	`, email))
}

func (s *SQLiteStore) ListTransactions(ctx context.Context, accountID string) ([]bank.Transaction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, account_id, amount, date, counterparty
		FROM transactions
		WHERE account_id = ?
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

// Update runs fn in a serializable database/sql transaction. SQLite has no
// row locks; the transaction itself is the write lock.
func (s *SQLiteStore) Update(ctx context.Context, fn func(bank.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&sqliteTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

type sqliteTx struct {
	tx *sql.Tx
}

func (t *sqliteTx) AccountForUpdate(ctx context.Context, id string) (*bank.Account, error) {
	return scanSQLAccount(t.tx.QueryRowContext(ctx, `
		SELECT id, email, mobile, balance, password_hash, created_at
		FROM accounts WHERE id = ?
	`, id))
}

func (t *sqliteTx) SetBalance(ctx context.Context, id string, balance decimal.Decimal) error {
	res, err := t.tx.ExecContext(ctx, `UPDATE accounts SET balance = ? WHERE id = ?`, balance.String(), id)
	if err != nil {
		return fmt.Errorf("failed to update balance: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return bank.ErrAccountNotFound
	}
	return nil
}

func (t *sqliteTx) AppendTransaction(ctx context.Context, tr *bank.Transaction) error {
	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO transactions (account_id, amount, date, counterparty)
		VALUES (?, ?, ?, ?)
	`, tr.AccountID, tr.Amount.String(), tr.Date, tr.Counterparty)
	if err != nil {
		return fmt.Errorf("failed to insert transaction: %w", err)
	}
	tr.ID, err = res.LastInsertId()
	if err != nil {
		return err
	}
	return nil
}

func scanSQLAccount(row *sql.Row) (*bank.Account, error) {
	var a bank.Account
	var balance string
	err := row.Scan(&a.ID, &a.Email, &a.Mobile, &balance, &a.PasswordHash, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
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
