package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/username/wombats/backend/src/logger"
	"github.com/username/wombats/backend/src/models"
)

// ErrAccountNotFound indicates no account row exists for the user.
var ErrAccountNotFound = errors.New("account not found")

const timeLayout = time.RFC3339Nano

// Store is the sqlite-backed implementation of the ledger and balance
// stores. Per-user isolation comes from keying every row by user_id;
// write serialization per account is the caller's responsibility.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// CreateAccount seeds a cash balance for a new user. No-op if the
// account row already exists.
func (s *Store) CreateAccount(ctx context.Context, userID int64, startingBalance decimal.Decimal) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO accounts (user_id, cash_balance) VALUES (?, ?)`,
		userID, startingBalance.String())
	if err != nil {
		return fmt.Errorf("creating account for user %d: %w", userID, err)
	}
	return nil
}

func (s *Store) GetBalance(ctx context.Context, userID int64) (decimal.Decimal, error) {
	var balanceStr string
	err := s.db.QueryRowContext(ctx,
		`SELECT cash_balance FROM accounts WHERE user_id = ?`, userID).Scan(&balanceStr)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return decimal.Zero, ErrAccountNotFound
		}
		return decimal.Zero, fmt.Errorf("querying balance for user %d: %w", userID, err)
	}
	balance, err := decimal.NewFromString(balanceStr)
	if err != nil {
		return decimal.Zero, fmt.Errorf("corrupt balance value for user %d: %w", userID, err)
	}
	return balance, nil
}

func (s *Store) SetBalance(ctx context.Context, userID int64, balance decimal.Decimal) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE accounts SET cash_balance = ?, updated_at = CURRENT_TIMESTAMP WHERE user_id = ?`,
		balance.String(), userID)
	if err != nil {
		return fmt.Errorf("updating balance for user %d: %w", userID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating balance for user %d: %w", userID, err)
	}
	if affected == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// ListTransactions returns the user's full ledger in recording order.
func (s *Store) ListTransactions(ctx context.Context, userID int64) ([]models.Transaction, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, order_id, symbol, product_name, quantity, unit_price, total_cost, executed_at
		 FROM transactions WHERE user_id = ? ORDER BY executed_at ASC, id ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("querying transactions for user %d: %w", userID, err)
	}
	defer rows.Close()

	var transactions []models.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning transaction row for user %d: %w", userID, err)
		}
		transactions = append(transactions, tx)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating over transaction rows for user %d: %w", userID, err)
	}
	return transactions, nil
}

// AppendTransaction records one ledger entry outside of a trade
// commit. Trades themselves go through ExecuteTrade.
func (s *Store) AppendTransaction(ctx context.Context, userID int64, tx models.Transaction) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO transactions (user_id, order_id, symbol, product_name, quantity, unit_price, total_cost, executed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		userID, tx.OrderID, tx.Symbol, tx.ProductName, tx.Quantity,
		tx.UnitPrice.String(), tx.TotalCost.String(), tx.ExecutedAt.UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("appending transaction (order %s) for user %d: %w", tx.OrderID, userID, err)
	}
	return nil
}

// ExecuteTrade commits a ledger append and the matching balance update
// as one unit. The append runs first; if either statement fails the
// whole trade rolls back, so no partial state is ever visible.
func (s *Store) ExecuteTrade(ctx context.Context, userID int64, tx models.Transaction, newBalance decimal.Decimal) error {
	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning trade transaction for user %d: %w", userID, err)
	}
	defer dbTx.Rollback()

	_, err = dbTx.ExecContext(ctx,
		`INSERT INTO transactions (user_id, order_id, symbol, product_name, quantity, unit_price, total_cost, executed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		userID, tx.OrderID, tx.Symbol, tx.ProductName, tx.Quantity,
		tx.UnitPrice.String(), tx.TotalCost.String(), tx.ExecutedAt.UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("appending trade (order %s) for user %d: %w", tx.OrderID, userID, err)
	}

	res, err := dbTx.ExecContext(ctx,
		`UPDATE accounts SET cash_balance = ?, updated_at = CURRENT_TIMESTAMP WHERE user_id = ?`,
		newBalance.String(), userID)
	if err != nil {
		return fmt.Errorf("updating balance for trade (order %s) user %d: %w", tx.OrderID, userID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating balance for trade (order %s) user %d: %w", tx.OrderID, userID, err)
	}
	if affected == 0 {
		return ErrAccountNotFound
	}

	if err := dbTx.Commit(); err != nil {
		return fmt.Errorf("committing trade (order %s) for user %d: %w", tx.OrderID, userID, err)
	}
	logger.L.Debug("Trade committed", "userID", userID, "orderID", tx.OrderID, "symbol", tx.Symbol, "quantity", tx.Quantity)
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (models.Transaction, error) {
	var tx models.Transaction
	var unitPriceStr, totalCostStr, executedAtStr string
	if err := row.Scan(&tx.ID, &tx.OrderID, &tx.Symbol, &tx.ProductName, &tx.Quantity,
		&unitPriceStr, &totalCostStr, &executedAtStr); err != nil {
		return models.Transaction{}, err
	}

	var err error
	if tx.UnitPrice, err = decimal.NewFromString(unitPriceStr); err != nil {
		return models.Transaction{}, fmt.Errorf("corrupt unit_price %q: %w", unitPriceStr, err)
	}
	if tx.TotalCost, err = decimal.NewFromString(totalCostStr); err != nil {
		return models.Transaction{}, fmt.Errorf("corrupt total_cost %q: %w", totalCostStr, err)
	}
	if tx.ExecutedAt, err = time.Parse(timeLayout, executedAtStr); err != nil {
		return models.Transaction{}, fmt.Errorf("corrupt executed_at %q: %w", executedAtStr, err)
	}
	return tx, nil
}
