package repo

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"inkforge/internal/domain"
)

// WalletRepositoryPG implements domain.WalletRepository backed by PostgreSQL.
// The debit path runs a conditional decrement and the transaction insert in
// one database transaction, so a concurrent spend cannot double-pass the
// balance check.
type WalletRepositoryPG struct {
	pool *pgxpool.Pool
}

func NewWalletRepository(pool *pgxpool.Pool) *WalletRepositoryPG {
	return &WalletRepositoryPG{pool: pool}
}

// Balance returns the user's current token balance.
func (r *WalletRepositoryPG) Balance(ctx context.Context, userID string) (int, error) {
	query := `SELECT itc_balance FROM wallets WHERE user_id = $1;`

	var balance int
	err := r.pool.QueryRow(ctx, query, userID).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, domain.ErrNotFound
		}
		return 0, err
	}
	return balance, nil
}

// DebitIfSufficient decrements the balance only when it covers the amount and
// records the signed transaction. Returns domain.ErrInsufficientBalance when
// the conditional update matches no row.
func (r *WalletRepositoryPG) DebitIfSufficient(ctx context.Context, userID string, amount int, reference string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	debit := `
UPDATE wallets
SET itc_balance = itc_balance - $2, updated_at = NOW()
WHERE user_id = $1 AND itc_balance >= $2;
`
	tag, err := tx.Exec(ctx, debit, userID, amount)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		// Either the wallet is missing or the balance is short. Both mean
		// the spend cannot proceed.
		return domain.ErrInsufficientBalance
	}

	insert := `
INSERT INTO wallet_transactions (id, user_id, amount, type, reference)
VALUES ($1, $2, $3, $4, $5);
`
	if _, err := tx.Exec(ctx, insert, uuid.NewString(), userID, -amount, domain.TransactionDebit, reference); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// Credit adds tokens back to the wallet with a matching transaction row.
func (r *WalletRepositoryPG) Credit(ctx context.Context, userID string, amount int, reference string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	credit := `UPDATE wallets SET itc_balance = itc_balance + $2, updated_at = NOW() WHERE user_id = $1;`
	tag, err := tx.Exec(ctx, credit, userID, amount)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}

	insert := `
INSERT INTO wallet_transactions (id, user_id, amount, type, reference)
VALUES ($1, $2, $3, $4, $5);
`
	if _, err := tx.Exec(ctx, insert, uuid.NewString(), userID, amount, domain.TransactionCredit, reference); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// ListTransactions returns the user's most recent transactions.
func (r *WalletRepositoryPG) ListTransactions(ctx context.Context, userID string, limit int) ([]domain.Transaction, error) {
	query := `
SELECT id, user_id, amount, type, reference, created_at
FROM wallet_transactions
WHERE user_id = $1
ORDER BY created_at DESC
LIMIT $2;
`
	rows, err := r.pool.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txns []domain.Transaction
	for rows.Next() {
		var txn domain.Transaction
		if err := rows.Scan(&txn.ID, &txn.UserID, &txn.Amount, &txn.Type, &txn.Reference, &txn.CreatedAt); err != nil {
			return nil, err
		}
		txns = append(txns, txn)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return txns, nil
}

var _ domain.WalletRepository = (*WalletRepositoryPG)(nil)
