package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/hitoshi/aira/internal/model"
)

// ErrDuplicateSession は同じstripe_session_idのトランザクションが既に存在する場合のエラー。
var ErrDuplicateSession = errors.New("credit transaction for session already exists")

// PostgreSQLのunique_violationエラーコード
const pqUniqueViolation = "23505"

// PostgresCreditTransactionRepo はPostgreSQLを使用したクレジット購入トランザクションリポジトリ。
type PostgresCreditTransactionRepo struct {
	db *sql.DB
}

// NewPostgresCreditTransactionRepo はPostgresCreditTransactionRepoを生成する。
func NewPostgresCreditTransactionRepo(db *sql.DB) *PostgresCreditTransactionRepo {
	return &PostgresCreditTransactionRepo{db: db}
}

// CreatePending はpendingトランザクションを記録する。
// プロフィールが未作成でも外部キーを満たせるよう、残高0のプロフィールを先に用意する。
func (r *PostgresCreditTransactionRepo) CreatePending(ctx context.Context, txn *model.CreditTransaction) error {
	if txn.ID == "" {
		txn.ID = uuid.New().String()
	}
	txn.Status = model.TransactionStatusPending

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO profiles (id, credits) VALUES ($1, 0) ON CONFLICT (id) DO NOTHING`,
		txn.UserID,
	); err != nil {
		return fmt.Errorf("failed to ensure profile: %w", err)
	}

	err = tx.QueryRowContext(ctx,
		`INSERT INTO credit_transactions (id, user_id, amount, credits, stripe_session_id, status)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING created_at, updated_at`,
		txn.ID, txn.UserID, txn.Amount, txn.Credits, txn.StripeSessionID, string(txn.Status),
	).Scan(&txn.CreatedAt, &txn.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation {
			return ErrDuplicateSession
		}
		return fmt.Errorf("failed to insert pending transaction: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// ApplyCheckoutCompleted は決済完了を記録し、同一トランザクション内でクレジットを加算する。
// pendingやexpiredの行はcompletedに遷移させ、既にcompletedの行があれば付与しない。
func (r *PostgresCreditTransactionRepo) ApplyCheckoutCompleted(ctx context.Context, c *model.CheckoutCompletion) (bool, int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO profiles (id, credits) VALUES ($1, 0) ON CONFLICT (id) DO NOTHING`,
		c.UserID,
	); err != nil {
		return false, 0, fmt.Errorf("failed to ensure profile: %w", err)
	}

	var txnID string
	err = tx.QueryRowContext(ctx,
		`INSERT INTO credit_transactions
			(id, user_id, amount, credits, stripe_session_id, stripe_payment_intent_id, status)
		 VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), 'completed')
		 ON CONFLICT (stripe_session_id) DO UPDATE SET
			amount = EXCLUDED.amount,
			stripe_payment_intent_id = EXCLUDED.stripe_payment_intent_id,
			status = 'completed',
			updated_at = now()
		 WHERE credit_transactions.status <> 'completed'
		 RETURNING id`,
		uuid.New().String(), c.UserID, c.Amount, c.Credits, c.StripeSessionID, c.StripePaymentIntentID,
	).Scan(&txnID)
	if err == sql.ErrNoRows {
		// 既にcompleted: 再送イベント
		return false, 0, nil
	}
	if err != nil {
		return false, 0, fmt.Errorf("failed to record completed transaction: %w", err)
	}

	var balance int
	err = tx.QueryRowContext(ctx,
		`INSERT INTO profiles (id, credits) VALUES ($1, $2)
		 ON CONFLICT (id) DO UPDATE SET credits = profiles.credits + EXCLUDED.credits, updated_at = now()
		 RETURNING credits`,
		c.UserID, c.Credits,
	).Scan(&balance)
	if err != nil {
		return false, 0, fmt.Errorf("failed to add credits: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return true, balance, nil
}

// ExpireStalePending はolderThanより前に作成されたpendingをexpiredに更新する。
func (r *PostgresCreditTransactionRepo) ExpireStalePending(ctx context.Context, olderThan time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE credit_transactions SET status = 'expired', updated_at = now()
		 WHERE status = 'pending' AND created_at < $1`,
		olderThan,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to expire pending transactions: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

// FindBySessionID はstripe_session_idでトランザクションを取得する。見つからない場合はnilを返す。
func (r *PostgresCreditTransactionRepo) FindBySessionID(ctx context.Context, sessionID string) (*model.CreditTransaction, error) {
	txn := &model.CreditTransaction{}
	var status string
	var paymentIntent sql.NullString
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, amount, credits, stripe_session_id, stripe_payment_intent_id, status, created_at, updated_at
		 FROM credit_transactions WHERE stripe_session_id = $1`,
		sessionID,
	).Scan(&txn.ID, &txn.UserID, &txn.Amount, &txn.Credits, &txn.StripeSessionID, &paymentIntent,
		&status, &txn.CreatedAt, &txn.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find transaction by session ID: %w", err)
	}
	txn.StripePaymentIntentID = paymentIntent.String
	txn.Status = model.TransactionStatus(status)
	return txn, nil
}

// compile-time interface check
var _ CreditTransactionRepository = (*PostgresCreditTransactionRepo)(nil)
