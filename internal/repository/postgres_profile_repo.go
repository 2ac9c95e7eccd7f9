package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/aira/internal/model"
)

// PostgresProfileRepo はPostgreSQLを使用したプロフィールリポジトリ。
type PostgresProfileRepo struct {
	db *sql.DB
}

// NewPostgresProfileRepo はPostgresProfileRepoを生成する。
func NewPostgresProfileRepo(db *sql.DB) *PostgresProfileRepo {
	return &PostgresProfileRepo{db: db}
}

// FindByID は指定IDのプロフィールを取得する。見つからない場合はnilを返す。
func (r *PostgresProfileRepo) FindByID(ctx context.Context, id string) (*model.Profile, error) {
	p := &model.Profile{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, credits, created_at, updated_at FROM profiles WHERE id = $1`,
		id,
	).Scan(&p.ID, &p.Credits, &p.CreatedAt, &p.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find profile by ID: %w", err)
	}

	return p, nil
}

// EnsureExists はプロフィールが無ければinitialCreditsで作成し、現在の行を返す。
// 既存行の残高は変更しない。
func (r *PostgresProfileRepo) EnsureExists(ctx context.Context, id string, initialCredits int) (*model.Profile, error) {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO profiles (id, credits) VALUES ($1, $2) ON CONFLICT (id) DO NOTHING`,
		id, initialCredits,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to ensure profile: %w", err)
	}

	p, err := r.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("profile disappeared after insert: %s", id)
	}
	return p, nil
}

// UpdateCredits はクレジット残高を指定値で上書きする。
func (r *PostgresProfileRepo) UpdateCredits(ctx context.Context, id string, credits int) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE profiles SET credits = $2, updated_at = now() WHERE id = $1`,
		id, credits,
	)
	if err != nil {
		return fmt.Errorf("failed to update credits: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("profile not found: %s", id)
	}
	return nil
}

// DebitCredit は残高が1以上の場合に限り1減算する。
// 条件判定と減算を1文のUPDATEで行うため、並行リクエストでも残高が負にならない。
func (r *PostgresProfileRepo) DebitCredit(ctx context.Context, id string) (int, bool, error) {
	var remaining int
	err := r.db.QueryRowContext(ctx,
		`UPDATE profiles SET credits = credits - 1, updated_at = now()
		 WHERE id = $1 AND credits > 0
		 RETURNING credits`,
		id,
	).Scan(&remaining)

	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to debit credit: %w", err)
	}
	return remaining, true, nil
}

// AddCredits は残高にdeltaを加算し、加算後の残高を返す。
func (r *PostgresProfileRepo) AddCredits(ctx context.Context, id string, delta int) (int, error) {
	var balance int
	err := r.db.QueryRowContext(ctx,
		`UPDATE profiles SET credits = credits + $2, updated_at = now()
		 WHERE id = $1
		 RETURNING credits`,
		id, delta,
	).Scan(&balance)

	if err == sql.ErrNoRows {
		return 0, fmt.Errorf("profile not found: %s", id)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to add credits: %w", err)
	}
	return balance, nil
}

// compile-time interface check
var _ ProfileRepository = (*PostgresProfileRepo)(nil)
