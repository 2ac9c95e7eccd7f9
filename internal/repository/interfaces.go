// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/aira/internal/model"
)

// ProfileRepository はクレジット残高を保持するプロフィールの永続化インターフェース。
type ProfileRepository interface {
	// FindByID は指定IDのプロフィールを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Profile, error)

	// EnsureExists はプロフィールが無ければinitialCreditsで作成し、現在の行を返す。
	EnsureExists(ctx context.Context, id string, initialCredits int) (*model.Profile, error)

	// UpdateCredits はクレジット残高を指定値で上書きする。
	// 読み取りと書き込みが分離した旧来の減算方式でのみ使用する。
	UpdateCredits(ctx context.Context, id string, credits int) error

	// DebitCredit は残高が1以上の場合に限り1減算し、減算後の残高を返す。
	// 残高不足またはプロフィールが存在しない場合は ok=false を返す。
	DebitCredit(ctx context.Context, id string) (remaining int, ok bool, err error)

	// AddCredits は残高にdeltaを加算し、加算後の残高を返す。
	AddCredits(ctx context.Context, id string, delta int) (int, error)
}

// ChatMessageRepository はチャットログの永続化インターフェース。追記のみ。
type ChatMessageRepository interface {
	// Append はメッセージを1件追記する。IDとCreatedAtが空の場合は採番する。
	Append(ctx context.Context, msg *model.ChatMessage) error

	// ListByUserID はユーザーの直近limit件を作成順（古い順）で返す。
	ListByUserID(ctx context.Context, userID string, limit int) ([]*model.ChatMessage, error)
}

// CreditTransactionRepository はクレジット購入トランザクションの永続化インターフェース。
type CreditTransactionRepository interface {
	// CreatePending はCheckout Session作成時のpendingトランザクションを記録する。
	CreatePending(ctx context.Context, txn *model.CreditTransaction) error

	// ApplyCheckoutCompleted は決済完了を記録し、同一トランザクション内でクレジットを加算する。
	// 同じstripe_session_idが既にcompletedの場合は何もせず applied=false を返す。
	ApplyCheckoutCompleted(ctx context.Context, c *model.CheckoutCompletion) (applied bool, balance int, err error)

	// ExpireStalePending はolderThanより前に作成されたpendingをexpiredに更新し、件数を返す。
	ExpireStalePending(ctx context.Context, olderThan time.Time) (int64, error)

	// FindBySessionID はstripe_session_idでトランザクションを取得する。見つからない場合はnilを返す。
	FindBySessionID(ctx context.Context, sessionID string) (*model.CreditTransaction, error)
}
