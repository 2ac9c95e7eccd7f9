// Package model はドメインモデルを定義する。
package model

import "time"

// TransactionStatus はクレジット購入トランザクションの状態を表す。
type TransactionStatus string

const (
	// TransactionStatusPending はCheckout Session作成済みで決済完了を待っている状態。
	TransactionStatusPending TransactionStatus = "pending"
	// TransactionStatusCompleted は決済完了webhookを受けてクレジットを付与した状態。
	TransactionStatusCompleted TransactionStatus = "completed"
	// TransactionStatusExpired は一定期間完了しなかったpendingトランザクション。
	TransactionStatusExpired TransactionStatus = "expired"
)

// CreditTransaction はクレジット購入の記録を表す。
// stripe_session_id はユニークで、同一セッションに対する付与は1回に限られる。
type CreditTransaction struct {
	ID                    string
	UserID                string
	Amount                int64 // 決済金額（最小通貨単位）
	Credits               int
	StripeSessionID       string
	StripePaymentIntentID string
	Status                TransactionStatus
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// CheckoutCompletion は checkout.session.completed イベントから取り出した付与内容。
type CheckoutCompletion struct {
	UserID                string
	Credits               int
	Amount                int64
	StripeSessionID       string
	StripePaymentIntentID string
}
