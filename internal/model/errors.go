// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, credits, provider, billing, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeInvalidRequest            = "INVALID_REQUEST"
	ErrCodeUnauthorized              = "UNAUTHORIZED"
	ErrCodeInsufficientCredits       = "INSUFFICIENT_CREDITS"
	ErrCodePersistence               = "PERSISTENCE_ERROR"
	ErrCodeProvider                  = "PROVIDER_ERROR"
	ErrCodeProviderResponseMalformed = "PROVIDER_RESPONSE_MALFORMED"
	ErrCodeUnknownTier               = "UNKNOWN_TIER"
	ErrCodeCheckoutUnavailable       = "CHECKOUT_UNAVAILABLE"
	ErrCodeInvalidWebhook            = "INVALID_WEBHOOK"
)

// NewInvalidRequestError はリクエスト不正エラーを生成する。
func NewInvalidRequestError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  reason,
		Category: "validation",
		Action:   "Check the request body and try again.",
	}
}

// NewUnauthorizedError は認証失敗エラーを生成する。
func NewUnauthorizedError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  reason,
		Category: "auth",
		Action:   "Please sign in again.",
	}
}

// NewInsufficientCreditsError はクレジット不足エラーを生成する。
func NewInsufficientCreditsError() *APIError {
	return &APIError{
		Code:     ErrCodeInsufficientCredits,
		Message:  "Insufficient credits",
		Category: "credits",
		Action:   "Purchase more credits to keep chatting with AiRA.",
	}
}

// NewPersistenceError はクレジット残高の書き込み失敗エラーを生成する。
func NewPersistenceError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodePersistence,
		Message:  fmt.Sprintf("Credit update error: %s", reason),
		Category: "system",
		Action:   "Please wait a moment and try again.",
	}
}

// NewProviderError は補完プロバイダー呼び出し失敗エラーを生成する。
func NewProviderError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeProvider,
		Message:  fmt.Sprintf("AI provider error: %s", reason),
		Category: "provider",
		Action:   "AiRA is temporarily unavailable. Please try again later.",
	}
}

// NewProviderResponseMalformedError は補完プロバイダーの応答形式不正エラーを生成する。
func NewProviderResponseMalformedError() *APIError {
	return &APIError{
		Code:     ErrCodeProviderResponseMalformed,
		Message:  "Invalid response format from AI provider",
		Category: "provider",
		Action:   "AiRA is temporarily unavailable. Please try again later.",
	}
}

// NewUnknownTierError は存在しないクレジットプランが指定された場合のエラーを生成する。
func NewUnknownTierError(tier string) *APIError {
	return &APIError{
		Code:     ErrCodeUnknownTier,
		Message:  fmt.Sprintf("Unknown credit tier: %s", tier),
		Category: "validation",
		Action:   "Choose one of starter, plus or premium.",
	}
}

// NewCheckoutUnavailableError は決済が設定されていない場合のエラーを生成する。
func NewCheckoutUnavailableError() *APIError {
	return &APIError{
		Code:     ErrCodeCheckoutUnavailable,
		Message:  "Checkout is not available right now",
		Category: "billing",
		Action:   "Please try again later.",
	}
}

// NewInvalidWebhookError はwebhookの検証・解析に失敗した場合のエラーを生成する。
func NewInvalidWebhookError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidWebhook,
		Message:  fmt.Sprintf("Webhook error: %s", reason),
		Category: "billing",
		Action:   "",
	}
}
