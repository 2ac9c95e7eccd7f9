// Package model はドメインモデルを定義する。
package model

import "time"

// Role はチャットメッセージの発言者を表す。
type Role string

const (
	// RoleUser はユーザーの発言。
	RoleUser Role = "user"
	// RoleAssistant はAiRAの応答。
	RoleAssistant Role = "assistant"
)

// Valid はロールが既知の値かを返す。
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// ChatMessage はチャットログの1行を表す。
// 追記専用で、作成後に更新・削除されることはない。
type ChatMessage struct {
	ID        string
	UserID    string
	Role      Role
	Content   string
	CreatedAt time.Time
}

// HistoryEntry はクライアントから送られてくる会話履歴の1要素。
// 永続化はされず、補完プロバイダーへそのまま転送される。
type HistoryEntry struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
