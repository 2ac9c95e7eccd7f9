// Package model はドメインモデルを定義する。
package model

import "time"

// Profile はユーザーごとのクレジット残高を保持する。
// ユーザーIDは外部IdP（Supabase Auth）が発行したものをそのまま使う。
type Profile struct {
	ID        string
	Credits   int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// HasCredits はチャット1回分のクレジットが残っているかを返す。
func (p *Profile) HasCredits() bool {
	return p != nil && p.Credits > 0
}
