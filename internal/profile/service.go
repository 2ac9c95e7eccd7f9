// Package profile はクレジット残高とチャット履歴の参照を提供する。
package profile

import (
	"context"
	"fmt"

	"github.com/hitoshi/aira/internal/model"
)

// 履歴取得件数の既定値と上限
const (
	DefaultMessageLimit = 50
	MaxMessageLimit     = 200
)

// ProfileStore はプロフィールの取得・作成インターフェース。
type ProfileStore interface {
	EnsureExists(ctx context.Context, id string, initialCredits int) (*model.Profile, error)
}

// MessageLister はチャットログの参照インターフェース。
type MessageLister interface {
	ListByUserID(ctx context.Context, userID string, limit int) ([]*model.ChatMessage, error)
}

// Service はプロフィール参照のサービス層。
type Service struct {
	profiles      ProfileStore
	messages      MessageLister
	signupCredits int
}

// NewService はServiceを生成する。signupCreditsは初回参照時に付与するクレジット数。
func NewService(profiles ProfileStore, messages MessageLister, signupCredits int) *Service {
	if signupCredits < 0 {
		signupCredits = 0
	}
	return &Service{
		profiles:      profiles,
		messages:      messages,
		signupCredits: signupCredits,
	}
}

// GetOrCreate はユーザーのプロフィールを返す。未作成の場合は初期クレジットで作成する。
func (s *Service) GetOrCreate(ctx context.Context, userID string) (*model.Profile, error) {
	p, err := s.profiles.EnsureExists(ctx, userID, s.signupCredits)
	if err != nil {
		return nil, fmt.Errorf("プロフィールの取得に失敗しました: %w", err)
	}
	return p, nil
}

// ListMessages はユーザーの直近のチャットログを古い順で返す。
// limitが0以下なら既定値、上限を超える場合は上限に丸める。
func (s *Service) ListMessages(ctx context.Context, userID string, limit int) ([]*model.ChatMessage, error) {
	switch {
	case limit <= 0:
		limit = DefaultMessageLimit
	case limit > MaxMessageLimit:
		limit = MaxMessageLimit
	}
	msgs, err := s.messages.ListByUserID(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("チャット履歴の取得に失敗しました: %w", err)
	}
	if msgs == nil {
		msgs = []*model.ChatMessage{}
	}
	return msgs, nil
}
