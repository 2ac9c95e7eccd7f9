package handler

import (
	"context"
	"net/http"

	"github.com/hitoshi/aira/internal/billing"
	"github.com/hitoshi/aira/internal/chat"
	"github.com/hitoshi/aira/internal/middleware"
	"github.com/hitoshi/aira/internal/model"
)

// --- モック定義 ---

type mockChatGateway struct {
	handleFn func(ctx context.Context, req chat.Request) (*chat.Result, error)
	requests []chat.Request
}

func (m *mockChatGateway) Handle(ctx context.Context, req chat.Request) (*chat.Result, error) {
	m.requests = append(m.requests, req)
	if m.handleFn != nil {
		return m.handleFn(ctx, req)
	}
	return &chat.Result{UserID: "user-123", Reply: "ok", RemainingCredits: 1}, nil
}

type mockProfileService struct {
	getOrCreateFn  func(ctx context.Context, userID string) (*model.Profile, error)
	listMessagesFn func(ctx context.Context, userID string, limit int) ([]*model.ChatMessage, error)
}

func (m *mockProfileService) GetOrCreate(ctx context.Context, userID string) (*model.Profile, error) {
	if m.getOrCreateFn != nil {
		return m.getOrCreateFn(ctx, userID)
	}
	return &model.Profile{ID: userID}, nil
}

func (m *mockProfileService) ListMessages(ctx context.Context, userID string, limit int) ([]*model.ChatMessage, error) {
	if m.listMessagesFn != nil {
		return m.listMessagesFn(ctx, userID, limit)
	}
	return []*model.ChatMessage{}, nil
}

type mockCheckoutService struct {
	createFn func(ctx context.Context, userID, tierID string) (*billing.Session, error)
}

func (m *mockCheckoutService) Tiers() []billing.Tier {
	return billing.NewCatalog(billing.PriceIDs{}).List()
}

func (m *mockCheckoutService) CreateCheckout(ctx context.Context, userID, tierID string) (*billing.Session, error) {
	if m.createFn != nil {
		return m.createFn(ctx, userID, tierID)
	}
	return &billing.Session{ID: "cs_test_1", URL: "https://checkout.stripe.com/c/pay/cs_test_1"}, nil
}

type mockWebhookProcessor struct {
	processFn func(ctx context.Context, payload []byte, signature string) error
}

func (m *mockWebhookProcessor) Process(ctx context.Context, payload []byte, signature string) error {
	if m.processFn != nil {
		return m.processFn(ctx, payload, signature)
	}
	return nil
}

type mockVerifier struct {
	verifyFn func(ctx context.Context, token string) (string, error)
}

func (m *mockVerifier) Verify(ctx context.Context, token string) (string, error) {
	if m.verifyFn != nil {
		return m.verifyFn(ctx, token)
	}
	return "user-123", nil
}

type mockHealthChecker struct {
	err error
}

func (m *mockHealthChecker) PingContext(ctx context.Context) error {
	return m.err
}

// withUserID はテスト用にリクエストコンテキストへユーザーIDを注入する。
func withUserID(r *http.Request, userID string) *http.Request {
	return r.WithContext(middleware.ContextWithUserID(r.Context(), userID))
}
