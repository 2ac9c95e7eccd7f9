package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/hitoshi/aira/internal/auth"
	"github.com/hitoshi/aira/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger            *slog.Logger
	TokenVerifier     auth.TokenVerifier
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter

	// 運用
	HealthChecker  HealthChecker
	MetricsHandler http.Handler

	// チャット
	ChatGateway   ChatGateway
	ChatErrorMode string

	// プロフィール
	ProfileService ProfileServiceInterface

	// 課金
	CheckoutService  CheckoutServiceInterface
	WebhookProcessor WebhookProcessorInterface
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RequestID → RealIP → Logging → Recovery → SecurityHeaders → CORS
//	  → (チャット) RateLimit(Chat)
//	  → (認証ルート) BearerAuth → RateLimit(General)
//
// チャットはゲートウェイ内で本人確認を行うため、認証ミドルウェアの外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.NewLoggingMiddleware(logger))
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	chatHandler := NewChatHandler(deps.ChatGateway, deps.ChatErrorMode)
	profileHandler := NewProfileHandler(deps.ProfileService)
	billingHandler := NewBillingHandler(deps.CheckoutService, deps.WebhookProcessor)

	// --- 運用エンドポイント ---
	r.Get("/health", NewHealthHandler(deps.HealthChecker))
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	// --- 認証不要のルート ---
	r.Post("/webhooks/stripe", billingHandler.StripeWebhook)

	r.Group(func(r chi.Router) {
		r.Use(deps.RateLimiter.ChatMiddleware())
		r.Post("/api/chat", chatHandler.Chat)
		// 既存クライアント向けのEdge Function互換パス
		r.Post("/functions/v1/aira-chat", chatHandler.Chat)
	})

	r.With(deps.RateLimiter.GeneralMiddleware()).Get("/api/credits/tiers", billingHandler.ListTiers)

	// --- 認証が必要なルート ---
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewBearerAuthMiddleware(deps.TokenVerifier))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.Get("/api/profile", profileHandler.GetProfile)
		r.Get("/api/chat/messages", profileHandler.ListMessages)
		r.Post("/api/checkout", billingHandler.CreateCheckout)
	})

	return r
}
