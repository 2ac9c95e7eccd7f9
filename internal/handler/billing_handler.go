package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/hitoshi/aira/internal/billing"
	"github.com/hitoshi/aira/internal/middleware"
	"github.com/hitoshi/aira/internal/model"
)

// maxWebhookBodyBytes はwebhook本文の上限。
const maxWebhookBodyBytes = 65536

// CheckoutServiceInterface はクレジット購入ハンドラーが必要とするサービスインターフェース。
type CheckoutServiceInterface interface {
	Tiers() []billing.Tier
	CreateCheckout(ctx context.Context, userID, tierID string) (*billing.Session, error)
}

// WebhookProcessorInterface は決済webhookの処理インターフェース。
type WebhookProcessorInterface interface {
	Process(ctx context.Context, payload []byte, signature string) error
}

// BillingHandler はクレジット購入と決済webhookのHTTPハンドラー。
type BillingHandler struct {
	checkout CheckoutServiceInterface
	webhook  WebhookProcessorInterface
}

// NewBillingHandler はBillingHandlerを生成する。
func NewBillingHandler(checkout CheckoutServiceInterface, webhook WebhookProcessorInterface) *BillingHandler {
	return &BillingHandler{checkout: checkout, webhook: webhook}
}

type checkoutRequest struct {
	Tier string `json:"tier"`
}

// ListTiers はクレジットプラン一覧を返す。
// GET /api/credits/tiers
func (h *BillingHandler) ListTiers(w http.ResponseWriter, r *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, map[string]any{"tiers": h.checkout.Tiers()})
}

// CreateCheckout はCheckout Sessionを作成する。
// POST /api/checkout
func (h *BillingHandler) CreateCheckout(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, unauthorizedError())
		return
	}

	var req checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Tier == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("tier is required"))
		return
	}

	session, err := h.checkout.CreateCheckout(r.Context(), userID, req.Tier)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, session)
}

// StripeWebhook は決済完了webhookを受け付ける。
// 検証・解析に失敗したイベントは400、永続化の失敗は再送させるため500で返す。
// POST /webhooks/stripe
func (h *BillingHandler) StripeWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBodyBytes))
	if err != nil {
		middleware.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "failed to read request body"})
		return
	}

	err = h.webhook.Process(r.Context(), payload, r.Header.Get("Stripe-Signature"))
	if err != nil {
		var apiErr *model.APIError
		if errors.As(err, &apiErr) {
			middleware.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": apiErr.Message})
			return
		}
		slog.Error("stripe webhook processing failed", slog.String("error", err.Error()))
		middleware.WriteJSON(w, http.StatusInternalServerError, map[string]string{"error": "webhook processing failed"})
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]bool{"received": true})
}
