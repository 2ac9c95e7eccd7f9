package billing

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/hitoshi/aira/internal/metrics"
	"github.com/hitoshi/aira/internal/model"
)

// EventCheckoutSessionCompleted はクレジット付与の対象となるイベント種別。
const EventCheckoutSessionCompleted = "checkout.session.completed"

// webhook処理結果（メトリクスのoutcomeラベル）
const (
	OutcomeApplied   = "applied"
	OutcomeDuplicate = "duplicate"
	OutcomeIgnored   = "ignored"
	OutcomeInvalid   = "invalid"
	OutcomeFailed    = "failed"
)

// CompletionApplier は決済完了の反映インターフェース。
type CompletionApplier interface {
	ApplyCheckoutCompleted(ctx context.Context, c *model.CheckoutCompletion) (applied bool, balance int, err error)
}

// WebhookProcessor はStripe webhookの検証とクレジット付与を行う。
type WebhookProcessor struct {
	secret  string
	applier CompletionApplier
	metrics metrics.MetricsCollector
	logger  *slog.Logger
}

// NewWebhookProcessor はWebhookProcessorを生成する。
// secretが空の場合、すべてのイベントを検証失敗として拒否する。
func NewWebhookProcessor(secret string, applier CompletionApplier, mc metrics.MetricsCollector, logger *slog.Logger) *WebhookProcessor {
	if mc == nil {
		mc = metrics.Noop{}
	}
	return &WebhookProcessor{
		secret:  secret,
		applier: applier,
		metrics: mc,
		logger:  logger,
	}
}

// Process は署名を検証し、イベントを処理する。
// 検証・解析の失敗はInvalidWebhookエラー、永続化の失敗はラップしたエラーを返す。
// 対象外のイベントやメタデータ不足のイベントは受理してnilを返す。
func (p *WebhookProcessor) Process(ctx context.Context, payload []byte, signature string) error {
	if p.secret == "" {
		p.metrics.RecordWebhookEvent("unknown", OutcomeInvalid)
		p.logger.Error("stripe webhook secret is not configured")
		return model.NewInvalidWebhookError("webhook secret is not configured")
	}
	if signature == "" {
		p.metrics.RecordWebhookEvent("unknown", OutcomeInvalid)
		return model.NewInvalidWebhookError("missing Stripe-Signature header")
	}

	event, err := webhook.ConstructEventWithOptions(payload, signature, p.secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		p.metrics.RecordWebhookEvent("unknown", OutcomeInvalid)
		p.logger.Warn("stripe webhook verification failed", slog.String("error", err.Error()))
		return model.NewInvalidWebhookError(err.Error())
	}

	eventType := string(event.Type)
	logger := p.logger.With(slog.String("event_id", event.ID), slog.String("event_type", eventType))

	if eventType != EventCheckoutSessionCompleted {
		p.metrics.RecordWebhookEvent(eventType, OutcomeIgnored)
		logger.Info("stripe event ignored")
		return nil
	}

	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		p.metrics.RecordWebhookEvent(eventType, OutcomeInvalid)
		return model.NewInvalidWebhookError(fmt.Sprintf("failed to parse checkout session: %v", err))
	}

	completion, ok := completionFromSession(&session)
	if !ok {
		p.metrics.RecordWebhookEvent(eventType, OutcomeIgnored)
		logger.Warn("checkout session without usable metadata",
			slog.String("session_id", session.ID),
			slog.Any("metadata", session.Metadata),
		)
		return nil
	}

	applied, balance, err := p.applier.ApplyCheckoutCompleted(ctx, completion)
	if err != nil {
		p.metrics.RecordWebhookEvent(eventType, OutcomeFailed)
		return fmt.Errorf("failed to apply checkout completion: %w", err)
	}
	if !applied {
		p.metrics.RecordWebhookEvent(eventType, OutcomeDuplicate)
		logger.Info("checkout session already applied", slog.String("session_id", completion.StripeSessionID))
		return nil
	}

	p.metrics.RecordWebhookEvent(eventType, OutcomeApplied)
	p.metrics.RecordCreditsPurchased(completion.Credits)
	logger.Info("credits added",
		slog.String("user_id", completion.UserID),
		slog.String("session_id", completion.StripeSessionID),
		slog.Int("credits_added", completion.Credits),
		slog.Int("credits", balance),
	)
	return nil
}

// completionFromSession はメタデータから付与内容を取り出す。
// user_idがUUIDでない、またはcreditsが正の整数でない場合はok=falseを返す。
// profiles.idはUUID列のため、UUID以外は再送しても付与できない。
func completionFromSession(s *stripe.CheckoutSession) (*model.CheckoutCompletion, bool) {
	if s.ID == "" {
		return nil, false
	}
	uid, err := uuid.Parse(strings.TrimSpace(s.Metadata[metadataUserID]))
	if err != nil {
		return nil, false
	}
	userID := uid.String()
	credits, err := strconv.Atoi(strings.TrimSpace(s.Metadata[metadataCredits]))
	if err != nil || credits <= 0 {
		return nil, false
	}

	c := &model.CheckoutCompletion{
		UserID:          userID,
		Credits:         credits,
		Amount:          s.AmountTotal,
		StripeSessionID: s.ID,
	}
	if s.PaymentIntent != nil {
		c.StripePaymentIntentID = s.PaymentIntent.ID
	}
	return c, true
}
