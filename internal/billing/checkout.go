package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"

	"github.com/hitoshi/aira/internal/model"
	"github.com/hitoshi/aira/internal/repository"
)

// メタデータキー。webhookでの付与先とクレジット数の復元に使用する。
const (
	metadataUserID  = "user_id"
	metadataCredits = "credits"
	metadataTier    = "tier"
)

// SessionRequest はCheckout Session作成パラメータ。
type SessionRequest struct {
	UserID     string
	Tier       Tier
	SuccessURL string
	CancelURL  string
}

// Session は作成されたCheckout Session。
type Session struct {
	ID  string `json:"sessionId"`
	URL string `json:"url"`
}

// SessionCreator は決済代行サービスのCheckout Session作成インターフェース。
type SessionCreator interface {
	CreateSession(ctx context.Context, req SessionRequest) (*Session, error)
}

// StripeSessionCreator はstripe-goでCheckout Sessionを作成する。
type StripeSessionCreator struct {
	api *client.API
}

// NewStripeSessionCreator はStripeのシークレットキーでクライアントを初期化する。
func NewStripeSessionCreator(secretKey string) *StripeSessionCreator {
	api := &client.API{}
	api.Init(secretKey, nil)
	return &StripeSessionCreator{api: api}
}

// CreateSession は1回払いのCheckout Sessionを作成する。
func (s *StripeSessionCreator) CreateSession(ctx context.Context, req SessionRequest) (*Session, error) {
	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(req.Tier.PriceID),
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL:        stripe.String(req.SuccessURL),
		CancelURL:         stripe.String(req.CancelURL),
		ClientReferenceID: stripe.String(req.UserID),
	}
	params.Context = ctx
	params.AddMetadata(metadataUserID, req.UserID)
	params.AddMetadata(metadataCredits, strconv.Itoa(req.Tier.Credits))
	params.AddMetadata(metadataTier, req.Tier.ID)

	cs, err := s.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("failed to create checkout session: %w", err)
	}
	return &Session{ID: cs.ID, URL: cs.URL}, nil
}

// PendingRecorder はpendingトランザクションの記録インターフェース。
type PendingRecorder interface {
	CreatePending(ctx context.Context, txn *model.CreditTransaction) error
}

// CheckoutService はクレジット購入開始のサービス層。
type CheckoutService struct {
	catalog *Catalog
	creator SessionCreator
	pending PendingRecorder
	baseURL string
	logger  *slog.Logger
}

// NewCheckoutService はCheckoutServiceを生成する。creatorがnilの場合、購入は利用不可になる。
func NewCheckoutService(catalog *Catalog, creator SessionCreator, pending PendingRecorder, baseURL string, logger *slog.Logger) *CheckoutService {
	return &CheckoutService{
		catalog: catalog,
		creator: creator,
		pending: pending,
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger,
	}
}

// Tiers はプラン一覧を返す。
func (s *CheckoutService) Tiers() []Tier {
	return s.catalog.List()
}

// CreateCheckout は指定プランのCheckout Sessionを作成し、pendingトランザクションを記録する。
func (s *CheckoutService) CreateCheckout(ctx context.Context, userID, tierID string) (*Session, error) {
	tier, ok := s.catalog.Lookup(tierID)
	if !ok {
		return nil, model.NewUnknownTierError(tierID)
	}
	if s.creator == nil || tier.PriceID == "" {
		return nil, model.NewCheckoutUnavailableError()
	}

	session, err := s.creator.CreateSession(ctx, SessionRequest{
		UserID:     userID,
		Tier:       tier,
		SuccessURL: s.baseURL + "/credits?checkout=success&session_id={CHECKOUT_SESSION_ID}",
		CancelURL:  s.baseURL + "/credits?checkout=cancelled",
	})
	if err != nil {
		s.logger.Error("checkout session creation failed",
			slog.String("user_id", userID),
			slog.String("tier", tierID),
			slog.String("error", err.Error()),
		)
		return nil, model.NewCheckoutUnavailableError()
	}

	err = s.pending.CreatePending(ctx, &model.CreditTransaction{
		UserID:          userID,
		Amount:          tier.PriceCents,
		Credits:         tier.Credits,
		StripeSessionID: session.ID,
	})
	if err != nil && !errors.Is(err, repository.ErrDuplicateSession) {
		// セッションは作成済みのため、記録失敗でも購入は続行できる
		s.logger.Warn("failed to record pending transaction",
			slog.String("session_id", session.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.Info("checkout session created",
		slog.String("user_id", userID),
		slog.String("tier", tierID),
		slog.String("session_id", session.ID),
	)
	return session, nil
}
