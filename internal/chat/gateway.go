// Package chat はクレジット課金付きのチャットゲートウェイを提供する。
// 1リクエストにつき、本人確認、クレジット1消費、補完プロバイダー呼び出し、
// チャットログ追記を順に実行する。
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/aira/internal/auth"
	"github.com/hitoshi/aira/internal/completion"
	"github.com/hitoshi/aira/internal/config"
	"github.com/hitoshi/aira/internal/metrics"
	"github.com/hitoshi/aira/internal/model"
)

// CreditStore はゲートウェイが使用するクレジット残高の操作。
// repository.ProfileRepositoryの部分集合として定義する。
type CreditStore interface {
	FindByID(ctx context.Context, id string) (*model.Profile, error)
	UpdateCredits(ctx context.Context, id string, credits int) error
	DebitCredit(ctx context.Context, id string) (remaining int, ok bool, err error)
	AddCredits(ctx context.Context, id string, delta int) (int, error)
}

// MessageLog はチャットログの追記インターフェース。
type MessageLog interface {
	Append(ctx context.Context, msg *model.ChatMessage) error
}

// Options はゲートウェイの動作設定。
type Options struct {
	// DebitMode は config.DebitModeAtomic または config.DebitModeLegacy。
	DebitMode string
	// RefundOnProviderFailure がtrueの場合、プロバイダー失敗時にクレジットを1返却する。
	RefundOnProviderFailure bool
	SystemPrompt            string
	ProviderTimeout         time.Duration
}

// Request は1回分のチャット呼び出し。
type Request struct {
	AuthToken string
	Message   string
	History   []model.HistoryEntry
}

// Result はチャット呼び出しの結果。
type Result struct {
	UserID           string
	Reply            string
	RemainingCredits int
	// LogFailures はチャットログ追記の失敗。呼び出し元には成功として返す。
	LogFailures []error
}

// Gateway はクレジット課金付きチャットのサービス層。
// 呼び出し間で共有する可変状態は持たない。
type Gateway struct {
	verifier auth.TokenVerifier
	credits  CreditStore
	messages MessageLog
	provider completion.Provider
	metrics  metrics.MetricsCollector
	logger   *slog.Logger
	opts     Options
}

// NewGateway はGatewayを生成する。metricsがnilの場合は記録しない。
func NewGateway(
	verifier auth.TokenVerifier,
	credits CreditStore,
	messages MessageLog,
	provider completion.Provider,
	mc metrics.MetricsCollector,
	logger *slog.Logger,
	opts Options,
) *Gateway {
	if mc == nil {
		mc = metrics.Noop{}
	}
	if opts.DebitMode == "" {
		opts.DebitMode = config.DebitModeAtomic
	}
	if opts.SystemPrompt == "" {
		opts.SystemPrompt = completion.DefaultSystemPrompt
	}
	if opts.ProviderTimeout <= 0 {
		opts.ProviderTimeout = 30 * time.Second
	}
	return &Gateway{
		verifier: verifier,
		credits:  credits,
		messages: messages,
		provider: provider,
		metrics:  mc,
		logger:   logger,
		opts:     opts,
	}
}

// Handle はチャット1回分を処理する。
// クレジット減算が確定した後は呼び出し元のキャンセルを無視し、
// プロバイダータイムアウトの範囲で最後まで処理する。
func (g *Gateway) Handle(ctx context.Context, req Request) (result *Result, err error) {
	defer func() {
		outcome := metrics.ChatOutcomeOK
		if err != nil {
			outcome = "UNKNOWN"
			var apiErr *model.APIError
			if errors.As(err, &apiErr) {
				outcome = apiErr.Code
			}
		}
		g.metrics.RecordChatOutcome(outcome)
	}()

	if req.Message == "" {
		return nil, model.NewInvalidRequestError("Message is required")
	}

	// 1. 本人確認
	userID, err := g.resolveUser(ctx, req.AuthToken)
	if err != nil {
		return nil, err
	}
	logger := g.logger.With(slog.String("user_id", userID))
	logger.Info("chat request received", slog.Int("message_length", len(req.Message)))

	// 2-3. クレジット確認と減算
	remaining, err := g.debit(ctx, userID)
	if err != nil {
		return nil, err
	}
	g.metrics.RecordCreditDebited()
	logger.Info("credit deducted", slog.Int("remaining_credits", remaining))

	// 減算は確定済み。以降は切断されても巻き戻さない。
	work := context.WithoutCancel(ctx)
	result = &Result{UserID: userID, RemainingCredits: remaining}

	// 4. ユーザーメッセージの保存
	g.appendLog(work, logger, result, userID, model.RoleUser, req.Message)

	// 5-6. 補完プロバイダー呼び出し
	reply, err := g.complete(work, req)
	if err != nil {
		logger.Error("completion provider failed", slog.String("provider", g.provider.Name()), slog.String("error", err.Error()))
		if g.opts.RefundOnProviderFailure {
			g.refund(work, logger, userID)
		}
		return nil, err
	}

	// 7. AI応答の保存
	g.appendLog(work, logger, result, userID, model.RoleAssistant, reply)

	result.Reply = reply
	logger.Info("chat completed",
		slog.Int("remaining_credits", remaining),
		slog.Int("response_length", len(reply)),
		slog.Int("log_failures", len(result.LogFailures)),
	)
	return result, nil
}

func (g *Gateway) resolveUser(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", model.NewUnauthorizedError("No authorization header")
	}
	userID, err := g.verifier.Verify(ctx, token)
	if err != nil {
		g.logger.Warn("token verification failed", slog.String("error", err.Error()))
		if errors.Is(err, auth.ErrInvalidToken) {
			return "", model.NewUnauthorizedError("User not authenticated")
		}
		return "", model.NewUnauthorizedError(fmt.Sprintf("Auth error: %v", err))
	}
	return userID, nil
}

// debit はクレジットを1消費し、消費後の残高を返す。
func (g *Gateway) debit(ctx context.Context, userID string) (int, error) {
	if g.opts.DebitMode == config.DebitModeLegacy {
		return g.debitReadThenWrite(ctx, userID)
	}

	remaining, ok, err := g.credits.DebitCredit(ctx, userID)
	if err != nil {
		g.logger.Error("failed to debit credit", slog.String("user_id", userID), slog.String("error", err.Error()))
		return 0, model.NewPersistenceError("failed to update credits")
	}
	if !ok {
		return 0, model.NewInsufficientCreditsError()
	}
	return remaining, nil
}

// debitReadThenWrite は残高の読み取りと書き込みを別々に行う。
// 同時リクエストが同じ残高を読むと、両方が成功して消費が1回分になる。
func (g *Gateway) debitReadThenWrite(ctx context.Context, userID string) (int, error) {
	profile, err := g.credits.FindByID(ctx, userID)
	if err != nil {
		g.logger.Error("failed to read credits", slog.String("user_id", userID), slog.String("error", err.Error()))
		return 0, model.NewPersistenceError("failed to read credits")
	}
	if !profile.HasCredits() {
		return 0, model.NewInsufficientCreditsError()
	}

	remaining := profile.Credits - 1
	if err := g.credits.UpdateCredits(ctx, userID, remaining); err != nil {
		g.logger.Error("failed to write credits", slog.String("user_id", userID), slog.String("error", err.Error()))
		return 0, model.NewPersistenceError("failed to update credits")
	}
	return remaining, nil
}

func (g *Gateway) complete(ctx context.Context, req Request) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.opts.ProviderTimeout)
	defer cancel()

	start := time.Now()
	reply, err := g.provider.Complete(ctx, completion.Request{
		Message:      req.Message,
		History:      req.History,
		SystemPrompt: g.opts.SystemPrompt,
	})
	g.metrics.RecordProviderLatency(g.provider.Name(), time.Since(start))

	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", model.NewProviderError("request timed out")
		}
		var apiErr *model.APIError
		if errors.As(err, &apiErr) {
			return "", apiErr
		}
		return "", model.NewProviderError(err.Error())
	}
	if reply == "" {
		return "", model.NewProviderResponseMalformedError()
	}
	return reply, nil
}

// appendLog はチャットログを追記する。失敗してもリクエストは継続し、失敗をresultに記録する。
func (g *Gateway) appendLog(ctx context.Context, logger *slog.Logger, result *Result, userID string, role model.Role, content string) {
	err := g.messages.Append(ctx, &model.ChatMessage{
		UserID:  userID,
		Role:    role,
		Content: content,
	})
	if err == nil {
		return
	}
	logger.Warn("failed to append chat message", slog.String("role", string(role)), slog.String("error", err.Error()))
	g.metrics.RecordLogAppendFailure(string(role))
	result.LogFailures = append(result.LogFailures, fmt.Errorf("append %s message: %w", role, err))
}

func (g *Gateway) refund(ctx context.Context, logger *slog.Logger, userID string) {
	balance, err := g.credits.AddCredits(ctx, userID, 1)
	if err != nil {
		logger.Error("failed to refund credit", slog.String("error", err.Error()))
		return
	}
	g.metrics.RecordCreditRefunded()
	logger.Info("credit refunded after provider failure", slog.Int("credits", balance))
}
