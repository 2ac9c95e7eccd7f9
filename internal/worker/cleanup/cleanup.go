// Package cleanup は完了しなかったクレジット購入の失効ジョブを提供する。
// Checkout Session作成から一定時間（デフォルト24時間）経過しても
// 決済完了webhookが届かないpendingトランザクションをexpiredに更新する。
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/aira/internal/metrics"
)

// PendingExpirer はpendingトランザクションの失効インターフェース。
// repository.CreditTransactionRepositoryの部分集合として定義する。
type PendingExpirer interface {
	ExpireStalePending(ctx context.Context, olderThan time.Time) (int64, error)
}

// CleanupJob はpendingトランザクションの失効ジョブ。
// 何度実行しても結果が変わらない。
type CleanupJob struct {
	repo    PendingExpirer
	logger  *slog.Logger
	metrics metrics.MetricsCollector
	TTL     time.Duration // pendingの保持期間（デフォルト: 24h）
	now     func() time.Time
}

// NewCleanupJob は新しいCleanupJobを生成する。ttlが0以下の場合は24時間。
func NewCleanupJob(repo PendingExpirer, mc metrics.MetricsCollector, logger *slog.Logger, ttl time.Duration) *CleanupJob {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if mc == nil {
		mc = metrics.Noop{}
	}
	return &CleanupJob{
		repo:    repo,
		logger:  logger,
		metrics: mc,
		TTL:     ttl,
		now:     time.Now,
	}
}

// Run はTTLを超過したpendingトランザクションをexpiredに更新する。
func (j *CleanupJob) Run(ctx context.Context) error {
	start := j.now()
	cutoff := start.Add(-j.TTL)

	expired, err := j.repo.ExpireStalePending(ctx, cutoff)
	if err != nil {
		j.logger.Error("pendingトランザクションの失効に失敗しました",
			slog.String("error", err.Error()),
			slog.Duration("ttl", j.TTL),
		)
		return fmt.Errorf("pendingトランザクションの失効に失敗: %w", err)
	}

	j.metrics.RecordPendingExpired(expired)
	j.logger.Info("pendingトランザクションの失効ジョブが完了しました",
		slog.Int64("expired_count", expired),
		slog.Time("cutoff", cutoff),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return nil
}

// Start は起動直後に1回、その後interval間隔でRunを実行する。
// コンテキストがキャンセルされるまでブロックする。
func (j *CleanupJob) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}

	j.logger.Info("失効ジョブを開始しました", slog.Duration("interval", interval), slog.Duration("ttl", j.TTL))

	// エラーはRun内でログ出力済み
	_ = j.Run(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			j.logger.Info("失効ジョブを停止しました")
			return
		case <-ticker.C:
			_ = j.Run(ctx)
		}
	}
}
