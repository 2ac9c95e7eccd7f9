package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hitoshi/aira/internal/auth"
	"github.com/hitoshi/aira/internal/billing"
	"github.com/hitoshi/aira/internal/chat"
	"github.com/hitoshi/aira/internal/completion"
	"github.com/hitoshi/aira/internal/config"
	"github.com/hitoshi/aira/internal/database"
	"github.com/hitoshi/aira/internal/handler"
	"github.com/hitoshi/aira/internal/logger"
	"github.com/hitoshi/aira/internal/metrics"
	"github.com/hitoshi/aira/internal/middleware"
	"github.com/hitoshi/aira/internal/profile"
	"github.com/hitoshi/aira/internal/repository"
	"github.com/hitoshi/aira/internal/security"
	"github.com/hitoshi/aira/internal/worker/cleanup"
)

// Init はアプリケーションの初期化を行う。
// .envファイルがあれば環境変数に読み込み、JSON構造化ログをセットアップしてからConfigを読み込む。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. .envの読み込み（既存の環境変数は上書きしない）
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	// 2. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 3. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	if isUnknownCommand(args) {
		slog.Warn("unknown command, falling back to serve", slog.String("arg", args[0]))
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
		slog.String("completion_provider", cfg.CompletionProvider),
		slog.String("credit_debit_mode", cfg.CreditDebitMode),
	)

	switch cmd {
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// openDB はDB接続を開き、疎通を確認する。
func openDB(cfg *config.Config) (*sql.DB, error) {
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// newMetricsRegistry はアプリケーションメトリクスとランタイムメトリクスを登録したレジストリを返す。
func newMetricsRegistry() (*prometheus.Registry, *metrics.Collector) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg, metrics.NewCollector(reg)
}

// newProvider は設定に応じた補完プロバイダーを生成する。
// HTTPで呼び出すプロバイダーの接続先はOutboundGuardで検証する。
func newProvider(cfg *config.Config, guard *security.OutboundGuard, logger *slog.Logger) (completion.Provider, error) {
	httpClient := guard.NewClient(cfg.ProviderTimeout)

	switch cfg.CompletionProvider {
	case config.ProviderMock:
		logger.Warn("using mock completion provider")
		return completion.NewMockProvider(), nil
	case config.ProviderOpenAI:
		if cfg.OpenAIBaseURL != "" {
			if err := guard.ValidateEndpoint(cfg.OpenAIBaseURL); err != nil {
				return nil, fmt.Errorf("invalid OPENAI_BASE_URL: %w", err)
			}
		}
		return completion.NewOpenAIClient(httpClient, logger, completion.OpenAIOptions{
			APIKey:    cfg.OpenAIAPIKey,
			BaseURL:   cfg.OpenAIBaseURL,
			Model:     cfg.OpenAIModel,
			MaxTokens: cfg.OpenAIMaxTokens,
		}), nil
	default:
		if err := guard.ValidateEndpoint(cfg.GatewayURL); err != nil {
			return nil, fmt.Errorf("invalid AWS_API_GATEWAY_URL: %w", err)
		}
		return completion.NewGatewayClient(httpClient, logger, cfg.GatewayURL, cfg.GatewayAPIKey), nil
	}
}

// newVerifier はトークン検証器を生成する。
// JWTシークレットがあればローカル検証、無ければSupabase Auth APIに問い合わせる。
func newVerifier(cfg *config.Config, guard *security.OutboundGuard, logger *slog.Logger) (auth.TokenVerifier, error) {
	if cfg.SupabaseJWTSecret != "" {
		return auth.NewJWTVerifier(cfg.SupabaseJWTSecret, cfg.SupabaseJWTAud), nil
	}
	if err := guard.ValidateEndpoint(cfg.SupabaseURL); err != nil {
		return nil, fmt.Errorf("invalid SUPABASE_URL: %w", err)
	}
	return auth.NewSupabaseVerifier(guard.NewClient(10*time.Second), logger, cfg.SupabaseURL, cfg.SupabaseAnonKey), nil
}

// newRouter は全依存関係をワイヤリングしたHTTPハンドラーを返す。
// 戻り値のstopはレートリミッターのバックグラウンド処理を停止する。
func newRouter(cfg *config.Config, db *sql.DB, logger *slog.Logger) (http.Handler, func(), error) {
	// 1. リポジトリの初期化
	profileRepo := repository.NewPostgresProfileRepo(db)
	messageRepo := repository.NewPostgresChatMessageRepo(db)
	txnRepo := repository.NewPostgresCreditTransactionRepo(db)

	// 2. メトリクス
	reg, collector := newMetricsRegistry()

	// 3. 外部サービスクライアント
	guard := security.NewOutboundGuard(cfg.ProviderAllowPrivateNetwork)
	provider, err := newProvider(cfg, guard, logger)
	if err != nil {
		return nil, nil, err
	}
	verifier, err := newVerifier(cfg, guard, logger)
	if err != nil {
		return nil, nil, err
	}

	// 4. ドメインサービスの初期化
	gateway := chat.NewGateway(verifier, profileRepo, messageRepo, provider, collector, logger, chat.Options{
		DebitMode:               cfg.CreditDebitMode,
		RefundOnProviderFailure: cfg.RefundOnProviderFailure,
		SystemPrompt:            cfg.SystemPrompt,
		ProviderTimeout:         cfg.ProviderTimeout,
	})
	profileService := profile.NewService(profileRepo, messageRepo, cfg.SignupCredits)

	var creator billing.SessionCreator
	if cfg.StripeSecretKey != "" {
		creator = billing.NewStripeSessionCreator(cfg.StripeSecretKey)
	} else {
		logger.Warn("STRIPE_SECRET_KEY is not set; checkout is disabled")
	}
	if cfg.StripeWebhookSecret == "" {
		logger.Warn("STRIPE_WEBHOOK_SECRET is not set; all webhooks will be rejected")
	}
	catalog := billing.NewCatalog(billing.PriceIDs{
		Starter: cfg.StripePriceStarter,
		Plus:    cfg.StripePricePlus,
		Premium: cfg.StripePricePremium,
	})
	checkoutService := billing.NewCheckoutService(catalog, creator, txnRepo, cfg.BaseURL, logger)
	webhookProcessor := billing.NewWebhookProcessor(cfg.StripeWebhookSecret, txnRepo, collector, logger)

	// 5. ルーターの構築
	rateLimiter := middleware.NewRateLimiter(middleware.NewRateLimiterConfig(cfg.RateLimitGeneral, cfg.RateLimitChat))

	router := handler.NewRouter(&handler.RouterDeps{
		Logger:            logger,
		TokenVerifier:     verifier,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,

		HealthChecker:  db,
		MetricsHandler: metrics.Handler(reg),

		ChatGateway:   gateway,
		ChatErrorMode: cfg.ChatErrorMode,

		ProfileService: profileService,

		CheckoutService:  checkoutService,
		WebhookProcessor: webhookProcessor,
	})

	return router, rateLimiter.Stop, nil
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established")

	router, stopRouter, err := newRouter(cfg, db, slog.Default())
	if err != nil {
		return fmt.Errorf("failed to build router: %w", err)
	}
	defer stopRouter()

	// 補完プロバイダーの待ち時間より長く書き込みを許可する
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.ProviderTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("API server starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	select {
	case <-stop:
	case err := <-serverErr:
		return fmt.Errorf("server listen error: %w", err)
	}
	slog.Info("shutting down API server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ProviderTimeout+5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// 完了しなかったクレジット購入を定期的に失効させる。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established (worker)")

	_, collector := newMetricsRegistry()
	txnRepo := repository.NewPostgresCreditTransactionRepo(db)
	job := cleanup.NewCleanupJob(txnRepo, collector, slog.Default(), cfg.PendingCheckoutTTL)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	job.Start(ctx, cfg.CleanupInterval)

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	version, err := database.RunMigrations(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully",
		slog.Uint64("schema_version", uint64(version.Version)),
		slog.Bool("dirty", version.Dirty),
	)
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
