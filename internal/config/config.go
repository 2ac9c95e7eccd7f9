package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// 補完プロバイダーの種別
const (
	ProviderGateway = "gateway"
	ProviderOpenAI  = "openai"
	ProviderMock    = "mock"
)

// クレジット減算方式
const (
	DebitModeAtomic = "atomic"
	DebitModeLegacy = "legacy"
)

// チャットAPIのエラーステータス方式
const (
	ErrorModeStrict = "strict"
	ErrorModeLegacy = "legacy"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Identity
	SupabaseURL       string
	SupabaseAnonKey   string
	SupabaseJWTSecret string
	SupabaseJWTAud    string

	// Completion provider
	CompletionProvider          string
	GatewayURL                  string
	GatewayAPIKey               string
	OpenAIAPIKey                string
	OpenAIModel                 string
	OpenAIBaseURL               string
	OpenAIMaxTokens             int
	SystemPrompt                string
	ProviderTimeout             time.Duration
	ProviderAllowPrivateNetwork bool

	// Chat gateway
	CreditDebitMode         string
	RefundOnProviderFailure bool
	ChatErrorMode           string
	SignupCredits           int

	// Billing
	StripeSecretKey     string
	StripeWebhookSecret string
	StripePriceStarter  string
	StripePricePlus     string
	StripePricePremium  string
	PendingCheckoutTTL  time.Duration
	CleanupInterval     time.Duration

	// Rate Limit
	RateLimitGeneral int
	RateLimitChat    int

	// Server
	ServerPort string
	BaseURL    string

	// CORS
	CORSAllowedOrigin string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.BaseURL = os.Getenv("BASE_URL")
	if cfg.BaseURL == "" {
		missing = append(missing, "BASE_URL")
	}

	// IdP: JWTシークレットによるローカル検証か、Supabase Auth APIへの問い合わせのどちらかが必要
	cfg.SupabaseURL = strings.TrimRight(os.Getenv("SUPABASE_URL"), "/")
	cfg.SupabaseAnonKey = os.Getenv("SUPABASE_ANON_KEY")
	cfg.SupabaseJWTSecret = os.Getenv("SUPABASE_JWT_SECRET")
	if cfg.SupabaseJWTSecret == "" && cfg.SupabaseURL == "" {
		missing = append(missing, "SUPABASE_JWT_SECRET or SUPABASE_URL")
	}

	cfg.CompletionProvider = strings.ToLower(getEnvString("COMPLETION_PROVIDER", ProviderGateway))
	cfg.GatewayURL = os.Getenv("AWS_API_GATEWAY_URL")
	cfg.GatewayAPIKey = os.Getenv("AWS_API_KEY")
	cfg.OpenAIAPIKey = os.Getenv("OPENAI_API_KEY")

	switch cfg.CompletionProvider {
	case ProviderGateway:
		if cfg.GatewayURL == "" {
			missing = append(missing, "AWS_API_GATEWAY_URL")
		}
	case ProviderOpenAI:
		if cfg.OpenAIAPIKey == "" {
			missing = append(missing, "OPENAI_API_KEY")
		}
	case ProviderMock:
	default:
		return nil, fmt.Errorf("unsupported COMPLETION_PROVIDER: %q (allowed: gateway, openai, mock)", cfg.CompletionProvider)
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.SupabaseJWTAud = getEnvString("SUPABASE_JWT_AUDIENCE", "authenticated")
	cfg.OpenAIModel = getEnvString("OPENAI_MODEL", "gpt-4o-mini")
	cfg.OpenAIBaseURL = getEnvString("OPENAI_BASE_URL", "")
	cfg.OpenAIMaxTokens = getEnvInt("OPENAI_MAX_TOKENS", 1024)
	cfg.SystemPrompt = getEnvString("AIRA_SYSTEM_PROMPT", "")
	cfg.ProviderTimeout = getEnvDuration("PROVIDER_TIMEOUT", 30*time.Second)
	cfg.ProviderAllowPrivateNetwork = getEnvBool("PROVIDER_ALLOW_PRIVATE_NETWORK", false)

	cfg.CreditDebitMode = strings.ToLower(getEnvString("CREDIT_DEBIT_MODE", DebitModeAtomic))
	if cfg.CreditDebitMode != DebitModeAtomic && cfg.CreditDebitMode != DebitModeLegacy {
		return nil, fmt.Errorf("unsupported CREDIT_DEBIT_MODE: %q (allowed: atomic, legacy)", cfg.CreditDebitMode)
	}
	cfg.RefundOnProviderFailure = getEnvBool("REFUND_ON_PROVIDER_FAILURE", false)
	cfg.ChatErrorMode = strings.ToLower(getEnvString("CHAT_ERROR_MODE", ErrorModeStrict))
	if cfg.ChatErrorMode != ErrorModeStrict && cfg.ChatErrorMode != ErrorModeLegacy {
		return nil, fmt.Errorf("unsupported CHAT_ERROR_MODE: %q (allowed: strict, legacy)", cfg.ChatErrorMode)
	}
	cfg.SignupCredits = getEnvInt("SIGNUP_CREDITS", 0)
	if cfg.SignupCredits < 0 {
		cfg.SignupCredits = 0
	}

	cfg.StripeSecretKey = os.Getenv("STRIPE_SECRET_KEY")
	cfg.StripeWebhookSecret = os.Getenv("STRIPE_WEBHOOK_SECRET")
	cfg.StripePriceStarter = getEnvString("STRIPE_PRICE_STARTER", "price_1Sgp5PFotvmN2ZAQhnKZdOWq")
	cfg.StripePricePlus = getEnvString("STRIPE_PRICE_PLUS", "price_1Sgp5bFotvmN2ZAQP06QN2SB")
	cfg.StripePricePremium = getEnvString("STRIPE_PRICE_PREMIUM", "price_1Sgp68FotvmN2ZAQGBVyOgvB")
	cfg.PendingCheckoutTTL = getEnvDuration("PENDING_CHECKOUT_TTL", 24*time.Hour)
	cfg.CleanupInterval = getEnvDuration("CLEANUP_INTERVAL", time.Hour)

	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitChat = getEnvInt("RATE_LIMIT_CHAT", 30)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "*")

	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
