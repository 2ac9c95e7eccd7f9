package completion

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/aira/internal/model"
)

// エラー本文をログ・エラーメッセージに含める際の最大長
const maxErrorBodyBytes = 1024

// gatewayRequest はAPI Gateway（Lambda）へ送るリクエストボディ。
type gatewayRequest struct {
	Message             string               `json:"message"`
	ConversationHistory []model.HistoryEntry `json:"conversationHistory"`
	SystemPrompt        string               `json:"systemPrompt"`
}

// gatewayReply はAPI Gatewayの応答。Lambdaの実装によって応答テキストのキー名が異なり、
// 文字列以外の値が入ることもあるため、キーごとに遅延デコードする。
type gatewayReply map[string]json.RawMessage

// replyKeys は応答テキストを探すキーの優先順。
var replyKeys = []string{"response", "message", "content"}

// text は replyKeys の順で最初の空でない文字列値を返す。文字列でない値は読み飛ばす。
func (r gatewayReply) text() (string, bool) {
	for _, key := range replyKeys {
		raw, ok := r[key]
		if !ok {
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err != nil || s == "" {
			continue
		}
		return s, true
	}
	return "", false
}

// GatewayClient はAWS API Gateway経由で補完を呼び出すクライアント。
type GatewayClient struct {
	httpClient *http.Client
	logger     *slog.Logger
	endpoint   string
	apiKey     string
}

// NewGatewayClient はGatewayClientを生成する。apiKeyが空の場合はx-api-keyヘッダーを付与しない。
func NewGatewayClient(httpClient *http.Client, logger *slog.Logger, endpoint, apiKey string) *GatewayClient {
	return &GatewayClient{
		httpClient: httpClient,
		logger:     logger,
		endpoint:   endpoint,
		apiKey:     apiKey,
	}
}

// Name はプロバイダー名を返す。
func (c *GatewayClient) Name() string { return "gateway" }

// Complete はAPI Gatewayに1回だけPOSTし、応答テキストを返す。リトライはしない。
func (c *GatewayClient) Complete(ctx context.Context, req Request) (string, error) {
	history := req.History
	if history == nil {
		history = []model.HistoryEntry{}
	}
	body, err := json.Marshal(gatewayRequest{
		Message:             req.Message,
		ConversationHistory: history,
		SystemPrompt:        req.SystemPrompt,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal gateway request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", model.NewProviderError(fmt.Sprintf("invalid gateway endpoint: %v", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("x-api-key", c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", model.NewProviderError("request timed out")
		}
		return "", model.NewProviderError(err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		errText := strings.TrimSpace(string(errBody))
		c.logger.Warn("completion gateway returned error status",
			slog.Int("status", resp.StatusCode),
			slog.String("error", errText),
		)
		return "", model.NewProviderError(fmt.Sprintf("%d - %s", resp.StatusCode, errText))
	}

	var reply gatewayReply
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		c.logger.Warn("completion gateway returned undecodable body", slog.String("error", err.Error()))
		return "", model.NewProviderResponseMalformedError()
	}

	text, ok := reply.text()
	if !ok {
		c.logger.Warn("completion gateway reply has no response, message or content")
		return "", model.NewProviderResponseMalformedError()
	}
	return text, nil
}

var _ Provider = (*GatewayClient)(nil)
