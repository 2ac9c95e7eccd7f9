package completion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/hitoshi/aira/internal/model"
)

// OpenAIClient はOpenAI互換のChat Completions APIで補完を呼び出すクライアント。
type OpenAIClient struct {
	client    *openai.Client
	logger    *slog.Logger
	model     string
	maxTokens int
}

// OpenAIOptions はOpenAIClientの生成パラメータ。
type OpenAIOptions struct {
	APIKey    string
	BaseURL   string // 空の場合はOpenAI公式エンドポイント
	Model     string
	MaxTokens int
}

// NewOpenAIClient はOpenAIClientを生成する。
func NewOpenAIClient(httpClient *http.Client, logger *slog.Logger, opts OpenAIOptions) *OpenAIClient {
	cfg := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = opts.BaseURL
	}
	if httpClient != nil {
		cfg.HTTPClient = httpClient
	}

	return &OpenAIClient{
		client:    openai.NewClientWithConfig(cfg),
		logger:    logger,
		model:     opts.Model,
		maxTokens: opts.MaxTokens,
	}
}

// Name はプロバイダー名を返す。
func (c *OpenAIClient) Name() string { return "openai" }

// Complete はシステムプロンプト、会話履歴、ユーザーメッセージの順でメッセージを組み立てて補完を1回呼び出す。
func (c *OpenAIClient) Complete(ctx context.Context, req Request) (string, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.History)+2)
	if req.SystemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.SystemPrompt,
		})
	}
	for _, h := range req.History {
		role := openai.ChatMessageRoleUser
		if strings.EqualFold(h.Role, string(model.RoleAssistant)) {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: h.Content})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: req.Message,
	})

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     c.model,
		Messages:  messages,
		MaxTokens: c.maxTokens,
	})
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			c.logger.Warn("openai returned error status",
				slog.Int("status", apiErr.HTTPStatusCode),
				slog.String("error", apiErr.Message),
			)
			return "", model.NewProviderError(fmt.Sprintf("%d - %s", apiErr.HTTPStatusCode, apiErr.Message))
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return "", model.NewProviderError("request timed out")
		}
		return "", model.NewProviderError(err.Error())
	}

	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", model.NewProviderResponseMalformedError()
	}

	c.logger.Debug("openai completion finished",
		slog.String("model", resp.Model),
		slog.Int("total_tokens", resp.Usage.TotalTokens),
	)
	return resp.Choices[0].Message.Content, nil
}

var _ Provider = (*OpenAIClient)(nil)
