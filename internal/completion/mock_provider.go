package completion

import (
	"context"
	"hash/fnv"

	"github.com/hitoshi/aira/internal/model"
)

// mockReplies は開発用モックの定型応答。
var mockReplies = []string{
	"That's a great question about retirement planning! Based on your query, I'd recommend considering a diversified approach that balances growth potential with income stability. Would you like me to elaborate on specific strategies?",
	"When it comes to Social Security, timing is crucial. Delaying benefits until age 70 can increase your monthly payment by up to 32% compared to claiming at 62. However, the best decision depends on your individual circumstances, health, and financial needs.",
	"For tax-efficient withdrawals in retirement, consider the order: first, use taxable accounts to allow tax-deferred accounts more time to grow. Then, tap traditional IRAs/401(k)s, and finally Roth accounts for tax-free growth.",
	"Healthcare costs in retirement are often underestimated. The average 65-year-old couple may need approximately $300,000 saved for healthcare expenses in retirement. Have you considered a Health Savings Account (HSA) as part of your strategy?",
}

// MockProvider は外部APIを呼ばずに定型応答を返す開発用プロバイダー。
// 同じメッセージには常に同じ応答を返す。
type MockProvider struct{}

// NewMockProvider はMockProviderを生成する。
func NewMockProvider() *MockProvider {
	return &MockProvider{}
}

// Name はプロバイダー名を返す。
func (p *MockProvider) Name() string { return "mock" }

// Complete はメッセージのハッシュ値で定型応答を1つ選んで返す。
func (p *MockProvider) Complete(ctx context.Context, req Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", model.NewProviderError(err.Error())
	}
	h := fnv.New32a()
	h.Write([]byte(req.Message))
	return mockReplies[int(h.Sum32()%uint32(len(mockReplies)))], nil
}

var _ Provider = (*MockProvider)(nil)
