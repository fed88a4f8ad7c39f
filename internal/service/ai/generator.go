package ai

import (
	"context"
	"fmt"
	"net/http"

	"github.com/cloudwego/eino/schema"

	"github.com/mharburg8/talk-to-your-inner-child/internal/config"
	"github.com/mharburg8/talk-to-your-inner-child/internal/logging"
)

// Generator 生成能力：有序指令进，助手文本出。
type Generator interface {
	Generate(ctx context.Context, instructions []*schema.Message) (string, error)
	Name() string
}

// HTTPStatusError 上游返回非 2xx 时的错误。
type HTTPStatusError struct {
	Provider   string
	StatusCode int
	URL        string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("%s: unexpected status %d from %s: %s", e.Provider, e.StatusCode, e.URL, e.Body)
}

// NewGenerator 按配置选择生成后端；凭证缺失时告警并退回 mock。
func NewGenerator(ctx context.Context, cfg *config.Config, logger logging.Logger, httpClient *http.Client) (Generator, error) {
	switch cfg.Providers.LLM {
	case config.ProviderArk:
		if !cfg.AI.Enabled() {
			logger.Warn(ctx, "ark credentials missing, falling back to mock generator")
			return NewMockGenerator(logger), nil
		}
		chatModel, err := cfg.AI.NewChatModel(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to create chat model: %w", err)
		}
		return NewChainGenerator(ctx, config.ProviderArk, chatModel)
	case config.ProviderOpenAI:
		if !cfg.OpenAI.Enabled() {
			logger.Warn(ctx, "OPENAI_API_KEY missing, falling back to mock generator")
			return NewMockGenerator(logger), nil
		}
		return NewOpenAIGenerator(cfg.OpenAI.APIKey, cfg.OpenAI.Model,
			WithBaseURL(cfg.OpenAI.BaseURL), WithHTTPClient(httpClient)), nil
	default:
		return NewMockGenerator(logger), nil
	}
}
