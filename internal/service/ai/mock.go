package ai

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/schema"

	"github.com/mharburg8/talk-to-your-inner-child/internal/logging"
)

// MockGenerator 离线生成器，回显最后一条用户发言。
type MockGenerator struct {
	logger logging.Logger
}

func NewMockGenerator(logger logging.Logger) *MockGenerator {
	return &MockGenerator{logger: logger}
}

func (g *MockGenerator) Name() string { return "mock" }

func (g *MockGenerator) Generate(ctx context.Context, instructions []*schema.Message) (string, error) {
	g.logger.Warn(ctx, "using mock generator", "instructions", len(instructions))

	var last string
	for i := len(instructions) - 1; i >= 0; i-- {
		if instructions[i].Role == schema.User {
			last = instructions[i].Content
			break
		}
	}

	runes := []rune(last)
	if len(runes) > 50 {
		runes = runes[:50]
	}
	return fmt.Sprintf("I hear you saying: \"%s...\". This is a mock response. Configure LLM_PROVIDER and API keys to use real AI responses.", string(runes)), nil
}
