package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
)

// ChainGenerator 把 eino ChatModel 编译成链后调用。
type ChainGenerator struct {
	name  string
	chain compose.Runnable[[]*schema.Message, *schema.Message]
}

// NewChainGenerator 编译 指令 → ChatModel 的调用链。
func NewChainGenerator(ctx context.Context, name string, chatModel model.ChatModel) (*ChainGenerator, error) {
	chain := compose.NewChain[[]*schema.Message, *schema.Message]()
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile chat chain: %w", err)
	}

	return &ChainGenerator{name: name, chain: runnable}, nil
}

func (g *ChainGenerator) Name() string { return g.name }

func (g *ChainGenerator) Generate(ctx context.Context, instructions []*schema.Message) (string, error) {
	response, err := g.chain.Invoke(ctx, instructions)
	if err != nil {
		return "", fmt.Errorf("%s: failed to run chat chain: %w", g.name, err)
	}

	text := strings.TrimSpace(response.Content)
	if text == "" {
		return "", fmt.Errorf("%s: empty response", g.name)
	}
	return text, nil
}
