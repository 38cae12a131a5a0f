package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// chatModel is the slice of eino's model.BaseChatModel the gateway needs.
type chatModel interface {
	Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error)
}

// EinoGenerator adapts an eino chat model to Generator.
type EinoGenerator struct {
	model chatModel
}

// NewEinoGenerator wraps any eino chat model.
func NewEinoGenerator(m chatModel) *EinoGenerator {
	return &EinoGenerator{model: m}
}

func (g *EinoGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := g.model.Generate(ctx, []*schema.Message{schema.UserMessage(prompt)})
	if err != nil {
		return "", fmt.Errorf("failed to run chat model: %w", err)
	}
	if resp == nil || strings.TrimSpace(resp.Content) == "" {
		return "", ErrEmptyCompletion
	}
	return resp.Content, nil
}

// NewArkGenerator 使用 Volcengine Ark 创建一个 Generator。
func NewArkGenerator(ctx context.Context, apiKey, baseURL, region, modelName string) (*EinoGenerator, error) {
	cm, err := ark.NewChatModel(ctx, &ark.ChatModelConfig{
		BaseURL: baseURL,
		Region:  region,
		APIKey:  apiKey,
		Model:   modelName,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create ark chat model: %w", err)
	}
	return NewEinoGenerator(cm), nil
}
