package llm

import (
	"context"
	"fmt"

	"gemini-chat-go/internal/config"
)

// Gateway 持有文本与视觉两个模型变体，由调用方的布尔标志选择。
type Gateway struct {
	Text   Generator
	Vision Generator
}

// Generate sends prompt to the vision variant when vision is set, else to the text variant.
func (g *Gateway) Generate(ctx context.Context, prompt string, vision bool) (string, error) {
	if vision {
		return g.Vision.Generate(ctx, prompt)
	}
	return g.Text.Generate(ctx, prompt)
}

// NewGateway 根据配置中的 provider 构建网关。
func NewGateway(ctx context.Context, cfg config.LLMConfig) (*Gateway, error) {
	switch cfg.Provider {
	case "", "openai":
		return &Gateway{
			Text:   NewOpenAICompatibleClient(cfg.APIKey, cfg.BaseURL, cfg.TextModel, cfg.Timeout),
			Vision: NewOpenAICompatibleClient(cfg.APIKey, cfg.BaseURL, cfg.VisionModel, cfg.Timeout),
		}, nil
	case "ark":
		text, err := NewArkGenerator(ctx, cfg.APIKey, cfg.BaseURL, cfg.Region, cfg.TextModel)
		if err != nil {
			return nil, err
		}
		vision, err := NewArkGenerator(ctx, cfg.APIKey, cfg.BaseURL, cfg.Region, cfg.VisionModel)
		if err != nil {
			return nil, err
		}
		return &Gateway{Text: text, Vision: vision}, nil
	default:
		return nil, fmt.Errorf("unsupported llm provider %q", cfg.Provider)
	}
}
