package anthropic

import (
	"context"
	"errors"
	"strings"

	sdkanthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

var errEmptyResponse = errors.New("anthropic: response contained no text")

// Generate sends one user turn. A non-positive maxTokens uses the
// configured default.
func (p *Provider) Generate(ctx context.Context, systemPrompt, userPrompt string, maxTokens int) (string, error) {
	msg, err := p.send(ctx, p.params(systemPrompt, userPrompt, maxTokens))
	if err != nil {
		return "", err
	}

	var parts []string
	for _, block := range msg.Content {
		if text, ok := block.AsAny().(sdkanthropic.TextBlock); ok {
			parts = append(parts, text.Text)
		}
	}
	answer := strings.TrimSpace(strings.Join(parts, ""))
	if answer == "" {
		return "", errEmptyResponse
	}
	return answer, nil
}

// HealthCheck spends a single output token; the API has no status route
// that also proves the key works.
func (p *Provider) HealthCheck(ctx context.Context) error {
	_, err := p.send(ctx, p.params("", "ping", 1))
	return err
}

func (p *Provider) send(ctx context.Context, params sdkanthropic.MessageNewParams) (*sdkanthropic.Message, error) {
	var opts []option.RequestOption
	if p.keys != nil {
		opts = append(opts, option.WithAPIKey(p.keys.Key()))
	}
	msg, err := p.client.Messages.New(ctx, params, opts...)
	if err != nil {
		return nil, mapError(err)
	}
	return msg, nil
}

func (p *Provider) params(systemPrompt, userPrompt string, maxTokens int) sdkanthropic.MessageNewParams {
	if maxTokens <= 0 {
		maxTokens = p.config.MaxTokens
	}
	params := sdkanthropic.MessageNewParams{
		Model:     sdkanthropic.Model(p.config.Model),
		MaxTokens: int64(maxTokens),
		Messages: []sdkanthropic.MessageParam{
			sdkanthropic.NewUserMessage(sdkanthropic.NewTextBlock(userPrompt)),
		},
	}
	if systemPrompt != "" {
		params.System = []sdkanthropic.TextBlockParam{{Text: systemPrompt}}
	}
	return params
}
