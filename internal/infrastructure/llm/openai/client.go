// Package openai adapts OpenAI-compatible chat completion APIs.
package openai

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/kirillkom/dermafusion/internal/core/domain"
	"github.com/kirillkom/dermafusion/internal/infrastructure/llm"
)

type Client struct {
	client *goopenai.Client
	model  string
}

func New(apiKey, model, baseURL string) *Client {
	config := goopenai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &Client{
		client: goopenai.NewClientWithConfig(config),
		model:  model,
	}
}

func (c *Client) Generate(ctx context.Context, req domain.GenerationRequest) (string, error) {
	parts := make([]domain.Part, 0, len(req.Images)+1)
	parts = append(parts, domain.TextPart(req.UserInstruction))
	parts = append(parts, req.Images...)

	messages := systemMessages(req.SystemInstruction)
	messages = append(messages, toMessage(domain.RoleUser, parts))
	return c.complete(ctx, "generate", messages, req.Temperature, req.MaxTokens)
}

func (c *Client) Chat(ctx context.Context, req domain.ChatRequest) (string, error) {
	messages := systemMessages(req.SystemInstruction)
	for _, turn := range req.History {
		messages = append(messages, toMessage(turn.Role, turn.Content))
	}
	return c.complete(ctx, "chat", messages, req.Temperature, req.MaxTokens)
}

func (c *Client) complete(ctx context.Context, operation string, messages []goopenai.ChatCompletionMessage, temperature float32, maxTokens int) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, goopenai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: temperature,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		return "", mapError(operation, err)
	}
	if len(resp.Choices) == 0 {
		return "", llm.ErrEmptyResponse
	}
	return llm.FirstText(resp.Choices[0].Message.Content)
}

func systemMessages(system string) []goopenai.ChatCompletionMessage {
	if system == "" {
		return []goopenai.ChatCompletionMessage{}
	}
	return []goopenai.ChatCompletionMessage{{Role: goopenai.ChatMessageRoleSystem, Content: system}}
}

// toMessage uses plain content for text-only turns and multi-part content
// with data URLs once an image is present.
func toMessage(role domain.Role, parts []domain.Part) goopenai.ChatCompletionMessage {
	msgRole := goopenai.ChatMessageRoleUser
	if role == domain.RoleAssistant {
		msgRole = goopenai.ChatMessageRoleAssistant
	}

	hasImage := false
	for _, p := range parts {
		if p.Type == domain.PartImage {
			hasImage = true
			break
		}
	}
	if !hasImage || msgRole == goopenai.ChatMessageRoleAssistant {
		text := ""
		for _, p := range parts {
			if p.Type != domain.PartImage {
				if text != "" {
					text += "\n"
				}
				text += p.Text
			}
		}
		return goopenai.ChatCompletionMessage{Role: msgRole, Content: text}
	}

	multi := make([]goopenai.ChatMessagePart, 0, len(parts))
	for _, p := range parts {
		if p.Type == domain.PartImage {
			multi = append(multi, goopenai.ChatMessagePart{
				Type: goopenai.ChatMessagePartTypeImageURL,
				ImageURL: &goopenai.ChatMessageImageURL{
					URL:    "data:" + p.MimeType + ";base64," + base64.StdEncoding.EncodeToString(p.Data),
					Detail: goopenai.ImageURLDetailAuto,
				},
			})
			continue
		}
		if p.Text == "" {
			continue
		}
		multi = append(multi, goopenai.ChatMessagePart{Type: goopenai.ChatMessagePartTypeText, Text: p.Text})
	}
	return goopenai.ChatCompletionMessage{Role: msgRole, MultiContent: multi}
}

func mapError(operation string, err error) error {
	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) {
		return &llm.StatusError{
			Provider:   llm.ProviderOpenAI,
			Operation:  operation,
			StatusCode: apiErr.HTTPStatusCode,
			Message:    apiErr.Message,
		}
	}
	var reqErr *goopenai.RequestError
	if errors.As(err, &reqErr) {
		return &llm.StatusError{
			Provider:   llm.ProviderOpenAI,
			Operation:  operation,
			StatusCode: reqErr.HTTPStatusCode,
			Message:    string(reqErr.Body),
		}
	}
	return fmt.Errorf("openai %s: %w", operation, err)
}
