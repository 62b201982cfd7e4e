// Package gemini adapts the Google Generative AI SDK to the engine's generator port.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/kirillkom/dermafusion/internal/core/domain"
	"github.com/kirillkom/dermafusion/internal/infrastructure/llm"
)

// Client is bound to one (API key, model) pair.
type Client struct {
	client *genai.Client
	model  string
}

func New(ctx context.Context, apiKey, model string) (*Client, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &Client{client: client, model: model}, nil
}

func (c *Client) Close() error {
	return c.client.Close()
}

func (c *Client) Generate(ctx context.Context, req domain.GenerationRequest) (string, error) {
	model := c.generativeModel(req.SystemInstruction, req.Temperature, req.MaxTokens)

	parts := make([]genai.Part, 0, len(req.Images)+1)
	if strings.TrimSpace(req.UserInstruction) != "" {
		parts = append(parts, genai.Text(req.UserInstruction))
	}
	parts = append(parts, toParts(req.Images)...)

	resp, err := model.GenerateContent(ctx, parts...)
	if err != nil {
		return "", mapError("generate", err)
	}
	return responseText(resp)
}

// Chat replays the history into a chat session and sends the last user turn.
func (c *Client) Chat(ctx context.Context, req domain.ChatRequest) (string, error) {
	if len(req.History) == 0 {
		return "", fmt.Errorf("gemini chat: empty history")
	}
	model := c.generativeModel(req.SystemInstruction, req.Temperature, req.MaxTokens)

	session := model.StartChat()
	last := req.History[len(req.History)-1]
	for _, turn := range req.History[:len(req.History)-1] {
		session.History = append(session.History, &genai.Content{
			Role:  roleOf(turn.Role),
			Parts: toParts(turn.Content),
		})
	}

	resp, err := session.SendMessage(ctx, toParts(last.Content)...)
	if err != nil {
		return "", mapError("chat", err)
	}
	return responseText(resp)
}

func (c *Client) generativeModel(system string, temperature float32, maxTokens int) *genai.GenerativeModel {
	model := c.client.GenerativeModel(c.model)
	if strings.TrimSpace(system) != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}
	}
	model.SetTemperature(temperature)
	if maxTokens > 0 {
		model.SetMaxOutputTokens(int32(maxTokens))
	}
	return model
}

func roleOf(role domain.Role) string {
	if role == domain.RoleAssistant {
		return "model"
	}
	return "user"
}

func toParts(parts []domain.Part) []genai.Part {
	out := make([]genai.Part, 0, len(parts))
	for _, p := range parts {
		switch p.Type {
		case domain.PartImage:
			out = append(out, genai.Blob{MIMEType: p.MimeType, Data: p.Data})
		default:
			out = append(out, genai.Text(p.Text))
		}
	}
	return out
}

func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", llm.ErrEmptyResponse
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			b.WriteString(string(txt))
		}
	}
	return llm.FirstText(b.String())
}

func mapError(operation string, err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return &llm.StatusError{
			Provider:   llm.ProviderGemini,
			Operation:  operation,
			StatusCode: apiErr.Code,
			Message:    apiErr.Message,
		}
	}
	return fmt.Errorf("gemini %s: %w", operation, err)
}
