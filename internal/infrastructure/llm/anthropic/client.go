// Package anthropic adapts the Anthropic messages API.
package anthropic

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"

	goanthropic "github.com/liushuangls/go-anthropic/v2"

	"github.com/kirillkom/dermafusion/internal/core/domain"
	"github.com/kirillkom/dermafusion/internal/infrastructure/llm"
)

// defaultMaxTokens applies when a request leaves MaxTokens unset; the API requires one.
const defaultMaxTokens = 1000

type Client struct {
	client *goanthropic.Client
	model  string
}

func New(apiKey, model, baseURL string) *Client {
	var opts []goanthropic.ClientOption
	if baseURL != "" {
		opts = append(opts, goanthropic.WithBaseURL(baseURL))
	}
	return &Client{
		client: goanthropic.NewClient(apiKey, opts...),
		model:  model,
	}
}

func (c *Client) Generate(ctx context.Context, req domain.GenerationRequest) (string, error) {
	parts := make([]domain.Part, 0, len(req.Images)+1)
	parts = append(parts, req.Images...)
	parts = append(parts, domain.TextPart(req.UserInstruction))

	messages := []goanthropic.Message{toMessage(domain.RoleUser, parts)}
	return c.create(ctx, "generate", req.SystemInstruction, messages, req.Temperature, req.MaxTokens)
}

func (c *Client) Chat(ctx context.Context, req domain.ChatRequest) (string, error) {
	messages := make([]goanthropic.Message, 0, len(req.History))
	for _, turn := range req.History {
		messages = append(messages, toMessage(turn.Role, turn.Content))
	}
	return c.create(ctx, "chat", req.SystemInstruction, messages, req.Temperature, req.MaxTokens)
}

func (c *Client) create(ctx context.Context, operation, system string, messages []goanthropic.Message, temperature float32, maxTokens int) (string, error) {
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	temp := temperature
	resp, err := c.client.CreateMessages(ctx, goanthropic.MessagesRequest{
		Model:       goanthropic.Model(c.model),
		Messages:    messages,
		System:      system,
		MaxTokens:   maxTokens,
		Temperature: &temp,
	})
	if err != nil {
		return "", mapError(operation, err)
	}

	var b strings.Builder
	for _, content := range resp.Content {
		if content.Text != nil {
			b.WriteString(*content.Text)
		}
	}
	return llm.FirstText(b.String())
}

func toMessage(role domain.Role, parts []domain.Part) goanthropic.Message {
	msgRole := goanthropic.RoleUser
	if role == domain.RoleAssistant {
		msgRole = goanthropic.RoleAssistant
	}
	content := make([]goanthropic.MessageContent, 0, len(parts))
	for _, p := range parts {
		switch p.Type {
		case domain.PartImage:
			content = append(content, goanthropic.NewImageMessageContent(goanthropic.MessageContentSource{
				Type:      goanthropic.MessagesContentSourceTypeBase64,
				MediaType: p.MimeType,
				Data:      base64.StdEncoding.EncodeToString(p.Data),
			}))
		default:
			if strings.TrimSpace(p.Text) == "" {
				continue
			}
			content = append(content, goanthropic.NewTextMessageContent(p.Text))
		}
	}
	return goanthropic.Message{Role: msgRole, Content: content}
}

func mapError(operation string, err error) error {
	var apiErr *goanthropic.APIError
	if errors.As(err, &apiErr) {
		return &llm.StatusError{
			Provider:   llm.ProviderAnthropic,
			Operation:  operation,
			StatusCode: statusOf(string(apiErr.Type)),
			Message:    apiErr.Message,
		}
	}
	var reqErr *goanthropic.RequestError
	if errors.As(err, &reqErr) {
		return &llm.StatusError{
			Provider:   llm.ProviderAnthropic,
			Operation:  operation,
			StatusCode: reqErr.StatusCode,
			Message:    fmt.Sprint(reqErr.Err),
		}
	}
	return fmt.Errorf("anthropic %s: %w", operation, err)
}

// statusOf maps API error types back onto the HTTP status they are sent with.
func statusOf(errType string) int {
	switch errType {
	case "invalid_request_error":
		return http.StatusBadRequest
	case "authentication_error":
		return http.StatusUnauthorized
	case "permission_error":
		return http.StatusForbidden
	case "not_found_error":
		return http.StatusNotFound
	case "request_too_large":
		return http.StatusRequestEntityTooLarge
	case "rate_limit_error":
		return http.StatusTooManyRequests
	case "overloaded_error":
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
