package ollama

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/dermafusion/internal/core/domain"
	"github.com/kirillkom/dermafusion/internal/infrastructure/llm"
)

type Client struct {
	baseURL    string
	genModel   string
	embedModel string
	httpClient *http.Client
}

func New(baseURL, genModel, embedModel string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		genModel:   genModel,
		embedModel: embedModel,
		httpClient: &http.Client{Timeout: 120 * time.Second},
	}
}

// Embedder turns query text into vectors for the document and keyword indexes.
type Embedder struct {
	client *Client
}

func NewEmbedder(client *Client) *Embedder {
	return &Embedder{client: client}
}

func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	request := map[string]any{
		"model": e.client.embedModel,
		"input": texts,
	}

	var response struct {
		Embeddings [][]float32 `json:"embeddings"`
	}
	if err := e.client.postJSON(ctx, "/api/embed", request, &response, "embed"); err != nil {
		return nil, llm.WrapTemporaryIfNeeded("ollama embed", err)
	}
	return response.Embeddings, nil
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("empty embedding result")
	}
	return vectors[0], nil
}

// Generator is a chat backend served by a local Ollama model.
type Generator struct {
	client *Client
}

func NewGenerator(client *Client) *Generator {
	return &Generator{client: client}
}

type chatMessage struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`
}

func (g *Generator) Generate(ctx context.Context, req domain.GenerationRequest) (string, error) {
	user := chatMessage{Role: "user", Content: req.UserInstruction}
	for _, img := range req.Images {
		if img.Type == domain.PartImage {
			user.Images = append(user.Images, base64.StdEncoding.EncodeToString(img.Data))
		}
	}
	return g.chat(ctx, req.SystemInstruction, []chatMessage{user}, req.Temperature, req.MaxTokens)
}

func (g *Generator) Chat(ctx context.Context, req domain.ChatRequest) (string, error) {
	messages := make([]chatMessage, 0, len(req.History))
	for _, turn := range req.History {
		msg := chatMessage{Role: "user"}
		if turn.Role == domain.RoleAssistant {
			msg.Role = "assistant"
		}
		texts := make([]string, 0, len(turn.Content))
		for _, part := range turn.Content {
			switch part.Type {
			case domain.PartImage:
				msg.Images = append(msg.Images, base64.StdEncoding.EncodeToString(part.Data))
			default:
				texts = append(texts, part.Text)
			}
		}
		msg.Content = strings.Join(texts, "\n")
		messages = append(messages, msg)
	}
	return g.chat(ctx, req.SystemInstruction, messages, req.Temperature, req.MaxTokens)
}

func (g *Generator) chat(ctx context.Context, system string, messages []chatMessage, temperature float32, maxTokens int) (string, error) {
	if strings.TrimSpace(system) != "" {
		messages = append([]chatMessage{{Role: "system", Content: system}}, messages...)
	}
	options := map[string]any{"temperature": temperature}
	if maxTokens > 0 {
		options["num_predict"] = maxTokens
	}
	reqBody := map[string]any{
		"model":    g.client.genModel,
		"messages": messages,
		"stream":   false,
		"options":  options,
	}

	var response struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	}
	if err := g.client.postJSON(ctx, "/api/chat", reqBody, &response, "chat"); err != nil {
		return "", err
	}
	return llm.FirstText(response.Message.Content)
}
