package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kirillkom/dermafusion/internal/core/domain"
	"github.com/kirillkom/dermafusion/internal/infrastructure/llm"
)

func TestGeneratorSendsSystemUserAndImages(t *testing.T) {
	var captured struct {
		Model    string        `json:"model"`
		Messages []chatMessage `json:"messages"`
		Options  struct {
			NumPredict int `json:"num_predict"`
		} `json:"options"`
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			http.NotFound(w, r)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_, _ = w.Write([]byte(`{"message":{"role":"assistant","content":" ok "}}`))
	}))
	defer server.Close()

	gen := NewGenerator(New(server.URL, "llava", "embed"))
	out, err := gen.Generate(context.Background(), domain.GenerationRequest{
		SystemInstruction: "system",
		UserInstruction:   "describe",
		Images:            []domain.Part{domain.ImagePart([]byte("img"), "image/png")},
		MaxTokens:         1000,
	})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if out != "ok" {
		t.Fatalf("expected trimmed text, got %q", out)
	}
	if captured.Model != "llava" || len(captured.Messages) != 2 {
		t.Fatalf("unexpected request %+v", captured)
	}
	if captured.Messages[0].Role != "system" || captured.Messages[1].Content != "describe" {
		t.Fatalf("unexpected messages %+v", captured.Messages)
	}
	if len(captured.Messages[1].Images) != 1 || captured.Messages[1].Images[0] != "aW1n" {
		t.Fatalf("expected base64 image, got %+v", captured.Messages[1].Images)
	}
	if captured.Options.NumPredict != 1000 {
		t.Fatalf("expected num_predict 1000, got %d", captured.Options.NumPredict)
	}
}

func TestChatMapsAssistantRole(t *testing.T) {
	var roles []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload struct {
			Messages []chatMessage `json:"messages"`
		}
		_ = json.NewDecoder(r.Body).Decode(&payload)
		for _, m := range payload.Messages {
			roles = append(roles, m.Role)
		}
		_, _ = w.Write([]byte(`{"message":{"content":"answer"}}`))
	}))
	defer server.Close()

	gen := NewGenerator(New(server.URL, "m", "e"))
	_, err := gen.Chat(context.Background(), domain.ChatRequest{
		History: domain.ConversationState{
			{Role: domain.RoleUser, Content: []domain.Part{domain.TextPart("hi")}},
			{Role: domain.RoleAssistant, Content: []domain.Part{domain.TextPart("hello")}},
			{Role: domain.RoleUser, Content: []domain.Part{domain.TextPart("more")}},
		},
	})
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	if strings.Join(roles, ",") != "user,assistant,user" {
		t.Fatalf("unexpected roles %v", roles)
	}
}

func TestEmbedIncludesHTTPBodyInError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model unavailable", http.StatusBadGateway)
	}))
	defer server.Close()

	embedder := NewEmbedder(New(server.URL, "gen", "embed"))
	_, err := embedder.EmbedQuery(context.Background(), "hello")
	if err == nil {
		t.Fatalf("expected error")
	}
	if !strings.Contains(err.Error(), "model unavailable") {
		t.Fatalf("expected response body in error, got %v", err)
	}
	if !errors.Is(err, domain.ErrTemporary) {
		t.Fatalf("expected 502 to be temporary, got %v", err)
	}
	var statusErr *llm.StatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusBadGateway {
		t.Fatalf("expected status error, got %v", err)
	}
}
