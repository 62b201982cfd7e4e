package gemini

import (
	"errors"
	"net/http"
	"testing"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"

	"github.com/kirillkom/dermafusion/internal/core/domain"
	"github.com/kirillkom/dermafusion/internal/infrastructure/llm"
)

func TestToPartsKeepsImagesAsBlobs(t *testing.T) {
	parts := toParts([]domain.Part{
		domain.TextPart("ngứa"),
		domain.ImagePart([]byte("img"), "image/png"),
	})
	if len(parts) != 2 {
		t.Fatalf("expected 2 parts, got %d", len(parts))
	}
	if text, ok := parts[0].(genai.Text); !ok || string(text) != "ngứa" {
		t.Fatalf("unexpected text part %#v", parts[0])
	}
	blob, ok := parts[1].(genai.Blob)
	if !ok || blob.MIMEType != "image/png" || string(blob.Data) != "img" {
		t.Fatalf("unexpected image part %#v", parts[1])
	}
}

func TestRoleOf(t *testing.T) {
	if roleOf(domain.RoleAssistant) != "model" || roleOf(domain.RoleUser) != "user" {
		t.Fatalf("unexpected role mapping")
	}
}

func TestResponseTextJoinsTextParts(t *testing.T) {
	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []genai.Part{genai.Text(" vảy "), genai.Text("nến ")}},
		}},
	}
	out, err := responseText(resp)
	if err != nil {
		t.Fatalf("responseText() error = %v", err)
	}
	if out != "vảy nến" {
		t.Fatalf("unexpected text %q", out)
	}

	if _, err := responseText(&genai.GenerateContentResponse{}); !errors.Is(err, llm.ErrEmptyResponse) {
		t.Fatalf("expected ErrEmptyResponse, got %v", err)
	}
}

func TestMapErrorKeepsStatus(t *testing.T) {
	err := mapError("generate", &googleapi.Error{Code: http.StatusTooManyRequests, Message: "quota exceeded"})
	var statusErr *llm.StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if statusErr.Provider != llm.ProviderGemini || statusErr.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("unexpected status error %+v", statusErr)
	}
	if !llm.Classify(err).Retryable {
		t.Fatalf("quota errors must be retryable")
	}

	plain := mapError("chat", errors.New("dial tcp: refused"))
	if errors.As(plain, &statusErr) {
		t.Fatalf("transport errors must not become status errors")
	}
}
