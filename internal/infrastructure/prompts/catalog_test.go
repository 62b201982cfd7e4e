package prompts

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultCatalogIsComplete(t *testing.T) {
	catalog, err := Default()
	if err != nil {
		t.Fatalf("Default() error = %v", err)
	}
	if !strings.Contains(catalog.KeywordSystem, "```python") {
		t.Fatalf("keyword system prompt must ask for a fenced list")
	}
	if !strings.Contains(catalog.ReasoningUser, "{{.RelatedData}}") {
		t.Fatalf("reasoning template must reference related data")
	}
	if catalog.ReasoningHasImg == "" || catalog.ReasoningHasText == "" {
		t.Fatalf("reasoning markers must be set")
	}
}

func TestLoadOverridesSelectedKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompts.yaml")
	if err := os.WriteFile(path, []byte("caption_user: \"Describe the lesion.\"\n"), 0o600); err != nil {
		t.Fatalf("write prompts: %v", err)
	}

	catalog, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if catalog.CaptionUser != "Describe the lesion." {
		t.Fatalf("expected override, got %q", catalog.CaptionUser)
	}
	if catalog.KeywordSystem == "" {
		t.Fatalf("expected defaults to survive a partial override")
	}
}

func TestLoadRejectsBrokenTemplate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompts.yaml")
	if err := os.WriteFile(path, []byte("follow_up_user: \"{{.Text\"\n"), 0o600); err != nil {
		t.Fatalf("write prompts: %v", err)
	}

	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "follow_up_user") {
		t.Fatalf("expected follow_up_user template error, got %v", err)
	}
}

func TestParseRejectsMissingSystemPrompt(t *testing.T) {
	_, err := Parse([]byte("keyword_user: \"{{.Text}}\"\n"))
	if err == nil || !strings.Contains(err.Error(), "keyword_system is empty") {
		t.Fatalf("expected missing system prompt error, got %v", err)
	}
}
