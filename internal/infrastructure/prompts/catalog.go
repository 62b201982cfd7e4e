// Package prompts loads the instruction catalog sent to generative backends.
package prompts

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"

	"github.com/kirillkom/dermafusion/internal/core/domain"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// Default returns the embedded catalog.
func Default() (domain.PromptCatalog, error) {
	return Parse(defaultCatalog)
}

// Load reads the catalog from path, or the embedded default when path is empty.
// Keys missing from the file keep their default values.
func Load(path string) (domain.PromptCatalog, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return Default()
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return domain.PromptCatalog{}, fmt.Errorf("read prompts file: %w", err)
	}

	catalog, err := Default()
	if err != nil {
		return domain.PromptCatalog{}, err
	}
	if err := yaml.Unmarshal(raw, &catalog); err != nil {
		return domain.PromptCatalog{}, fmt.Errorf("decode prompts file %s: %w", path, err)
	}
	if err := Validate(catalog); err != nil {
		return domain.PromptCatalog{}, fmt.Errorf("prompts file %s: %w", path, err)
	}
	return catalog, nil
}

func Parse(raw []byte) (domain.PromptCatalog, error) {
	var catalog domain.PromptCatalog
	if err := yaml.Unmarshal(raw, &catalog); err != nil {
		return domain.PromptCatalog{}, fmt.Errorf("decode prompt catalog: %w", err)
	}
	if err := Validate(catalog); err != nil {
		return domain.PromptCatalog{}, err
	}
	return catalog, nil
}

// Validate checks that every system instruction is present and every user
// template parses.
func Validate(catalog domain.PromptCatalog) error {
	systems := map[string]string{
		"keyword_system":     catalog.KeywordSystem,
		"query_type_system":  catalog.QueryTypeSystem,
		"caption_system":     catalog.CaptionSystem,
		"reasoning_system":   catalog.ReasoningSystem,
		"shortlist_system":   catalog.ShortlistSystem,
		"first_stage_system": catalog.FirstStageSystem,
		"follow_up_system":   catalog.FollowUpSystem,
	}
	var problems []string
	for name, text := range systems {
		if strings.TrimSpace(text) == "" {
			problems = append(problems, name+" is empty")
		}
	}
	for name, source := range catalog.Templates() {
		if strings.TrimSpace(source) == "" {
			problems = append(problems, name+" is empty")
			continue
		}
		if _, err := template.New(name).Parse(source); err != nil {
			problems = append(problems, fmt.Sprintf("%s: %v", name, err))
		}
	}
	if len(problems) == 0 {
		return nil
	}
	sort.Strings(problems)
	return fmt.Errorf("invalid prompt catalog: %s", strings.Join(problems, "; "))
}
