package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"text/template"

	"github.com/kirillkom/dermafusion/internal/core/domain"
)

const contextSeparator = "-----------------------------------"

type promptData struct {
	Text        string
	HasText     string
	HasImage    string
	RelatedData string
	Labels      string
	TopK        int
}

func renderPrompt(name, source string, data promptData) (string, error) {
	tmpl, err := template.New(name).Parse(source)
	if err != nil {
		return "", fmt.Errorf("parse prompt %s: %w", name, err)
	}
	var b strings.Builder
	if err := tmpl.Execute(&b, data); err != nil {
		return "", fmt.Errorf("render prompt %s: %w", name, err)
	}
	return b.String(), nil
}

// describeLabels fetches descriptive text for every ranked label. Lookup
// failures and misses degrade to a placeholder sentence.
func (uc *DiagnosisUseCase) describeLabels(ctx context.Context, labels domain.FusedRanking) [][]string {
	out := make([][]string, 0, len(labels))
	for _, item := range labels {
		out = append(out, uc.describeLabel(ctx, item.Label))
	}
	return out
}

func (uc *DiagnosisUseCase) describeLabel(ctx context.Context, label string) []string {
	missing := []string{fmt.Sprintf("Không tìm thấy thông tin chi tiết về bệnh %s", label)}

	found, err := uc.taxonomy.FindDescriptions(ctx, label)
	if err != nil {
		slog.Warn("disease_description_lookup_failed", "label", label, "error", err)
		return missing
	}
	if len(found) == 0 {
		return missing
	}

	docs := make([]string, 0, len(found))
	for _, d := range found {
		if nonEmpty(d.Description) {
			docs = append(docs, d.Description)
			continue
		}
		docs = append(docs, fmt.Sprintf("Thông tin về bệnh %s", d.Label))
	}
	return docs
}

// formatContext renders ranked labels and their evidence for the reasoning prompt.
func formatContext(labels domain.FusedRanking, docs [][]string) string {
	var b strings.Builder
	for i, item := range labels {
		evidence := ""
		if i < len(docs) {
			evidence = strings.Join(docs[i], "\n")
		}
		fmt.Fprintf(&b, "**Tên bệnh:** %s\n", item.Label)
		fmt.Fprintf(&b, "**Điểm số:** %.4f\n", item.Score)
		fmt.Fprintf(&b, "**Thông tin dữ liệu về bệnh:** %s\n", evidence)
		b.WriteString(contextSeparator)
		b.WriteString("\n")
	}
	return b.String()
}
