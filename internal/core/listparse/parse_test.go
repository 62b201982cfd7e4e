package listparse

import (
	"strings"
	"testing"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want []string
	}{
		{name: "python fence", raw: "```python\n['nổi mẩn ngứa', 'tay', 'chân']\n```", want: []string{"nổi mẩn ngứa", "tay", "chân"}},
		{name: "json fence", raw: "```json\n[\"vảy nến\"]\n```", want: []string{"vảy nến"}},
		{name: "bare json", raw: `["a", "b"]`, want: []string{"a", "b"}},
		{name: "surrounding prose", raw: "Kết quả: ['a', \"b's\"] xong", want: []string{"a", "b's"}},
		{name: "escaped quote", raw: `['it\'s']`, want: []string{"it's"}},
		{name: "json objects", raw: `[{"label": "Chàm", "probability": 0.9}, {"label": "Vảy nến", "probability": 0.1}]`, want: []string{"Chàm", "Vảy nến"}},
		{name: "python dicts", raw: "```python\n[{'label': 'Chàm', 'probability': 0.9}, {'label': 'Vảy nến', 'probability': 0.1}]\n```", want: []string{"Chàm", "Vảy nến"}},
		{name: "empty list", raw: "```python\n[]\n```", want: []string{}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Parse(tc.raw)
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			if strings.Join(got, "|") != strings.Join(tc.want, "|") || len(got) != len(tc.want) {
				t.Fatalf("expected %q, got %q", tc.want, got)
			}
		})
	}
}

func TestParseRejectsMalformedOutput(t *testing.T) {
	for _, raw := range []string{
		"no list here",
		"['unterminated]",
		"] reversed [",
		"__import__('os').system('rm -rf /')",
	} {
		if got, err := Parse(raw); err == nil {
			t.Fatalf("expected error for %q, got %q", raw, got)
		}
	}
}
