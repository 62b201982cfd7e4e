// Package listparse reads list literals out of free-form model output.
package listparse

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var ErrNoList = errors.New("no list literal in model output")

// Parse extracts a list of strings from model output. The output may
// be wrapped in a code fence and may use JSON or single-quoted literal syntax.
// Object elements contribute their "label" value. Nothing is ever evaluated.
func Parse(raw string) ([]string, error) {
	body := stripCodeFence(raw)
	start := strings.Index(body, "[")
	end := strings.LastIndex(body, "]")
	if start < 0 || end <= start {
		return nil, ErrNoList
	}
	body = body[start : end+1]

	if items, err := parseJSONList(body); err == nil {
		return items, nil
	}
	return tokenizeList(body)
}

func stripCodeFence(raw string) string {
	raw = strings.TrimSpace(raw)
	if !strings.Contains(raw, "```") {
		return raw
	}
	segments := strings.Split(raw, "```")
	body := segments[1]
	if idx := strings.IndexAny(body, "\n["); idx >= 0 && body[idx] == '\n' {
		tag := strings.TrimSpace(body[:idx])
		if tag != "" && !strings.ContainsAny(tag, "[\"'") {
			body = body[idx+1:]
		}
	}
	return strings.TrimSpace(body)
}

func parseJSONList(body string) ([]string, error) {
	var items []any
	if err := json.Unmarshal([]byte(body), &items); err != nil {
		return nil, err
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		switch v := item.(type) {
		case string:
			out = append(out, v)
		case map[string]any:
			if label, ok := v["label"].(string); ok {
				out = append(out, label)
			}
		}
	}
	return out, nil
}

type listToken struct {
	quoted bool
	text   string
}

// tokenizeList reads quoted strings out of a bracketed literal. Inside braces
// only the value following a "label" key is kept.
func tokenizeList(body string) ([]string, error) {
	tokens := make([]listToken, 0)
	runes := []rune(body)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch r {
		case '\'', '"':
			var b strings.Builder
			closed := false
			for i++; i < len(runes); i++ {
				c := runes[i]
				if c == '\\' && i+1 < len(runes) {
					i++
					b.WriteRune(runes[i])
					continue
				}
				if c == r {
					closed = true
					break
				}
				b.WriteRune(c)
			}
			if !closed {
				return nil, fmt.Errorf("unterminated string literal")
			}
			tokens = append(tokens, listToken{quoted: true, text: b.String()})
		case '{', '}', ':', ',', '[', ']':
			tokens = append(tokens, listToken{text: string(r)})
		}
	}

	out := make([]string, 0)
	depth := 0
	for i, tok := range tokens {
		if !tok.quoted {
			switch tok.text {
			case "{":
				depth++
			case "}":
				depth--
			}
			continue
		}
		if depth == 0 {
			out = append(out, tok.text)
			continue
		}
		if i >= 2 && !tokens[i-1].quoted && tokens[i-1].text == ":" &&
			tokens[i-2].quoted && tokens[i-2].text == "label" {
			out = append(out, tok.text)
		}
	}
	if depth != 0 {
		return nil, fmt.Errorf("unbalanced braces in list literal")
	}
	return out, nil
}
