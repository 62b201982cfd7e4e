package domain

import (
	"encoding/json"
	"fmt"
)

func marshalPair(label string, score float64) ([]byte, error) {
	return json.Marshal([]any{label, score})
}

func unmarshalPair(data []byte) (string, float64, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err == nil {
		if len(raw) != 2 {
			return "", 0, fmt.Errorf("label score pair: expected 2 elements, got %d", len(raw))
		}
		var label string
		var score float64
		if err := json.Unmarshal(raw[0], &label); err != nil {
			return "", 0, fmt.Errorf("label score pair label: %w", err)
		}
		if err := json.Unmarshal(raw[1], &score); err != nil {
			return "", 0, fmt.Errorf("label score pair score: %w", err)
		}
		return label, score, nil
	}

	var obj struct {
		Label string  `json:"label"`
		Score float64 `json:"score"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return "", 0, fmt.Errorf("label score pair: %w", err)
	}
	return obj.Label, obj.Score, nil
}
