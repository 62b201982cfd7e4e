package httpadapter

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/kirillkom/dermafusion/internal/core/domain"
)

var errBodyTooLarge = errors.New("request body too large")

// imagePayload accepts a single base64 string or a list of them.
type imagePayload []string

func (p *imagePayload) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "null" {
		*p = nil
		return nil
	}
	if strings.HasPrefix(trimmed, "[") {
		var many []string
		if err := json.Unmarshal(data, &many); err != nil {
			return err
		}
		*p = many
		return nil
	}
	var one string
	if err := json.Unmarshal(data, &one); err != nil {
		return err
	}
	*p = imagePayload{one}
	return nil
}

// decode turns every non-blank entry into raw image bytes.
func (p imagePayload) decode() ([][]byte, error) {
	out := make([][]byte, 0, len(p))
	for i, item := range p {
		if strings.TrimSpace(item) == "" {
			continue
		}
		data, err := domain.DecodeImagePayload(item)
		if err != nil {
			return nil, domain.WrapError(domain.ErrInvalidInput, "decode image", fmt.Errorf("image_base64[%d]: %w", i, err))
		}
		out = append(out, data)
	}
	return out, nil
}

type diagnosisRequest struct {
	ImageBase64 imagePayload `json:"image_base64"`
	Text        string       `json:"text"`
	MimeType    string       `json:"mime_type"`
}

type followUpRequest struct {
	ChatHistory domain.ConversationState `json:"chat_history"`
	Text        string                   `json:"text"`
}

type matchLabelRequest struct {
	Query    string `json:"query"`
	MinScore int    `json:"min_score"`
}

type matchLabelResponse struct {
	Matched bool `json:"matched"`
	domain.MatchResult
}

type classifyRequest struct {
	Text string `json:"text"`
}

func decodeJSON(w http.ResponseWriter, r *http.Request, limit int64, dst any) error {
	if limit > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, limit)
	}
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return fmt.Errorf("%w: limit %d bytes", errBodyTooLarge, tooLarge.Limit)
		}
		if errors.Is(err, io.EOF) {
			return domain.WrapError(domain.ErrInvalidInput, "decode request", errors.New("empty body"))
		}
		return domain.WrapError(domain.ErrInvalidInput, "decode request", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
