package domain

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type PartType string

const (
	PartText  PartType = "text"
	PartImage PartType = "image"
)

const DefaultImageMimeType = "image/jpeg"

// ConversationStage is informational; the engine does not enforce transitions.
type ConversationStage string

const (
	StageInitial          ConversationStage = "INITIAL"
	StageAwaitingFollowUp ConversationStage = "AWAITING_FOLLOWUP"
	StageTerminal         ConversationStage = "TERMINAL"
)

type Part struct {
	Type     PartType
	Text     string
	Data     []byte
	MimeType string
}

func TextPart(text string) Part {
	return Part{Type: PartText, Text: text}
}

func ImagePart(data []byte, mimeType string) Part {
	if strings.TrimSpace(mimeType) == "" {
		mimeType = DefaultImageMimeType
	}
	return Part{Type: PartImage, Data: data, MimeType: mimeType}
}

type partJSON struct {
	Type     PartType `json:"type"`
	Text     string   `json:"text,omitempty"`
	Image    string   `json:"image,omitempty"`
	MimeType string   `json:"mime_type,omitempty"`
}

// MarshalJSON encodes image bytes as base64 under "image".
func (p Part) MarshalJSON() ([]byte, error) {
	out := partJSON{Type: p.Type}
	switch p.Type {
	case PartImage:
		out.Image = base64.StdEncoding.EncodeToString(p.Data)
		out.MimeType = p.MimeType
		if out.MimeType == "" {
			out.MimeType = DefaultImageMimeType
		}
	default:
		out.Text = p.Text
	}
	return json.Marshal(out)
}

func (p *Part) UnmarshalJSON(data []byte) error {
	var in partJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	switch in.Type {
	case PartImage:
		raw, err := DecodeImagePayload(in.Image)
		if err != nil {
			return fmt.Errorf("decode image part: %w", err)
		}
		*p = ImagePart(raw, in.MimeType)
	case PartText, "":
		*p = TextPart(in.Text)
	default:
		return fmt.Errorf("unsupported part type %q", in.Type)
	}
	return nil
}

type Turn struct {
	Role    Role   `json:"role"`
	Content []Part `json:"content"`
}

// ConversationState is the caller-owned dialogue history.
type ConversationState []Turn

// Clone copies the turn slice so appends never alias the caller's backing array.
func (c ConversationState) Clone() ConversationState {
	out := make(ConversationState, len(c))
	copy(out, c)
	return out
}

// DecodeImagePayload accepts raw base64 or a data URL.
func DecodeImagePayload(payload string) ([]byte, error) {
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return nil, fmt.Errorf("empty image payload")
	}
	if strings.HasPrefix(payload, "data:") {
		if idx := strings.Index(payload, ","); idx >= 0 {
			payload = payload[idx+1:]
		}
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(payload)
		if err != nil {
			return nil, err
		}
	}
	return data, nil
}

// DetectImageMimeType sniffs the image type, falling back to DefaultImageMimeType.
func DetectImageMimeType(data []byte) string {
	if len(data) == 0 {
		return DefaultImageMimeType
	}
	mimeType := http.DetectContentType(data)
	if strings.HasPrefix(mimeType, "image/") {
		return mimeType
	}
	return DefaultImageMimeType
}
