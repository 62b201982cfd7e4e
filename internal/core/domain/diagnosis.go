package domain

import (
	"strings"
	"time"
)

type DiagnosisMode string

const (
	ModeImage  DiagnosisMode = "image"
	ModeText   DiagnosisMode = "text"
	ModeFusion DiagnosisMode = "fusion"
)

// DiagnosisInput carries the optional text and images of one request.
type DiagnosisInput struct {
	Text   string
	Images [][]byte
}

func (in DiagnosisInput) HasText() bool {
	return strings.TrimSpace(in.Text) != ""
}

func (in DiagnosisInput) HasImage() bool {
	for _, img := range in.Images {
		if len(img) > 0 {
			return true
		}
	}
	return false
}

// PrimaryImage returns the first non-empty image.
func (in DiagnosisInput) PrimaryImage() []byte {
	for _, img := range in.Images {
		if len(img) > 0 {
			return img
		}
	}
	return nil
}

func (in DiagnosisInput) Mode() (DiagnosisMode, error) {
	switch {
	case in.HasImage() && in.HasText():
		return ModeFusion, nil
	case in.HasImage():
		return ModeImage, nil
	case in.HasText():
		return ModeText, nil
	default:
		return "", ErrNoInput
	}
}

type ContextResult struct {
	Labels    FusedRanking  `json:"labels"`
	Documents [][]string    `json:"documents"`
	Mode      DiagnosisMode `json:"mode"`
}

type DiagnosisResult struct {
	Labels   FusedRanking      `json:"labels"`
	Response string            `json:"response"`
	Mode     DiagnosisMode     `json:"mode"`
	Stage    ConversationStage `json:"stage"`
}

type FirstStageInput struct {
	Text     string
	Image    []byte
	MimeType string
}

type FirstStageResult struct {
	Labels      FusedRanking      `json:"labels"`
	Response    string            `json:"response"`
	ChatHistory ConversationState `json:"chat_history"`
	Stage       ConversationStage `json:"stage"`
}

type FollowUpInput struct {
	History ConversationState
	Text    string
}

type FollowUpResult struct {
	Response    string            `json:"response"`
	ChatHistory ConversationState `json:"chat_history"`
	Stage       ConversationStage `json:"stage"`
}

type QueryClassification struct {
	QueryType QueryType `json:"query_type"`
	QueryText string    `json:"query_text"`
}

// DiagnosisEvent is published after each completed diagnosis step.
type DiagnosisEvent struct {
	ID          string        `json:"id"`
	Kind        string        `json:"kind"`
	Mode        DiagnosisMode `json:"mode,omitempty"`
	Text        string        `json:"text,omitempty"`
	HasImage    bool          `json:"has_image"`
	Labels      FusedRanking  `json:"labels"`
	Response    string        `json:"response,omitempty"`
	CompletedAt time.Time     `json:"completed_at"`
}

const (
	EventKindContext  = "context"
	EventKindAnalyze  = "analyze"
	EventKindFirst    = "conversation_first"
	EventKindFollowUp = "conversation_followup"
)
