package ports

import (
	"context"

	"github.com/kirillkom/dermafusion/internal/core/domain"
)

// DiagnosisService is the inbound contract for single-shot and conversational diagnosis.
type DiagnosisService interface {
	GetContext(ctx context.Context, input domain.DiagnosisInput) (*domain.ContextResult, error)
	GetDiagnosis(ctx context.Context, input domain.DiagnosisInput) (*domain.DiagnosisResult, error)
	StartConversation(ctx context.Context, input domain.FirstStageInput) (*domain.FirstStageResult, error)
	ContinueConversation(ctx context.Context, input domain.FollowUpInput) (*domain.FollowUpResult, error)
}

// QueryClassifier detects the intent of a free-text question.
type QueryClassifier interface {
	DetectQueryType(ctx context.Context, text string) (domain.QueryClassification, error)
}

// LabelMatcher reconciles free-form disease names against the live canonical set.
type LabelMatcher interface {
	MatchLabel(ctx context.Context, query string, minScore int) (domain.MatchResult, bool, error)
}

// DiagnosisLogRecorder is the inbound contract for asynchronous diagnosis log persistence.
type DiagnosisLogRecorder interface {
	Record(ctx context.Context, event domain.DiagnosisEvent) error
}
