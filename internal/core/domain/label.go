package domain

// LabelScore is a (label, score) pair. Whether lower or higher is better
// depends on the producer; collections are normalized before being combined.
type LabelScore struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// MarshalJSON renders a pair as ["label", score] to match the public API shape.
func (l LabelScore) MarshalJSON() ([]byte, error) {
	return marshalPair(l.Label, l.Score)
}

func (l *LabelScore) UnmarshalJSON(data []byte) error {
	label, score, err := unmarshalPair(data)
	if err != nil {
		return err
	}
	l.Label = label
	l.Score = score
	return nil
}

// FusedRanking is the final, softmax-finalized ranking for one request.
type FusedRanking []LabelScore

func (r FusedRanking) Labels() []string {
	out := make([]string, 0, len(r))
	for _, item := range r {
		out = append(out, item.Label)
	}
	return out
}

// RetrievalBundle holds the raw per-source outputs for one request.
// Every list is optional.
type RetrievalBundle struct {
	ImageLabels          []LabelScore `json:"image_labels"`
	GraphLabels          []LabelScore `json:"graph_labels"`
	DocumentLabels       []LabelScore `json:"document_labels"`
	KeywordDiseaseLabels []LabelScore `json:"keyword_disease_labels"`
}

func (b RetrievalBundle) Empty() bool {
	return len(b.ImageLabels) == 0 &&
		len(b.GraphLabels) == 0 &&
		len(b.DocumentLabels) == 0 &&
		len(b.KeywordDiseaseLabels) == 0
}

// MatchResult is a confident single match of a free-form label.
type MatchResult struct {
	MatchedLabel    string  `json:"matched_label"`
	ConfidenceScore float64 `json:"confidence_score"`
}

// ScoringStrategy selects how repeated hits for one label are collapsed.
type ScoringStrategy int

const (
	ScoringWeighted ScoringStrategy = iota
	ScoringAverage
	ScoringMin
	ScoringFrequency
)

func (s ScoringStrategy) String() string {
	switch s {
	case ScoringAverage:
		return "average"
	case ScoringMin:
		return "min"
	case ScoringFrequency:
		return "frequency"
	default:
		return "weighted"
	}
}

// ParseScoringStrategy maps config strings onto the closed enum.
func ParseScoringStrategy(raw string) (ScoringStrategy, bool) {
	switch raw {
	case "weighted", "":
		return ScoringWeighted, true
	case "average":
		return ScoringAverage, true
	case "min":
		return ScoringMin, true
	case "frequency":
		return ScoringFrequency, true
	default:
		return ScoringWeighted, false
	}
}

// ScoredHit is one raw retrieval hit before grouping. Distance: lower is better.
type ScoredHit struct {
	Label    string
	Distance float64
}
