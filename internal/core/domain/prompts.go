package domain

// PromptCatalog holds every system and user instruction sent to the generative
// backends. User instructions are text/template sources.
type PromptCatalog struct {
	KeywordSystem string `yaml:"keyword_system"`
	KeywordUser   string `yaml:"keyword_user"`

	QueryTypeSystem string `yaml:"query_type_system"`
	QueryTypeUser   string `yaml:"query_type_user"`

	CaptionSystem string `yaml:"caption_system"`
	CaptionUser   string `yaml:"caption_user"`

	ReasoningSystem  string `yaml:"reasoning_system"`
	ReasoningUser    string `yaml:"reasoning_user"`
	ReasoningHasText string `yaml:"reasoning_has_text"`
	ReasoningHasImg  string `yaml:"reasoning_has_image"`

	ShortlistSystem string `yaml:"shortlist_system"`
	ShortlistUser   string `yaml:"shortlist_user"`

	FirstStageSystem string `yaml:"first_stage_system"`
	FirstStageUser   string `yaml:"first_stage_user"`

	FollowUpSystem string `yaml:"follow_up_system"`
	FollowUpUser   string `yaml:"follow_up_user"`
}

// Templates lists the user-instruction templates by name for validation.
func (c PromptCatalog) Templates() map[string]string {
	return map[string]string{
		"keyword_user":     c.KeywordUser,
		"query_type_user":  c.QueryTypeUser,
		"caption_user":     c.CaptionUser,
		"reasoning_user":   c.ReasoningUser,
		"shortlist_user":   c.ShortlistUser,
		"first_stage_user": c.FirstStageUser,
		"follow_up_user":   c.FollowUpUser,
	}
}
