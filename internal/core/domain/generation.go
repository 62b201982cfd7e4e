package domain

// GenerationRequest is one single-turn generative call.
type GenerationRequest struct {
	SystemInstruction string
	UserInstruction   string
	Images            []Part
	Temperature       float32
	MaxTokens         int
}

// ChatRequest is one multi-turn generative call over the full history.
type ChatRequest struct {
	SystemInstruction string
	History           ConversationState
	Temperature       float32
	MaxTokens         int
}

