package domain

// ChatMessage is the provider-agnostic chat message shape sent to the
// completion API.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest describes one completion call. MaxTokens of zero leaves the
// provider default in place.
type ChatRequest struct {
	Model     string
	Messages  []ChatMessage
	MaxTokens int
}
