package ai

const (
	roleUser      = "user"
	roleAssistant = "assistant"

	maxMessageLength  = 1000
	maxSessionLength  = 128
	maxStoredMessages = 200
)

// ChatRequest is the body of POST /ai-chat.
type ChatRequest struct {
	Message        string `json:"message"`
	SessionID      string `json:"session_id"`
	OrganizationID string `json:"organization_id"`
}

// ChatResponse is the assistant's reply for the session.
type ChatResponse struct {
	Response  string `json:"response"`
	SessionID string `json:"session_id"`
}
