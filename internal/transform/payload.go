// Package transform maps session state and message content into the wire
// payloads the dashboard accepts. Everything here is a pure function; payloads
// are never mutated after construction.
package transform

// SessionPayload is the body of POST /sync/session. Counter fields carry
// omitempty deliberately: the dashboard distinguishes "no data yet" from
// "zero usage" by field absence.
type SessionPayload struct {
	ExternalID       string  `json:"externalId"`
	Source           string  `json:"source"`
	Title            string  `json:"title,omitempty"`
	ProjectPath      string  `json:"projectPath,omitempty"`
	ProjectName      string  `json:"projectName,omitempty"`
	Model            string  `json:"model,omitempty"`
	Provider         string  `json:"provider,omitempty"`
	PromptTokens     int64   `json:"promptTokens,omitempty"`
	CompletionTokens int64   `json:"completionTokens,omitempty"`
	TotalTokens      int64   `json:"totalTokens,omitempty"`
	Cost             float64 `json:"cost,omitempty"`
	MessageCount     int64   `json:"messageCount,omitempty"`

	// DurationMs is a pointer so a final sync sends the field even when the
	// session lasted under a millisecond; omitempty on an int64 would drop it.
	DurationMs *int64 `json:"durationMs,omitempty"`
}

// MessagePayload is the body of POST /sync/message.
type MessagePayload struct {
	SessionExternalID string        `json:"sessionExternalId"`
	ExternalID        string        `json:"externalId"`
	Role              string        `json:"role"`
	TextContent       string        `json:"textContent,omitempty"`
	Model             string        `json:"model,omitempty"`
	PromptTokens      int64         `json:"promptTokens,omitempty"`
	CompletionTokens  int64         `json:"completionTokens,omitempty"`
	CreatedAt         int64         `json:"createdAt,omitempty"`
	Parts             []MessagePart `json:"parts,omitempty"`
}

// Part types accepted by the dashboard renderer.
const (
	PartTypeText       = "text"
	PartTypeToolCall   = "tool-call"
	PartTypeToolResult = "tool-result"
	PartTypeThinking   = "thinking"
)

// MessagePart is one structured fragment of a message. Content is a string
// for text, thinking and tool-result parts, and a ToolCallBody for
// tool-call parts.
type MessagePart struct {
	Type    string `json:"type"`
	Content any    `json:"content"`
}

// ToolCallBody is the content of a tool-call part. Args is passed through
// exactly as the host reported it, including nil and empty maps.
type ToolCallBody struct {
	ToolName string         `json:"toolName"`
	Args     map[string]any `json:"args"`
}
