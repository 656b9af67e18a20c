// Package models contains domain models for beacon.
package models

import (
	"fmt"

	"github.com/goccy/go-json"
)

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ContentPart is one fragment of a message's content. Concrete types are
// TextContent, ThinkingContent, ToolCallContent, ToolResultContent and
// ImageContent. The sealed interface keeps switches over part kinds
// exhaustiveness-checkable.
type ContentPart interface {
	isContentPart()
}

// TextContent is plain message text.
type TextContent struct {
	Text string
}

// ThinkingContent is the assistant's reasoning text.
type ThinkingContent struct {
	Text string
}

// ToolCallContent is a tool invocation issued by the assistant.
type ToolCallContent struct {
	ID        string
	Name      string
	Arguments map[string]any
}

// ToolResultContent is the outcome of a tool invocation. Content holds
// TextContent and ImageContent entries only. Results also travel on their
// own in turn events, so this one carries wire tags directly.
type ToolResultContent struct {
	ToolName string   `json:"toolName"`
	Content  PartList `json:"content"`
}

// ImageContent is inline image data.
type ImageContent struct {
	Data     string
	MimeType string
}

func (TextContent) isContentPart()       {}
func (ThinkingContent) isContentPart()   {}
func (ToolCallContent) isContentPart()   {}
func (ToolResultContent) isContentPart() {}
func (ImageContent) isContentPart()      {}

// PartList is a JSON-serializable list of content parts. Parts cross the
// wire between hook binaries and the relay as tagged objects.
type PartList []ContentPart

type partEnvelope struct {
	Type      string         `json:"type"`
	Text      string         `json:"text,omitempty"`
	ID        string         `json:"id,omitempty"`
	Name      string         `json:"name,omitempty"`
	Arguments map[string]any `json:"arguments,omitempty"`
	ToolName  string         `json:"toolName,omitempty"`
	Content   PartList       `json:"content,omitempty"`
	Data      string         `json:"data,omitempty"`
	MimeType  string         `json:"mimeType,omitempty"`
}

const (
	envelopeText       = "text"
	envelopeThinking   = "thinking"
	envelopeToolCall   = "tool-call"
	envelopeToolResult = "tool-result"
	envelopeImage      = "image"
)

// MarshalJSON encodes each part as a tagged envelope object.
func (l PartList) MarshalJSON() ([]byte, error) {
	envelopes := make([]partEnvelope, 0, len(l))
	for _, part := range l {
		switch p := part.(type) {
		case TextContent:
			envelopes = append(envelopes, partEnvelope{Type: envelopeText, Text: p.Text})
		case ThinkingContent:
			envelopes = append(envelopes, partEnvelope{Type: envelopeThinking, Text: p.Text})
		case ToolCallContent:
			envelopes = append(envelopes, partEnvelope{Type: envelopeToolCall, ID: p.ID, Name: p.Name, Arguments: p.Arguments})
		case ToolResultContent:
			envelopes = append(envelopes, partEnvelope{Type: envelopeToolResult, ToolName: p.ToolName, Content: p.Content})
		case ImageContent:
			envelopes = append(envelopes, partEnvelope{Type: envelopeImage, Data: p.Data, MimeType: p.MimeType})
		default:
			return nil, fmt.Errorf("unknown content part type %T", part)
		}
	}
	return json.Marshal(envelopes)
}

// UnmarshalJSON decodes tagged envelope objects back into concrete parts.
// Unknown part types are skipped so newer hosts do not break older relays.
func (l *PartList) UnmarshalJSON(data []byte) error {
	var envelopes []partEnvelope
	if err := json.Unmarshal(data, &envelopes); err != nil {
		return err
	}
	parts := make(PartList, 0, len(envelopes))
	for _, e := range envelopes {
		switch e.Type {
		case envelopeText:
			parts = append(parts, TextContent{Text: e.Text})
		case envelopeThinking:
			parts = append(parts, ThinkingContent{Text: e.Text})
		case envelopeToolCall:
			parts = append(parts, ToolCallContent{ID: e.ID, Name: e.Name, Arguments: e.Arguments})
		case envelopeToolResult:
			parts = append(parts, ToolResultContent{ToolName: e.ToolName, Content: e.Content})
		case envelopeImage:
			parts = append(parts, ImageContent{Data: e.Data, MimeType: e.MimeType})
		}
	}
	*l = parts
	return nil
}

// Usage is the token/cost delta reported for one assistant turn.
// All fields are non-negative.
type Usage struct {
	PromptTokens     int64   `json:"promptTokens"`
	CompletionTokens int64   `json:"completionTokens"`
	Cost             float64 `json:"cost"`
}

// IsZero reports whether no usage was recorded.
func (u Usage) IsZero() bool {
	return u.PromptTokens == 0 && u.CompletionTokens == 0 && u.Cost == 0
}
