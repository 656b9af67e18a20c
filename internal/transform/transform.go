package transform

import (
	"fmt"
	"strings"
	"time"

	"github.com/thebtf/beacon/internal/config"
	"github.com/thebtf/beacon/internal/session"
	"github.com/thebtf/beacon/pkg/models"
)

// UntitledFallback is substituted when a session has no human-assigned name.
// An empty title would be invisible in the dashboard's session list.
const UntitledFallback = "Untitled"

// forkMarkerLen is how much of the parent's external id goes into the fork
// marker.
const forkMarkerLen = 8

// Options controls which content kinds reach the wire.
type Options struct {
	// SyncToolCalls includes tool-call/tool-result parts in messages.
	SyncToolCalls bool
	// SyncThinking includes the assistant's reasoning, both in extracted
	// text (wrapped in <thinking> markers) and as thinking parts.
	SyncThinking bool
	// DuplicateText repeats the plain text as the first structured part
	// whenever any other structured content exists. The dashboard renderer
	// shows either the text field or the parts array, never both; without
	// the duplicate the text disappears as soon as parts are present.
	DuplicateText bool
}

// OptionsFromConfig derives transform options from the sync configuration.
func OptionsFromConfig(cfg config.SyncConfig) Options {
	return Options{
		SyncToolCalls: cfg.SyncToolCalls,
		SyncThinking:  cfg.SyncThinking,
		DuplicateText: cfg.DuplicateText,
	}
}

// SessionTitle derives the display title for a session. Forked sessions are
// marked with a prefix built from the parent's external id so branches stay
// groupable in the dashboard, on every sync, not just the first.
func SessionTitle(st *session.State) string {
	title := st.Name
	if title == "" {
		title = UntitledFallback
	}
	if st.ParentExternalID != "" {
		marker := st.ParentExternalID
		if len(marker) > forkMarkerLen {
			marker = marker[:forkMarkerLen]
		}
		title = fmt.Sprintf("[Fork::%s] %s", marker, title)
	}
	return title
}

// Session builds the session payload. Counter fields are present only when
// non-zero; durationMs is present only on the session's final sync.
func Session(st *session.State, source string, final bool, now time.Time) SessionPayload {
	p := SessionPayload{
		ExternalID:  st.ExternalID,
		Source:      source,
		Title:       SessionTitle(st),
		ProjectPath: st.ProjectPath,
		ProjectName: st.ProjectName,
		Model:       st.Model,
		Provider:    st.Provider,
	}
	if st.PromptTokens > 0 {
		p.PromptTokens = st.PromptTokens
	}
	if st.CompletionTokens > 0 {
		p.CompletionTokens = st.CompletionTokens
	}
	if total := st.PromptTokens + st.CompletionTokens; total > 0 {
		p.TotalTokens = total
	}
	if st.Cost > 0 {
		p.Cost = st.Cost
	}
	if st.MessageCount > 0 {
		p.MessageCount = st.MessageCount
	}
	if final {
		duration := now.Sub(st.StartedAt).Milliseconds()
		p.DurationMs = &duration
	}
	return p
}

// ExtractText concatenates the plain text of a message in original order.
// Thinking text is included only when enabled, wrapped in <thinking> markers.
// Tool calls and results never contribute.
func ExtractText(parts models.PartList, includeThinking bool) string {
	var chunks []string
	for _, part := range parts {
		switch p := part.(type) {
		case models.TextContent:
			chunks = append(chunks, p.Text)
		case models.ThinkingContent:
			if includeThinking {
				chunks = append(chunks, "<thinking>"+p.Text+"</thinking>")
			}
		}
	}
	return strings.Join(chunks, "\n")
}

// BuildParts builds the structured parts for one turn.
//
// Precondition: results are in call order; result i answers the i-th tool
// call in parts. The host event stream delivers them that way and nothing
// here can re-pair them, since results carry no call id.
//
// Order of the output is fixed: the duplicated text first (when enabled and
// any structured content exists), then each tool call immediately followed by
// its paired result, then thinking parts. Calls past the end of the result
// list simply get no result part. An empty result is returned as nil so the
// caller omits the field entirely.
func BuildParts(parts models.PartList, results []models.ToolResultContent, opts Options) []MessagePart {
	hasCalls := false
	hasThinking := false
	for _, part := range parts {
		switch part.(type) {
		case models.ToolCallContent:
			if opts.SyncToolCalls {
				hasCalls = true
			}
		case models.ThinkingContent:
			if opts.SyncThinking {
				hasThinking = true
			}
		}
	}
	hasResults := opts.SyncToolCalls && len(results) > 0

	var out []MessagePart

	text := ExtractText(parts, opts.SyncThinking)
	if opts.DuplicateText && text != "" && (hasCalls || hasThinking || hasResults) {
		out = append(out, MessagePart{Type: PartTypeText, Content: text})
	}

	if opts.SyncToolCalls {
		next := 0
		for _, part := range parts {
			call, ok := part.(models.ToolCallContent)
			if !ok {
				continue
			}
			out = append(out, MessagePart{
				Type:    PartTypeToolCall,
				Content: ToolCallBody{ToolName: call.Name, Args: call.Arguments},
			})
			if next < len(results) {
				out = append(out, MessagePart{
					Type:    PartTypeToolResult,
					Content: resultText(results[next]),
				})
				next++
			}
		}
	}

	if opts.SyncThinking {
		for _, part := range parts {
			if thinking, ok := part.(models.ThinkingContent); ok {
				out = append(out, MessagePart{Type: PartTypeThinking, Content: thinking.Text})
			}
		}
	}

	return out
}

// resultText flattens a tool result to its text sub-parts. Images are
// dropped; the dashboard renders result parts as text only.
func resultText(result models.ToolResultContent) string {
	var chunks []string
	for _, part := range result.Content {
		if text, ok := part.(models.TextContent); ok {
			chunks = append(chunks, text.Text)
		}
	}
	return strings.Join(chunks, "\n")
}

// Message builds the message payload for one synced message. createdAt may
// be zero, in which case the field is omitted (the batch path never sends
// it).
func Message(st *session.State, role models.Role, messageID string, parts models.PartList, results []models.ToolResultContent, usage models.Usage, model string, createdAt time.Time, opts Options) MessagePayload {
	p := MessagePayload{
		SessionExternalID: st.ExternalID,
		ExternalID:        messageID,
		Role:              string(role),
		TextContent:       ExtractText(parts, opts.SyncThinking),
		Model:             model,
		Parts:             BuildParts(parts, results, opts),
	}
	if usage.PromptTokens > 0 {
		p.PromptTokens = usage.PromptTokens
	}
	if usage.CompletionTokens > 0 {
		p.CompletionTokens = usage.CompletionTokens
	}
	if !createdAt.IsZero() {
		p.CreatedAt = createdAt.UnixMilli()
	}
	return p
}
