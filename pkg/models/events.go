package models

import "time"

// InputOrigin distinguishes human input from input injected by tooling.
// System-injected prompts are never synced to avoid feedback loops.
type InputOrigin string

const (
	OriginHuman  InputOrigin = "human"
	OriginSystem InputOrigin = "system"
)

// SessionStartSource mirrors the host's session-start reason.
type SessionStartSource string

const (
	SourceStartup SessionStartSource = "startup"
	SourceResume  SessionStartSource = "resume"
)

// SessionStartEvent begins a session's lifecycle. Source "resume" means the
// transcript already holds history and the accumulator must be backfilled
// before any live event is processed.
type SessionStartEvent struct {
	SessionID      string             `json:"sessionId"`
	Directory      string             `json:"directory"`
	TranscriptPath string             `json:"transcriptPath,omitempty"`
	Model          string             `json:"model,omitempty"`
	Provider       string             `json:"provider,omitempty"`
	Name           string             `json:"name,omitempty"`
	Source         SessionStartSource `json:"source"`
}

// SessionForkEvent branches the active session. The new session inherits the
// fork point's history via TranscriptPath and links back to its parent.
type SessionForkEvent struct {
	SessionID      string `json:"sessionId"`
	NewSessionID   string `json:"newSessionId,omitempty"`
	TranscriptPath string `json:"transcriptPath,omitempty"`
}

// UserInputEvent is one user message.
type UserInputEvent struct {
	SessionID string      `json:"sessionId"`
	Text      string      `json:"text"`
	Origin    InputOrigin `json:"origin"`
	Timestamp time.Time   `json:"timestamp"`
}

// AssistantTurnEvent is one completed assistant response: its ordered content
// parts, the tool results produced during the turn (in call order), and the
// usage delta for the turn.
type AssistantTurnEvent struct {
	SessionID   string              `json:"sessionId"`
	Parts       PartList            `json:"parts"`
	ToolResults []ToolResultContent `json:"toolResults,omitempty"`
	Usage       Usage               `json:"usage"`
	Model       string              `json:"model,omitempty"`
	Timestamp   time.Time           `json:"timestamp"`
}

// ModelChangeEvent updates session metadata without syncing.
type ModelChangeEvent struct {
	SessionID string `json:"sessionId"`
	Model     string `json:"model"`
	Provider  string `json:"provider,omitempty"`
}

// SessionEndEvent closes the session.
type SessionEndEvent struct {
	SessionID string `json:"sessionId"`
}

// HistoryMessage is one replayed message from a session's transcript, used
// during resume/fork backfill. It carries the same shape live turns do so
// backfill and live events share one accumulation path.
type HistoryMessage struct {
	Role        Role                `json:"role"`
	Parts       PartList            `json:"parts"`
	ToolResults []ToolResultContent `json:"toolResults,omitempty"`
	Usage       Usage               `json:"usage"`
	Model       string              `json:"model,omitempty"`
	CreatedAt   time.Time           `json:"createdAt"`
}
