// Package session holds the per-session accumulator that survives
// resumption and forking.
package session

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/thebtf/beacon/pkg/models"
)

// State accumulates a single session's identity and usage totals. One State
// exists per active session and is owned exclusively by that session's
// orchestrator; the orchestrator serializes all mutation, so State itself
// carries no locking.
//
// Counters only ever grow. MessageCount in particular must equal the number
// of messages ever emitted toward the remote service, including messages
// replayed during a resume or fork: message ids are derived from the counter,
// so drift silently collides ids and overwrites unrelated remote messages.
type State struct {
	ExternalID       string
	ParentExternalID string
	ProjectPath      string
	ProjectName      string
	Name             string
	Model            string
	Provider         string
	PromptTokens     int64
	CompletionTokens int64
	Cost             float64
	MessageCount     int64
	ToolCallCount    int64
	StartedAt        time.Time
}

// New creates the accumulator for a fresh session. model and parentID may be
// empty; parentID is set only when the session was forked.
func New(externalID, projectPath, model, parentID string) *State {
	return &State{
		ExternalID:       externalID,
		ParentExternalID: parentID,
		ProjectPath:      projectPath,
		ProjectName:      filepath.Base(projectPath),
		Model:            model,
		StartedAt:        time.Now(),
	}
}

// ApplyUsage adds one turn's token/cost delta. Negative components are
// ignored so the totals stay monotonic.
func (s *State) ApplyUsage(u models.Usage) {
	if u.PromptTokens > 0 {
		s.PromptTokens += u.PromptTokens
	}
	if u.CompletionTokens > 0 {
		s.CompletionTokens += u.CompletionTokens
	}
	if u.Cost > 0 {
		s.Cost += u.Cost
	}
}

// IncrementMessageCount bumps the counter and returns the deterministic id
// for the message being synced. The id is a pure function of
// (externalId, messageCount, role); replaying the same history therefore
// regenerates the same ids.
func (s *State) IncrementMessageCount(role models.Role) string {
	s.MessageCount++
	return fmt.Sprintf("%s-%s-%d", s.ExternalID, role, s.MessageCount)
}

// IncrementToolCallCount adds the number of tool calls discovered in a turn.
func (s *State) IncrementToolCallCount(n int) {
	if n > 0 {
		s.ToolCallCount += int64(n)
	}
}

// UpdateModel records a model/provider change. Empty values leave the
// current ones in place.
func (s *State) UpdateModel(model, provider string) {
	if model != "" {
		s.Model = model
	}
	if provider != "" {
		s.Provider = provider
	}
}

// SetName records the human-assigned session name.
func (s *State) SetName(name string) {
	if name != "" {
		s.Name = name
	}
}
