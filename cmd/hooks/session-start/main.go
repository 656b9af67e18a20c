// Package main provides the session-start hook entry point.
package main

import (
	"github.com/thebtf/beacon/pkg/hooks"
	"github.com/thebtf/beacon/pkg/models"
)

// Input is the hook input from the host.
type Input struct {
	SessionID      string `json:"session_id"`
	CWD            string `json:"cwd"`
	TranscriptPath string `json:"transcript_path"`
	HookEventName  string `json:"hook_event_name"`
	Source         string `json:"source"` // "startup", "resume", "clear", "compact"
	Model          string `json:"model"`
}

func main() {
	hooks.RunHook("SessionStart", func(ctx *hooks.HookContext, input *Input) error {
		source := models.SourceStartup
		if input.Source == "resume" {
			source = models.SourceResume
		}
		return hooks.PostEvent(ctx.Port, "session-start", models.SessionStartEvent{
			SessionID:      input.SessionID,
			Directory:      input.CWD,
			TranscriptPath: input.TranscriptPath,
			Model:          input.Model,
			Source:         source,
		})
	})
}
