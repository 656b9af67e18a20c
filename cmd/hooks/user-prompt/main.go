// Package main provides the user-prompt hook entry point.
package main

import (
	"time"

	"github.com/thebtf/beacon/pkg/hooks"
	"github.com/thebtf/beacon/pkg/models"
)

// Input is the hook input from the host.
type Input struct {
	SessionID     string `json:"session_id"`
	CWD           string `json:"cwd"`
	HookEventName string `json:"hook_event_name"`
	Prompt        string `json:"prompt"`
}

func main() {
	// RunHook already drops internal (tooling-injected) invocations, so
	// anything reaching the handler came from a human.
	hooks.RunHook("UserPromptSubmit", func(ctx *hooks.HookContext, input *Input) error {
		return hooks.PostEvent(ctx.Port, "user-input", models.UserInputEvent{
			SessionID: input.SessionID,
			Text:      input.Prompt,
			Origin:    models.OriginHuman,
			Timestamp: time.Now(),
		})
	})
}
