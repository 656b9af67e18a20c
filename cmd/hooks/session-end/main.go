// Package main provides the session-end hook entry point.
package main

import (
	"github.com/thebtf/beacon/pkg/hooks"
	"github.com/thebtf/beacon/pkg/models"
)

// Input is the hook input from the host.
type Input struct {
	SessionID     string `json:"session_id"`
	HookEventName string `json:"hook_event_name"`
	Reason        string `json:"reason"`
}

func main() {
	hooks.RunHook("SessionEnd", func(ctx *hooks.HookContext, input *Input) error {
		return hooks.PostEvent(ctx.Port, "session-end", models.SessionEndEvent{
			SessionID: input.SessionID,
		})
	})
}
