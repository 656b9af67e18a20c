// Package main provides the stop hook entry point. Stop fires when the
// assistant finishes a turn; the turn's content lives in the transcript, so
// the hook reads the final assistant message and forwards it as an
// assistant-turn event.
package main

import (
	"context"
	"time"

	"github.com/thebtf/beacon/internal/history"
	"github.com/thebtf/beacon/pkg/hooks"
	"github.com/thebtf/beacon/pkg/models"
)

// Input is the hook input from the host.
type Input struct {
	SessionID      string `json:"session_id"`
	TranscriptPath string `json:"transcript_path"`
	HookEventName  string `json:"hook_event_name"`
	StopHookActive bool   `json:"stop_hook_active"`
}

func main() {
	hooks.RunHook("Stop", func(ctx *hooks.HookContext, input *Input) error {
		// A second Stop fired by a stop hook itself would double-count
		// the turn.
		if input.StopHookActive {
			return nil
		}

		reader := history.NewReader()
		turn, ok, err := reader.LastTurn(context.Background(), input.TranscriptPath)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}

		timestamp := turn.CreatedAt
		if timestamp.IsZero() {
			timestamp = time.Now()
		}
		return hooks.PostEvent(ctx.Port, "assistant-turn", models.AssistantTurnEvent{
			SessionID:   input.SessionID,
			Parts:       turn.Parts,
			ToolResults: turn.ToolResults,
			Usage:       turn.Usage,
			Model:       turn.Model,
			Timestamp:   timestamp,
		})
	})
}
