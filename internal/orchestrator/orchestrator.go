// Package orchestrator drives the sync pipeline off the host's lifecycle
// events: it owns the session accumulator, sequences transformer and client
// calls, and replays history on resume and fork.
package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/thebtf/beacon/internal/config"
	"github.com/thebtf/beacon/internal/session"
	"github.com/thebtf/beacon/internal/syncclient"
	"github.com/thebtf/beacon/internal/transform"
	"github.com/thebtf/beacon/pkg/models"
)

// Source identifies this client to the dashboard.
const Source = "claude-code"

// Syncer is the outbound surface the orchestrator drives. Satisfied by
// *syncclient.Client.
type Syncer interface {
	SyncSession(ctx context.Context, payload transform.SessionPayload) syncclient.Result
	SyncMessage(ctx context.Context, payload transform.MessagePayload) syncclient.Result
	SyncBatch(ctx context.Context, sessions []transform.SessionPayload, messages []transform.MessagePayload) syncclient.Result
}

// HistorySource is the read-only transcript accessor used during backfill.
// Satisfied by *history.Reader.
type HistorySource interface {
	Messages(ctx context.Context, transcriptPath string) ([]models.HistoryMessage, error)
}

type phase int

const (
	phaseUninitialized phase = iota
	phaseActive
	phaseShutDown
)

// Orchestrator handles one session's event stream. The mutex serializes
// handlers: each event, including its network calls, runs to completion
// before the next starts, so the accumulator is never read mid-mutation.
//
// Sync failures are reported through the log and then forgotten. Nothing
// here retries, queues, or blocks the host's own operation.
type Orchestrator struct {
	mu      sync.Mutex
	client  Syncer
	history HistorySource
	opts    transform.Options
	debug   bool
	logger  zerolog.Logger

	phase phase
	state *session.State
}

// New builds an orchestrator for a single session.
func New(client Syncer, history HistorySource, cfg config.SyncConfig) *Orchestrator {
	return &Orchestrator{
		client:  client,
		history: history,
		opts:    transform.OptionsFromConfig(cfg),
		debug:   cfg.Debug,
		logger:  log.Logger,
	}
}

// ExternalID returns the active session's external id, or "" when no
// session is active.
func (o *Orchestrator) ExternalID() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state == nil {
		return ""
	}
	return o.state.ExternalID
}

// Active reports whether the orchestrator currently owns a session.
func (o *Orchestrator) Active() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.phase == phaseActive
}

// HandleSessionStart creates the accumulator and syncs the initial session
// payload. A "resume" start replays the transcript through the accumulator
// first, so message ids continue after the existing history instead of
// colliding with it. Starts received while already active are ignored.
func (o *Orchestrator) HandleSessionStart(ctx context.Context, ev models.SessionStartEvent) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.phase != phaseUninitialized {
		return
	}

	externalID := ev.SessionID
	if externalID == "" {
		externalID = uuid.NewString()
	}
	st := session.New(externalID, ev.Directory, ev.Model, "")
	st.UpdateModel(ev.Model, ev.Provider)
	st.SetName(ev.Name)

	if ev.Source == models.SourceResume && ev.TranscriptPath != "" {
		msgs, err := o.history.Messages(ctx, ev.TranscriptPath)
		if err != nil {
			o.logger.Warn().Err(err).Str("session", externalID).Msg("Resume backfill failed, counters start fresh")
		} else {
			// The remote already holds these messages under this session
			// id; only the accumulator is replayed.
			for _, msg := range msgs {
				o.accumulate(st, msg)
			}
			o.logger.Info().Str("session", externalID).Int("messages", len(msgs)).Msg("Resumed session backfilled")
		}
	}

	o.state = st
	o.phase = phaseActive
	o.report("session", o.client.SyncSession(ctx, transform.Session(st, Source, false, time.Now())))
}

// HandleFork replaces the active session with a branch of it. The new
// session links to its parent, is synced once so the batch has somewhere to
// land, receives the fork point's history via batch upsert, and is synced
// again with the accumulated totals.
func (o *Orchestrator) HandleFork(ctx context.Context, ev models.SessionForkEvent) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.phase != phaseActive {
		return
	}

	parent := o.state
	externalID := ev.NewSessionID
	if externalID == "" {
		externalID = uuid.NewString()
	}
	st := session.New(externalID, parent.ProjectPath, parent.Model, parent.ExternalID)
	st.UpdateModel(parent.Model, parent.Provider)
	st.SetName(parent.Name)
	o.state = st

	o.report("session", o.client.SyncSession(ctx, transform.Session(st, Source, false, time.Now())))

	if ev.TranscriptPath != "" {
		msgs, err := o.history.Messages(ctx, ev.TranscriptPath)
		if err != nil {
			o.logger.Warn().Err(err).Str("session", externalID).Msg("Fork backfill failed")
		} else if len(msgs) > 0 {
			payloads := make([]transform.MessagePayload, 0, len(msgs))
			for _, msg := range msgs {
				messageID := o.accumulate(st, msg)
				// Batch messages omit createdAt.
				payloads = append(payloads, transform.Message(st, msg.Role, messageID, msg.Parts, msg.ToolResults, msg.Usage, msg.Model, time.Time{}, o.opts))
			}
			o.report("batch", o.client.SyncBatch(ctx, nil, payloads))
		}
	}

	o.report("session", o.client.SyncSession(ctx, transform.Session(st, Source, false, time.Now())))
	o.logger.Info().Str("parent", parent.ExternalID).Str("session", externalID).Msg("Session forked")
}

// HandleUserInput syncs one human message. Input injected by tooling is
// dropped; syncing it would loop system output back into the dashboard as
// user speech.
func (o *Orchestrator) HandleUserInput(ctx context.Context, ev models.UserInputEvent) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.phase != phaseActive || ev.Origin != models.OriginHuman {
		return
	}

	messageID := o.state.IncrementMessageCount(models.RoleUser)
	parts := models.PartList{models.TextContent{Text: ev.Text}}
	payload := transform.Message(o.state, models.RoleUser, messageID, parts, nil, models.Usage{}, "", ev.Timestamp, o.opts)
	o.report("message", o.client.SyncMessage(ctx, payload))
}

// HandleAssistantTurn syncs one completed assistant turn and then re-syncs
// the session so aggregate totals stay current.
func (o *Orchestrator) HandleAssistantTurn(ctx context.Context, ev models.AssistantTurnEvent) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.phase != phaseActive {
		return
	}

	o.state.IncrementToolCallCount(countToolCalls(ev.Parts))
	o.state.ApplyUsage(ev.Usage)

	model := ev.Model
	if model == "" {
		model = o.state.Model
	}
	messageID := o.state.IncrementMessageCount(models.RoleAssistant)
	payload := transform.Message(o.state, models.RoleAssistant, messageID, ev.Parts, ev.ToolResults, ev.Usage, model, ev.Timestamp, o.opts)
	o.report("message", o.client.SyncMessage(ctx, payload))
	o.report("session", o.client.SyncSession(ctx, transform.Session(o.state, Source, false, time.Now())))
}

// HandleModelChange updates session metadata. No sync; the next turn's
// session re-sync carries it.
func (o *Orchestrator) HandleModelChange(ctx context.Context, ev models.ModelChangeEvent) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.phase != phaseActive {
		return
	}
	o.state.UpdateModel(ev.Model, ev.Provider)
}

// HandleSessionEnd issues the final session sync, with duration, and
// discards the accumulator. Every later event is a no-op.
func (o *Orchestrator) HandleSessionEnd(ctx context.Context, ev models.SessionEndEvent) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.phase != phaseActive {
		return
	}

	o.report("session", o.client.SyncSession(ctx, transform.Session(o.state, Source, true, time.Now())))
	o.state = nil
	o.phase = phaseShutDown
}

// accumulate replays one history message through the accumulator, exactly as
// the live handlers would, and returns the message id it was assigned.
func (o *Orchestrator) accumulate(st *session.State, msg models.HistoryMessage) string {
	if msg.Role == models.RoleAssistant {
		st.IncrementToolCallCount(countToolCalls(msg.Parts))
		st.ApplyUsage(msg.Usage)
		st.UpdateModel(msg.Model, "")
	}
	return st.IncrementMessageCount(msg.Role)
}

// report surfaces a sync outcome. Failures are user-visible only in debug
// mode; they are never retried and never interrupt event handling.
func (o *Orchestrator) report(op string, res syncclient.Result) {
	if res.Success {
		o.logger.Debug().Str("op", op).Msg("Synced")
		return
	}
	if o.debug {
		o.logger.Warn().Str("op", op).Str("error", res.Error).Msg("Sync failed")
	} else {
		o.logger.Debug().Str("op", op).Str("error", res.Error).Msg("Sync failed")
	}
}

func countToolCalls(parts models.PartList) int {
	n := 0
	for _, part := range parts {
		if _, ok := part.(models.ToolCallContent); ok {
			n++
		}
	}
	return n
}
