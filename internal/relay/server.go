// Package relay provides the local HTTP service that receives lifecycle
// events from hook binaries and drives per-session sync orchestrators.
package relay

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/thebtf/beacon/internal/config"
	"github.com/thebtf/beacon/internal/history"
	"github.com/thebtf/beacon/internal/orchestrator"
	"github.com/thebtf/beacon/internal/syncclient"
	"github.com/thebtf/beacon/pkg/models"
)

// Service is the relay: one process per machine, one orchestrator per host
// session. Events for different sessions never share state; events for the
// same session are serialized by the orchestrator's own lock.
type Service struct {
	version   string
	history   *history.Reader
	router    chi.Router
	startTime time.Time
	ready     atomic.Bool

	mu     sync.RWMutex
	cfg    config.SyncConfig
	client *syncclient.Client

	omu           sync.Mutex
	orchestrators map[string]*orchestrator.Orchestrator
}

// NewService builds the relay service.
func NewService(cfg config.SyncConfig, version string) *Service {
	s := &Service{
		version:       version,
		cfg:           cfg,
		client:        syncclient.New(cfg),
		history:       history.NewReader(),
		router:        chi.NewRouter(),
		orchestrators: make(map[string]*orchestrator.Orchestrator),
		startTime:     time.Now(),
	}
	s.setupRoutes()
	s.ready.Store(true)
	return s
}

// Router exposes the HTTP handler, for tests and for Start.
func (s *Service) Router() http.Handler {
	return s.router
}

// Start runs the HTTP server on localhost until ctx is canceled.
func (s *Service) Start(ctx context.Context) error {
	s.mu.RLock()
	port := s.cfg.RelayPort
	s.mu.RUnlock()

	server := &http.Server{
		Addr:    fmt.Sprintf("127.0.0.1:%d", port),
		Handler: s.router,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	log.Info().Int("port", port).Str("version", s.version).Msg("Relay listening")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Reload swaps in a new configuration. The sync client is rebuilt; sessions
// already in flight keep the client they started with, so a reload never
// changes a live session's behavior mid-stream.
func (s *Service) Reload(cfg config.SyncConfig) {
	s.mu.Lock()
	s.cfg = cfg
	s.client = syncclient.New(cfg)
	s.mu.Unlock()
	log.Info().Msg("Configuration reloaded")
}

func (s *Service) setupRoutes() {
	s.router.Get("/api/health", s.handleHealth)
	s.router.Get("/api/status", s.handleStatus)
	s.router.Get("/api/test-connection", s.handleTestConnection)

	s.router.Post("/api/event/session-start", eventHandler(s, func(ctx context.Context, o *orchestrator.Orchestrator, ev models.SessionStartEvent) {
		o.HandleSessionStart(ctx, ev)
	}))
	s.router.Post("/api/event/session-fork", eventHandler(s, func(ctx context.Context, o *orchestrator.Orchestrator, ev models.SessionForkEvent) {
		o.HandleFork(ctx, ev)
	}))
	s.router.Post("/api/event/user-input", eventHandler(s, func(ctx context.Context, o *orchestrator.Orchestrator, ev models.UserInputEvent) {
		o.HandleUserInput(ctx, ev)
	}))
	s.router.Post("/api/event/assistant-turn", eventHandler(s, func(ctx context.Context, o *orchestrator.Orchestrator, ev models.AssistantTurnEvent) {
		o.HandleAssistantTurn(ctx, ev)
	}))
	s.router.Post("/api/event/model-change", eventHandler(s, func(ctx context.Context, o *orchestrator.Orchestrator, ev models.ModelChangeEvent) {
		o.HandleModelChange(ctx, ev)
	}))
	s.router.Post("/api/event/session-end", eventHandler(s, func(ctx context.Context, o *orchestrator.Orchestrator, ev models.SessionEndEvent) {
		o.HandleSessionEnd(ctx, ev)
		s.removeOrchestrator(ev.SessionID)
	}))
}

// sessionEvent lets the generic handler pull the host session id out of any
// event type.
type sessionEvent interface {
	models.SessionStartEvent | models.SessionForkEvent | models.UserInputEvent |
		models.AssistantTurnEvent | models.ModelChangeEvent | models.SessionEndEvent
}

// eventHandler decodes one event and dispatches it to the session's
// orchestrator. With auto-sync off the event is acknowledged and dropped.
func eventHandler[E sessionEvent](s *Service, handle func(context.Context, *orchestrator.Orchestrator, E)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var ev E
		if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error": err.Error()})
			return
		}

		s.mu.RLock()
		autoSync := s.cfg.AutoSync
		s.mu.RUnlock()
		if !autoSync {
			writeJSON(w, http.StatusOK, map[string]any{"ok": true, "skipped": true})
			return
		}

		o := s.orchestratorFor(hostSessionID(ev))
		handle(r.Context(), o, ev)
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	}
}

func hostSessionID[E sessionEvent](ev E) string {
	switch v := any(ev).(type) {
	case models.SessionStartEvent:
		return v.SessionID
	case models.SessionForkEvent:
		return v.SessionID
	case models.UserInputEvent:
		return v.SessionID
	case models.AssistantTurnEvent:
		return v.SessionID
	case models.ModelChangeEvent:
		return v.SessionID
	case models.SessionEndEvent:
		return v.SessionID
	}
	return ""
}

// orchestratorFor returns the session's orchestrator, creating one on first
// contact. The orchestrator itself rejects out-of-order events, so creating
// one for a non-start event is harmless: everything before session-start is
// a no-op inside it.
func (s *Service) orchestratorFor(sessionID string) *orchestrator.Orchestrator {
	s.omu.Lock()
	defer s.omu.Unlock()
	if o, ok := s.orchestrators[sessionID]; ok {
		return o
	}
	s.mu.RLock()
	cfg := s.cfg
	client := s.client
	s.mu.RUnlock()
	o := orchestrator.New(client, s.history, cfg)
	s.orchestrators[sessionID] = o
	return o
}

func (s *Service) removeOrchestrator(sessionID string) {
	s.omu.Lock()
	defer s.omu.Unlock()
	delete(s.orchestrators, sessionID)
}

func (s *Service) activeSessionCount() int {
	s.omu.Lock()
	defer s.omu.Unlock()
	n := 0
	for _, o := range s.orchestrators {
		if o.Active() {
			n++
		}
	}
	return n
}

func (s *Service) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ready"
	if !s.ready.Load() {
		status = "starting"
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": status, "version": s.version})
}

func (s *Service) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	client := s.client
	s.mu.RUnlock()
	attempts, failures := client.Stats()
	writeJSON(w, http.StatusOK, map[string]any{
		"version":        s.version,
		"uptimeSeconds":  int64(time.Since(s.startTime).Seconds()),
		"activeSessions": s.activeSessionCount(),
		"syncAttempts":   attempts,
		"syncFailures":   failures,
	})
}

func (s *Service) handleTestConnection(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	client := s.client
	s.mu.RUnlock()
	writeJSON(w, http.StatusOK, client.TestConnection(r.Context()))
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
