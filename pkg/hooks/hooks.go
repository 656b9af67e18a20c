// Package hooks provides hook utilities for beacon. Hook binaries are
// short-lived: they read one JSON event from stdin, forward it to the relay,
// and answer the host with a continue response. A hook must never block or
// fail the host's own flow.
package hooks

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"time"

	"github.com/goccy/go-json"

	"github.com/thebtf/beacon/internal/config"
)

// EnvInternal marks tooling-injected invocations. Hooks skip these so that
// system-generated activity never loops back into the sync stream.
const EnvInternal = "BEACON_INTERNAL"

// EnvRelayPort overrides the relay port for hook binaries.
const EnvRelayPort = "BEACON_RELAY_PORT"

// relayBinary is the daemon executable spawned on demand.
const relayBinary = "beacon-relay"

// HookResponse is the response sent back to the host.
type HookResponse struct {
	Continue bool `json:"continue"`
}

// BaseInput contains the fields shared by all hook inputs.
type BaseInput struct {
	SessionID      string `json:"session_id"`
	CWD            string `json:"cwd"`
	TranscriptPath string `json:"transcript_path"`
	HookEventName  string `json:"hook_event_name"`
}

// HookContext provides common context for hook handlers.
type HookContext struct {
	HookName       string
	Port           int
	SessionID      string
	CWD            string
	TranscriptPath string
	RawInput       []byte
}

// GetRelayPort returns the relay port, honoring the env override.
func GetRelayPort() int {
	if v := os.Getenv(EnvRelayPort); v != "" {
		if port, err := strconv.Atoi(v); err == nil && port > 0 {
			return port
		}
	}
	return config.DefaultRelayPort
}

// IsRelayRunning probes the relay's health endpoint.
func IsRelayRunning(port int) bool {
	client := &http.Client{Timeout: 500 * time.Millisecond}
	resp, err := client.Get(fmt.Sprintf("http://127.0.0.1:%d/api/health", port))
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// EnsureRelayRunning returns the relay port, starting the daemon first if
// nothing answers. The daemon is looked up next to the current executable,
// then on PATH.
func EnsureRelayRunning() (int, error) {
	port := GetRelayPort()
	if IsRelayRunning(port) {
		return port, nil
	}

	path, err := relayBinaryPath()
	if err != nil {
		return 0, err
	}

	cmd := exec.Command(path)
	cmd.Stdout = nil
	cmd.Stderr = nil
	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("start relay: %w", err)
	}
	// The hook exits before the daemon does; don't leave a zombie behind.
	go func() { _ = cmd.Wait() }()

	for i := 0; i < 30; i++ {
		if IsRelayRunning(port) {
			return port, nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	return 0, fmt.Errorf("relay did not become ready on port %d", port)
}

func relayBinaryPath() (string, error) {
	if self, err := os.Executable(); err == nil {
		candidate := filepath.Join(filepath.Dir(self), relayBinary)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	if path, err := exec.LookPath(relayBinary); err == nil {
		return path, nil
	}
	return "", fmt.Errorf("%s binary not found", relayBinary)
}

// PostEvent forwards one lifecycle event to the relay.
func PostEvent(port int, eventType string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	client := &http.Client{Timeout: 10 * time.Second}
	url := fmt.Sprintf("http://127.0.0.1:%d/api/event/%s", port, eventType)
	resp, err := client.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("relay rejected %s: %d: %s", eventType, resp.StatusCode, respBody)
	}
	return nil
}

// WriteResponse writes a hook response to stdout.
func WriteResponse(hookName string, success bool) {
	response := HookResponse{Continue: success}
	data, _ := json.Marshal(response)
	fmt.Println(string(data))
}

// WriteError writes an error message to stderr and a continue response to
// stdout. Sync problems must never stop the host.
func WriteError(hookName string, err error) {
	fmt.Fprintf(os.Stderr, "[%s] Error: %v\n", hookName, err)
	WriteResponse(hookName, true)
}

// HookHandler is the hook-specific logic run by RunHook.
type HookHandler[T any] func(ctx *HookContext, input *T) error

// RunHook executes a hook with common boilerplate handling: internal-call
// skip, stdin reading, JSON unmarshaling and relay startup.
func RunHook[T any](hookName string, handler HookHandler[T]) {
	if os.Getenv(EnvInternal) == "1" {
		WriteResponse(hookName, true)
		return
	}

	inputData, err := io.ReadAll(os.Stdin)
	if err != nil {
		WriteError(hookName, err)
		return
	}

	var input T
	if err := json.Unmarshal(inputData, &input); err != nil {
		WriteError(hookName, err)
		return
	}

	port, err := EnsureRelayRunning()
	if err != nil {
		WriteError(hookName, err)
		return
	}

	var base BaseInput
	_ = json.Unmarshal(inputData, &base)

	ctx := &HookContext{
		HookName:       hookName,
		Port:           port,
		SessionID:      base.SessionID,
		CWD:            base.CWD,
		TranscriptPath: base.TranscriptPath,
		RawInput:       inputData,
	}

	if err := handler(ctx, &input); err != nil {
		WriteError(hookName, err)
		return
	}
	WriteResponse(hookName, true)
}
