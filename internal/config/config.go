// Package config provides configuration management for beacon.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultRelayPort is the localhost port the relay listens on.
	DefaultRelayPort = 38412

	// ProjectFile is the optional per-project override file, looked up in
	// the working directory.
	ProjectFile = "beacon.yaml"
)

// SyncConfig is the configuration surface consumed by the sync pipeline.
// The loader normalizes BaseURL before anything else sees it.
type SyncConfig struct {
	BaseURL       string `json:"BEACON_BASE_URL" yaml:"base_url"`
	APIKey        string `json:"BEACON_API_KEY" yaml:"api_key"`
	RelayPort     int    `json:"BEACON_RELAY_PORT" yaml:"relay_port"`
	AutoSync      bool   `json:"BEACON_AUTO_SYNC" yaml:"auto_sync"`
	SyncToolCalls bool   `json:"BEACON_SYNC_TOOL_CALLS" yaml:"sync_tool_calls"`
	SyncThinking  bool   `json:"BEACON_SYNC_THINKING" yaml:"sync_thinking"`
	DuplicateText bool   `json:"BEACON_DUPLICATE_TEXT" yaml:"duplicate_text"`
	Debug         bool   `json:"BEACON_DEBUG" yaml:"debug"`
}

// Default returns the default configuration.
func Default() SyncConfig {
	return SyncConfig{
		RelayPort:     DefaultRelayPort,
		AutoSync:      true,
		SyncToolCalls: true,
		SyncThinking:  false,
		DuplicateText: true,
		Debug:         false,
	}
}

// DataDir returns the beacon data directory (~/.beacon).
func DataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".beacon")
}

// SettingsPath returns the path of the settings file.
func SettingsPath() string {
	return filepath.Join(DataDir(), "settings.json")
}

// TracePath returns the path of the append-only sync debug trace.
func TracePath() string {
	return filepath.Join(DataDir(), "sync-trace.jsonl")
}

// EnsureDataDir creates the data directory if missing.
func EnsureDataDir() error {
	return os.MkdirAll(DataDir(), 0o755)
}

// EnsureSettings writes a default settings file if none exists.
func EnsureSettings() error {
	path := SettingsPath()
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	data, err := json.MarshalIndent(Default(), "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// EnsureAll creates the data directory and settings file.
func EnsureAll() error {
	if err := EnsureDataDir(); err != nil {
		return err
	}
	return EnsureSettings()
}

// Load builds the effective configuration: defaults, then the settings
// file, then a project-level beacon.yaml in the working directory, then
// environment variables. The base URL is normalized last.
func Load() (SyncConfig, error) {
	cfg := Default()

	if err := loadSettings(&cfg, SettingsPath()); err != nil {
		return cfg, err
	}
	if err := loadProjectFile(&cfg, ProjectFile); err != nil {
		return cfg, err
	}
	applyEnv(&cfg)

	cfg.BaseURL = NormalizeBaseURL(cfg.BaseURL)
	if cfg.RelayPort <= 0 || cfg.RelayPort > 65535 {
		cfg.RelayPort = DefaultRelayPort
	}
	return cfg, nil
}

// loadSettings merges the JSON settings file into cfg. A missing file is
// not an error.
func loadSettings(cfg *SyncConfig, path string) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read settings: %w", err)
	}
	// Decode into a raw map first so absent keys keep their defaults.
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parse settings: %w", err)
	}
	mergeRaw(cfg, raw)
	return nil
}

func mergeRaw(cfg *SyncConfig, raw map[string]json.RawMessage) {
	setString := func(key string, dst *string) {
		if v, ok := raw[key]; ok {
			var s string
			if json.Unmarshal(v, &s) == nil {
				*dst = s
			}
		}
	}
	setBool := func(key string, dst *bool) {
		if v, ok := raw[key]; ok {
			var b bool
			if json.Unmarshal(v, &b) == nil {
				*dst = b
			}
		}
	}
	setString("BEACON_BASE_URL", &cfg.BaseURL)
	setString("BEACON_API_KEY", &cfg.APIKey)
	if v, ok := raw["BEACON_RELAY_PORT"]; ok {
		var p int
		if json.Unmarshal(v, &p) == nil && p > 0 {
			cfg.RelayPort = p
		}
	}
	setBool("BEACON_AUTO_SYNC", &cfg.AutoSync)
	setBool("BEACON_SYNC_TOOL_CALLS", &cfg.SyncToolCalls)
	setBool("BEACON_SYNC_THINKING", &cfg.SyncThinking)
	setBool("BEACON_DUPLICATE_TEXT", &cfg.DuplicateText)
	setBool("BEACON_DEBUG", &cfg.Debug)
}

// projectOverride mirrors SyncConfig with pointer fields so that only keys
// present in beacon.yaml override the merged configuration.
type projectOverride struct {
	BaseURL       *string `yaml:"base_url"`
	APIKey        *string `yaml:"api_key"`
	RelayPort     *int    `yaml:"relay_port"`
	AutoSync      *bool   `yaml:"auto_sync"`
	SyncToolCalls *bool   `yaml:"sync_tool_calls"`
	SyncThinking  *bool   `yaml:"sync_thinking"`
	DuplicateText *bool   `yaml:"duplicate_text"`
	Debug         *bool   `yaml:"debug"`
}

func loadProjectFile(cfg *SyncConfig, path string) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	var o projectOverride
	if err := yaml.Unmarshal(data, &o); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	if o.BaseURL != nil {
		cfg.BaseURL = *o.BaseURL
	}
	if o.APIKey != nil {
		cfg.APIKey = *o.APIKey
	}
	if o.RelayPort != nil {
		cfg.RelayPort = *o.RelayPort
	}
	if o.AutoSync != nil {
		cfg.AutoSync = *o.AutoSync
	}
	if o.SyncToolCalls != nil {
		cfg.SyncToolCalls = *o.SyncToolCalls
	}
	if o.SyncThinking != nil {
		cfg.SyncThinking = *o.SyncThinking
	}
	if o.DuplicateText != nil {
		cfg.DuplicateText = *o.DuplicateText
	}
	if o.Debug != nil {
		cfg.Debug = *o.Debug
	}
	return nil
}

func applyEnv(cfg *SyncConfig) {
	if v := os.Getenv("BEACON_BASE_URL"); v != "" {
		cfg.BaseURL = v
	}
	if v := os.Getenv("BEACON_API_KEY"); v != "" {
		cfg.APIKey = v
	}
	if v := os.Getenv("BEACON_RELAY_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil && p > 0 {
			cfg.RelayPort = p
		}
	}
	applyEnvBool := func(key string, dst *bool) {
		if v := os.Getenv(key); v != "" {
			if b, err := strconv.ParseBool(v); err == nil {
				*dst = b
			}
		}
	}
	applyEnvBool("BEACON_AUTO_SYNC", &cfg.AutoSync)
	applyEnvBool("BEACON_SYNC_TOOL_CALLS", &cfg.SyncToolCalls)
	applyEnvBool("BEACON_SYNC_THINKING", &cfg.SyncThinking)
	applyEnvBool("BEACON_DUPLICATE_TEXT", &cfg.DuplicateText)
	applyEnvBool("BEACON_DEBUG", &cfg.Debug)
}

// NormalizeBaseURL rewrites a Convex deployment URL from the client domain
// to the HTTP-actions domain and strips any trailing slash. The dashboard's
// sync endpoints are served from the .convex.site domain only.
func NormalizeBaseURL(raw string) string {
	if raw == "" {
		return ""
	}
	normalized := strings.Replace(raw, ".convex.cloud", ".convex.site", 1)
	return strings.TrimRight(normalized, "/")
}
