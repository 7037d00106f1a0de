// Package config loads warden configuration.
//
// config.go - configuration model
//
// This file contains:
// - Engine, the per-engine block under agent.cli.<engine>
// - Config, the full loaded configuration
// - Environment-variable fallbacks for model and extra args
//
// Absence of the config file is not an error; defaults apply.

package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Engine holds the per-engine configuration block.
type Engine struct {
	// ExtraArgs is appended to the engine command line. Accepts a JSON
	// list or a whitespace-separated string.
	ExtraArgs ArgList `json:"extra_args,omitempty"`

	// Model passed to the engine (dropped when empty).
	Model string `json:"model,omitempty"`

	// Provider selects the backing provider (pi).
	Provider string `json:"provider,omitempty"`

	// AutoApprove enables the engine's autonomous policy (codex).
	AutoApprove bool `json:"auto_approve,omitempty"`

	// AllowedTools restricts the tool set (claude).
	AllowedTools []string `json:"allowed_tools,omitempty"`

	// Environment scrubbing (claude).
	ScrubEnv         bool              `json:"scrub_env,omitempty"`
	EnvOverrides     map[string]string `json:"env_overrides,omitempty"`
	EnvAllowlist     []string          `json:"env_allowlist,omitempty"`
	EnvAllowPrefixes []string          `json:"env_allow_prefixes,omitempty"`

	// Permission bypass flags (claude). Yolo is the legacy alias.
	DangerouslySkipPermissions bool `json:"dangerously_skip_permissions,omitempty"`
	Yolo                       bool `json:"yolo,omitempty"`

	// SessionsFile maps working directories to session ids for engines
	// that never put the id on the stream (kimi).
	SessionsFile string `json:"sessions_file,omitempty"`

	// SessionBase is the directory under which new session paths are
	// created (pi).
	SessionBase string `json:"session_base,omitempty"`
}

// SkipPermissions reports whether either permission-bypass flag is set.
func (e Engine) SkipPermissions() bool {
	return e.DangerouslySkipPermissions || e.Yolo
}

// ArgList accepts either a JSON array of strings or a single
// whitespace-separated string.
type ArgList []string

func (a *ArgList) UnmarshalJSON(data []byte) error {
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*a = list
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*a = strings.Fields(s)
		return nil
	}
	return fmt.Errorf("extra_args: expected list or string, got %s", string(data))
}

// AgentConfig nests the per-engine CLI blocks the way they appear in
// the config file: agent.cli.<engine>.
type AgentConfig struct {
	CLI map[string]Engine `json:"cli,omitempty"`
}

// ServerConfig holds MCP server settings.
type ServerConfig struct {
	Address string `json:"address,omitempty"`
	DataDir string `json:"data_dir,omitempty"`
}

// Config is the full loaded configuration.
type Config struct {
	Server ServerConfig `json:"server,omitempty"`
	Agent  AgentConfig  `json:"agent,omitempty"`

	// ConfigDir is where the file was found; empty when defaults apply.
	ConfigDir string `json:"-"`
}

// EngineBlock returns the block for the named engine, applying
// environment-variable fallbacks (WARDEN_<ENGINE>_MODEL and
// WARDEN_<ENGINE>_EXTRA_ARGS). Unknown engines get a zero block, so a
// nil or empty Config is always usable.
func (c *Config) EngineBlock(engine string) Engine {
	var block Engine
	if c != nil && c.Agent.CLI != nil {
		block = c.Agent.CLI[engine]
	}
	upper := strings.ToUpper(engine)
	if block.Model == "" {
		block.Model = os.Getenv("WARDEN_" + upper + "_MODEL")
	}
	if len(block.ExtraArgs) == 0 {
		if extra := os.Getenv("WARDEN_" + upper + "_EXTRA_ARGS"); extra != "" {
			block.ExtraArgs = strings.Fields(extra)
		}
	}
	return block
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Address: "127.0.0.1:8321",
			DataDir: "data",
		},
		Agent: AgentConfig{CLI: map[string]Engine{}},
	}
}
