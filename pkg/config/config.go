// Copyright 2026 © The Heuris Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads the Heuris configuration from YAML and environment.
// The configuration is read once at startup; there is no hot reload.
package config

import (
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Log       LogConfig       `koanf:"log"`
	LLM       LLMConfig       `koanf:"llm"`
	Agent     AgentConfig     `koanf:"agent"`
	Workspace WorkspaceConfig `koanf:"workspace"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
	Session   SessionConfig   `koanf:"session"`
	EventLog  EventLogConfig  `koanf:"eventlog"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"` // json, text
}

type LLMConfig struct {
	Provider    string  `koanf:"provider"` // openai (OpenAI-compatible endpoints)
	Model       string  `koanf:"model"`
	BaseURL     string  `koanf:"base_url"`
	APIKeyEnv   string  `koanf:"api_key_env"`
	Temperature float64 `koanf:"temperature"`
	System      string  `koanf:"system"` // system message override
}

type AgentConfig struct {
	SkillsDir        string        `koanf:"skills_dir"`
	EnabledSkills    []string      `koanf:"enabled_skills"` // empty = all
	PlanningSkill    string        `koanf:"planning_skill"`
	AnswerSkill      string        `koanf:"answer_skill"`
	VerifySkill      string        `koanf:"verify_skill"`
	MaxIterations    int           `koanf:"max_iterations"`
	RateLimitRetries int           `koanf:"rate_limit_retries"`
	RateLimitBackoff time.Duration `koanf:"rate_limit_backoff"`
	ToolTimeout      time.Duration `koanf:"tool_timeout"`
}

type WorkspaceConfig struct {
	Dir      string   `koanf:"dir"`
	Preserve []string `koanf:"preserve"` // sub-paths kept across run resets
}

type TelemetryConfig struct {
	Exporter     string `koanf:"exporter"` // stdout, otlp, none
	OTLPEndpoint string `koanf:"otlp_endpoint"`
	OTLPInsecure bool   `koanf:"otlp_insecure"`
}

type SessionConfig struct {
	IdleTimeout  time.Duration `koanf:"idle_timeout"`
	ReapInterval time.Duration `koanf:"reap_interval"`
}

type EventLogConfig struct {
	Path       string `koanf:"path"`        // JSONL file, empty disables
	SQLitePath string `koanf:"sqlite_path"` // sqlite audit store, empty disables
}

func Load(path string) (*Config, error) {
	k := koanf.New(".")

	// Defaults
	k.Set("log.level", "info")
	k.Set("log.format", "text")
	k.Set("llm.provider", "openai")
	k.Set("llm.model", "gpt-5-mini")
	k.Set("llm.base_url", "")
	k.Set("llm.api_key_env", "OPENAI_API_KEY")
	k.Set("llm.temperature", 0.0)

	k.Set("agent.skills_dir", "skills")
	k.Set("agent.planning_skill", "planning")
	k.Set("agent.answer_skill", "answer")
	k.Set("agent.verify_skill", "verify")
	k.Set("agent.max_iterations", 20)
	k.Set("agent.rate_limit_retries", 3)
	k.Set("agent.rate_limit_backoff", "5s")
	k.Set("agent.tool_timeout", "30s")

	k.Set("workspace.dir", "scratch")
	k.Set("telemetry.exporter", "none")
	k.Set("session.idle_timeout", "30m")
	k.Set("session.reap_interval", "1m")

	// 1. Load from file. A missing file is fine: defaults and env apply.
	if path != "" {
		if _, statErr := os.Stat(path); statErr == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, err
			}
		}
	}

	// 2. Load from ENV (HEURIS_LLM_MODEL -> llm.model)
	if err := k.Load(env.Provider("HEURIS_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(
			strings.TrimPrefix(s, "HEURIS_")), "_", ".", -1)
	}), nil); err != nil {
		return nil, err
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
