// Copyright 2026 © The Heuris Authors
// SPDX-License-Identifier: Apache-2.0

// Package skills implements the skill registry: discovery of SKILL.md
// documents, progressive disclosure of instructions, tool schema
// resolution, and tool invocation with cross-skill fallback.
package skills

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"

	"gopkg.in/yaml.v3"
)

// Spec describes a skill as loaded from its SKILL.md document.
// Instructions (the body) are not retained at discovery time; they are
// read on first activation.
type Spec struct {
	Name           string
	Description    string
	TimeoutSeconds int
	Tools          []ToolDecl
	MCP            *MCPSpec
	Path           string
	Dir            string
}

// MCPSpec declares an MCP server backing part of a skill's tool set.
type MCPSpec struct {
	Transport string   `yaml:"transport"` // stdio, http
	Command   string   `yaml:"command"`
	Args      []string `yaml:"args"`
	URL       string   `yaml:"url"`
}

const (
	maxNameLen        = 64
	maxDescriptionLen = 1024
)

var namePattern = regexp.MustCompile(`^[a-z0-9]+(?:[-_][a-z0-9]+)*$`)

// LoadDir scans a directory for skill subdirectories with SKILL.md.
// A skill that fails to parse is skipped and reported in the returned
// error map; other skills still load.
func LoadDir(root string) ([]Spec, map[string]error, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, nil, err
	}
	var out []Spec
	failed := make(map[string]error)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		skillPath := filepath.Join(root, entry.Name(), "SKILL.md")
		if _, err := os.Stat(skillPath); err != nil {
			continue
		}
		skill, err := LoadFile(skillPath)
		if err != nil {
			failed[entry.Name()] = err
			continue
		}
		out = append(out, skill)
	}
	return out, failed, nil
}

// LoadFile parses a single SKILL.md file, retaining frontmatter metadata
// only. Use Instructions to read the body.
func LoadFile(path string) (Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Spec{}, err
	}
	fm, _, err := splitFrontmatter(string(data))
	if err != nil {
		return Spec{}, err
	}
	var parsed frontmatter
	if err := yaml.Unmarshal([]byte(fm), &parsed); err != nil {
		return Spec{}, fmt.Errorf("parse frontmatter: %w", err)
	}
	tools, err := parsed.toolDecls()
	if err != nil {
		return Spec{}, err
	}
	dir := filepath.Dir(path)
	spec := Spec{
		Name:           parsed.Name,
		Description:    parsed.Description,
		TimeoutSeconds: parsed.TimeoutSeconds,
		Tools:          tools,
		MCP:            parsed.MCP,
		Path:           path,
		Dir:            dir,
	}
	if err := validate(spec); err != nil {
		return Spec{}, err
	}
	return spec, nil
}

// Instructions reads and returns the skill's body text. The registry
// memoizes the result; callers normally go through Registry.Activate.
func (s Spec) Instructions() (string, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return "", err
	}
	_, body, err := splitFrontmatter(string(data))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(body), nil
}

type frontmatter struct {
	Name           string    `yaml:"name"`
	Description    string    `yaml:"description"`
	TimeoutSeconds int       `yaml:"timeout_seconds"`
	Scripts        []scriptDecl `yaml:"scripts"`
	Parameters     map[string]map[string]paramAttrs `yaml:"parameters"`
	MCP            *MCPSpec  `yaml:"mcp"`
}

func splitFrontmatter(content string) (string, string, error) {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "---") {
		return "", "", errors.New("missing frontmatter")
	}
	parts := strings.SplitN(trimmed, "---", 3)
	if len(parts) < 3 {
		return "", "", errors.New("invalid frontmatter")
	}
	fm := strings.TrimSpace(parts[1])
	body := strings.TrimSpace(parts[2])
	return fm, body, nil
}

func validate(spec Spec) error {
	name := strings.TrimSpace(spec.Name)
	if name == "" {
		return errors.New("name is required")
	}
	if utf8.RuneCountInString(name) > maxNameLen {
		return fmt.Errorf("name exceeds %d characters", maxNameLen)
	}
	if !namePattern.MatchString(name) {
		return fmt.Errorf("name must match %s", namePattern.String())
	}
	dirName := filepath.Base(spec.Dir)
	if dirName != name {
		return fmt.Errorf("name must match directory name (%s)", dirName)
	}
	desc := strings.TrimSpace(spec.Description)
	if desc == "" {
		return errors.New("description is required")
	}
	if utf8.RuneCountInString(desc) > maxDescriptionLen {
		return fmt.Errorf("description exceeds %d characters", maxDescriptionLen)
	}
	if spec.MCP != nil {
		switch spec.MCP.Transport {
		case "stdio":
			if spec.MCP.Command == "" {
				return errors.New("mcp stdio transport requires command")
			}
		case "http":
			if spec.MCP.URL == "" {
				return errors.New("mcp http transport requires url")
			}
		default:
			return fmt.Errorf("unknown mcp transport %q", spec.MCP.Transport)
		}
	}
	return nil
}
