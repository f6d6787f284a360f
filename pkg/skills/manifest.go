// Copyright 2026 © The Heuris Authors
// SPDX-License-Identifier: Apache-2.0

package skills

import (
	"fmt"
	"sort"

	"github.com/jllopis/heuris/pkg/llm"
)

// ParamSpec declares a single tool parameter.
type ParamSpec struct {
	Name        string
	Type        string // string, integer, number, boolean, array, object
	Description string
	Required    bool
}

// ToolDecl declares a callable tool: its name, description, and parameters.
type ToolDecl struct {
	Name        string
	Description string
	Params      []ParamSpec
}

// scriptDecl is the modern manifest shape:
//
//	scripts:
//	  - name: search_web
//	    description: ...
//	    parameters:
//	      - {name: query, type: string, required: true}
type scriptDecl struct {
	Name        string      `yaml:"name"`
	Description string      `yaml:"description"`
	Parameters  []paramDecl `yaml:"parameters"`
}

type paramDecl struct {
	Name        string `yaml:"name"`
	Type        string `yaml:"type"`
	Description string `yaml:"description"`
	Required    bool   `yaml:"required"`
}

// paramAttrs is the legacy manifest shape's attribute map:
//
//	parameters:
//	  search_web:
//	    query: {type: string, description: ..., required: true}
type paramAttrs struct {
	Type        string `yaml:"type"`
	Description string `yaml:"description"`
	Required    bool   `yaml:"required"`
}

// toolDecls normalizes both manifest shapes into the single internal one.
// The legacy shape is converted at load time; nothing downstream ever sees
// it. Declaring both shapes for the same manifest is an error.
func (f frontmatter) toolDecls() ([]ToolDecl, error) {
	if len(f.Scripts) > 0 && len(f.Parameters) > 0 {
		return nil, fmt.Errorf("manifest declares both scripts and legacy parameters")
	}

	var out []ToolDecl
	for _, s := range f.Scripts {
		if s.Name == "" {
			return nil, fmt.Errorf("script entry missing name")
		}
		decl := ToolDecl{Name: s.Name, Description: s.Description}
		for _, p := range s.Parameters {
			if p.Name == "" {
				return nil, fmt.Errorf("script %q has a parameter without a name", s.Name)
			}
			decl.Params = append(decl.Params, ParamSpec{
				Name:        p.Name,
				Type:        normalizeType(p.Type),
				Description: p.Description,
				Required:    p.Required,
			})
		}
		out = append(out, decl)
	}

	// Legacy shape: map iteration order is random, sort for stability.
	legacyNames := make([]string, 0, len(f.Parameters))
	for name := range f.Parameters {
		legacyNames = append(legacyNames, name)
	}
	sort.Strings(legacyNames)
	for _, name := range legacyNames {
		attrs := f.Parameters[name]
		decl := ToolDecl{Name: name}
		paramNames := make([]string, 0, len(attrs))
		for p := range attrs {
			paramNames = append(paramNames, p)
		}
		sort.Strings(paramNames)
		for _, p := range paramNames {
			a := attrs[p]
			decl.Params = append(decl.Params, ParamSpec{
				Name:        p,
				Type:        normalizeType(a.Type),
				Description: a.Description,
				Required:    a.Required,
			})
		}
		out = append(out, decl)
	}

	return out, nil
}

func normalizeType(t string) string {
	switch t {
	case "integer", "number", "boolean", "array", "object", "string":
		return t
	case "int":
		return "integer"
	case "float", "double":
		return "number"
	case "bool":
		return "boolean"
	case "list":
		return "array"
	case "dict", "map":
		return "object"
	default:
		return "string"
	}
}

// ToolDefinition derives the OpenAI-style function schema for a declaration.
func (d ToolDecl) ToolDefinition() llm.Tool {
	properties := make(map[string]any, len(d.Params))
	var required []string
	for _, p := range d.Params {
		prop := map[string]any{"type": p.Type}
		if p.Description != "" {
			prop["description"] = p.Description
		}
		properties[p.Name] = prop
		if p.Required {
			required = append(required, p.Name)
		}
	}
	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return llm.Tool{
		Type: llm.ToolTypeFunction,
		Function: llm.FunctionDef{
			Name:        d.Name,
			Description: d.Description,
			Parameters:  schema,
		},
	}
}
