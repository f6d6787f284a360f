// Copyright 2026 © The Heuris Authors
// SPDX-License-Identifier: Apache-2.0

package skills

import (
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

func parseFrontmatter(t *testing.T, src string) frontmatter {
	t.Helper()
	var fm frontmatter
	if err := yaml.Unmarshal([]byte(src), &fm); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return fm
}

func TestToolDeclsModernShape(t *testing.T) {
	fm := parseFrontmatter(t, `
name: files
description: File tools.
scripts:
  - name: read_file
    description: Read a file.
    parameters:
      - name: path
        type: string
        required: true
  - name: list_dir
    description: List a directory.
`)
	decls, err := fm.toolDecls()
	if err != nil {
		t.Fatalf("toolDecls: %v", err)
	}
	if len(decls) != 2 {
		t.Fatalf("decls = %d, want 2", len(decls))
	}
	if decls[0].Name != "read_file" || decls[1].Name != "list_dir" {
		t.Errorf("declaration order not preserved: %q, %q", decls[0].Name, decls[1].Name)
	}
	if !decls[0].Params[0].Required {
		t.Error("path should be required")
	}
}

func TestToolDeclsLegacyShape(t *testing.T) {
	fm := parseFrontmatter(t, `
name: files
description: File tools.
parameters:
  write_file:
    path:
      type: string
      required: true
    content:
      type: string
      required: true
  delete_file:
    path:
      type: string
      required: true
`)
	decls, err := fm.toolDecls()
	if err != nil {
		t.Fatalf("toolDecls: %v", err)
	}
	if len(decls) != 2 {
		t.Fatalf("decls = %d, want 2", len(decls))
	}
	// Legacy map shape is sorted by name for stability.
	if decls[0].Name != "delete_file" || decls[1].Name != "write_file" {
		t.Errorf("order = %q, %q, want delete_file, write_file", decls[0].Name, decls[1].Name)
	}
	if decls[1].Params[0].Name != "content" || decls[1].Params[1].Name != "path" {
		t.Errorf("param order = %q, %q", decls[1].Params[0].Name, decls[1].Params[1].Name)
	}
}

func TestToolDeclsBothShapesRejected(t *testing.T) {
	fm := parseFrontmatter(t, `
name: files
description: File tools.
scripts:
  - name: read_file
parameters:
  write_file:
    path:
      type: string
`)
	if _, err := fm.toolDecls(); err == nil || !strings.Contains(err.Error(), "both") {
		t.Errorf("err = %v, want both-shapes error", err)
	}
}

func TestNormalizeType(t *testing.T) {
	cases := map[string]string{
		"string":  "string",
		"int":     "integer",
		"integer": "integer",
		"float":   "number",
		"bool":    "boolean",
		"list":    "array",
		"dict":    "object",
		"map":     "object",
		"":        "string",
		"weird":   "string",
	}
	for in, want := range cases {
		if got := normalizeType(in); got != want {
			t.Errorf("normalizeType(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestToolDefinition(t *testing.T) {
	decl := ToolDecl{
		Name:        "search_web",
		Description: "Search the web.",
		Params: []ParamSpec{
			{Name: "query", Type: "string", Description: "The query.", Required: true},
			{Name: "max_results", Type: "integer"},
		},
	}
	tool := decl.ToolDefinition()
	if tool.Function.Name != "search_web" {
		t.Errorf("name = %q", tool.Function.Name)
	}
	schema, ok := tool.Function.Parameters.(map[string]any)
	if !ok {
		t.Fatalf("parameters is not a schema map: %T", tool.Function.Parameters)
	}
	props, ok := schema["properties"].(map[string]any)
	if !ok {
		t.Fatalf("properties missing: %v", schema)
	}
	if len(props) != 2 {
		t.Errorf("properties = %d, want 2", len(props))
	}
	required, ok := schema["required"].([]string)
	if !ok || len(required) != 1 || required[0] != "query" {
		t.Errorf("required = %v, want [query]", required)
	}
}

func TestToolDefinitionNoParams(t *testing.T) {
	tool := ToolDecl{Name: "list_skills", Description: "List skills."}.ToolDefinition()
	schema, ok := tool.Function.Parameters.(map[string]any)
	if !ok {
		t.Fatalf("parameters is not a schema map: %T", tool.Function.Parameters)
	}
	if _, ok := schema["required"]; ok {
		t.Error("empty declaration should omit required")
	}
}
