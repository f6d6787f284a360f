// Copyright 2026 © The Heuris Authors
// SPDX-License-Identifier: Apache-2.0

package verify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jllopis/heuris/pkg/llm"
)

const maxJudgedContent = 8000

// Verdict is the judge model's assessment of one citation.
type Verdict struct {
	Supports    bool   `json:"supports"`
	Explanation string `json:"explanation"`
	Confidence  string `json:"confidence"`
}

const judgePrompt = `You are evaluating whether a web source supports a claim made in an answer.

CLAIM MADE IN ANSWER:
%s

SOURCE URL:
%s

CONTENT FROM SOURCE:
%s

TASK: Does the content from this source actually support the claim made in the answer?

Respond with ONLY a JSON object in this exact format:
{
  "supports": true or false,
  "explanation": "Brief explanation of why the content does or does not support the claim",
  "confidence": "high" or "medium" or "low"
}`

// judge asks the model whether content supports the claim. Any model or
// parse failure yields an unsupported verdict rather than an error; a
// citation never passes on a broken judge.
func judge(ctx context.Context, provider llm.Provider, citation Citation, content string) Verdict {
	if content == "" {
		return Verdict{
			Supports:    false,
			Explanation: "No cached content available for this URL",
			Confidence:  "N/A",
		}
	}
	if len(content) > maxJudgedContent {
		content = content[:maxJudgedContent] + "\n\n[Content truncated...]"
	}

	resp, err := provider.Chat(ctx, llm.ChatRequest{
		Messages:    []llm.Message{llm.UserMessage(fmt.Sprintf(judgePrompt, citation.Claim, citation.URL, content))},
		Temperature: 0.1,
	})
	if err != nil {
		return Verdict{
			Supports:    false,
			Explanation: fmt.Sprintf("LLM verification error: %v", err),
			Confidence:  "N/A",
		}
	}

	verdict, ok := parseVerdict(resp.Content)
	if !ok {
		return Verdict{
			Supports:    false,
			Explanation: "Failed to parse LLM verification response",
			Confidence:  "N/A",
		}
	}
	return verdict
}

// parseVerdict extracts the JSON object from the judge's reply, which may
// be wrapped in prose or a code fence.
func parseVerdict(text string) (Verdict, bool) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return Verdict{}, false
	}
	var v Verdict
	if err := json.Unmarshal([]byte(text[start:end+1]), &v); err != nil {
		return Verdict{}, false
	}
	if v.Confidence == "" {
		v.Confidence = "N/A"
	}
	return v, true
}
