// Copyright 2026 © The Heuris Authors
// SPDX-License-Identifier: Apache-2.0

package verify

import (
	"context"
	"fmt"
	"strings"

	"github.com/jllopis/heuris/pkg/llm"
	"github.com/jllopis/heuris/pkg/workspace"
)

// Detail is the verification record for one cited URL.
type Detail struct {
	Claim       string `json:"claim"`
	Cached      bool   `json:"cached"`
	Title       string `json:"title,omitempty"`
	Supports    bool   `json:"supports"`
	Explanation string `json:"explanation"`
	Confidence  string `json:"confidence"`
}

// Result is the outcome of verifying one candidate answer.
type Result struct {
	Status      string            `json:"status"` // no_links, all_verified, unsupported_citations
	TotalURLs   int               `json:"total_urls"`
	Supported   int               `json:"supported_urls"`
	Unsupported []string          `json:"unsupported_url_list,omitempty"`
	Details     map[string]Detail `json:"verification_details,omitempty"`
	Report      string            `json:"report,omitempty"`
	ShouldRetry bool              `json:"should_research_again"`
	FinalAnswer string            `json:"verified_response"`
}

// Pipeline verifies that every URL cited in an answer is backed by cached
// page content that supports the citing claim. It runs once per candidate
// answer; an answer with no URLs is a fixed point.
type Pipeline struct {
	provider llm.Provider
	ws       *workspace.Workspace
}

// NewPipeline builds a pipeline judging with provider against the
// workspace's page cache.
func NewPipeline(provider llm.Provider, ws *workspace.Workspace) *Pipeline {
	return &Pipeline{provider: provider, ws: ws}
}

// Verify checks every citation in answer. Uncached URLs are unverifiable
// and count as unsupported.
func (p *Pipeline) Verify(ctx context.Context, answer string) (*Result, error) {
	citations := ExtractCitations(answer)
	if len(citations) == 0 {
		return &Result{
			Status:      "no_links",
			FinalAnswer: answer,
		}, nil
	}

	details := make(map[string]Detail, len(citations))
	var unsupported []string
	for _, c := range citations {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rec, err := p.ws.LookupPage(c.URL)
		if err != nil {
			return nil, err
		}
		if rec == nil {
			details[c.URL] = Detail{
				Claim:       c.Claim,
				Cached:      false,
				Supports:    false,
				Explanation: "Content not cached - cannot verify",
				Confidence:  "N/A",
			}
			unsupported = append(unsupported, c.URL)
			continue
		}
		verdict := judge(ctx, p.provider, c, rec.Content)
		details[c.URL] = Detail{
			Claim:       c.Claim,
			Cached:      true,
			Title:       rec.Title,
			Supports:    verdict.Supports,
			Explanation: verdict.Explanation,
			Confidence:  verdict.Confidence,
		}
		if !verdict.Supports {
			unsupported = append(unsupported, c.URL)
		}
	}

	result := &Result{
		TotalURLs:   len(citations),
		Supported:   len(citations) - len(unsupported),
		Unsupported: unsupported,
		Details:     details,
		FinalAnswer: answer,
	}
	if len(unsupported) > 0 {
		result.Status = "unsupported_citations"
		result.ShouldRetry = true
		result.Report = failureReport(result)
	} else {
		result.Status = "all_verified"
		result.Report = successReport(result)
	}
	return result, nil
}

func failureReport(r *Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Citation Verification Results\n\n")
	fmt.Fprintf(&b, "**Total citations checked:** %d\n", r.TotalURLs)
	fmt.Fprintf(&b, "**Supported citations:** %d\n", r.Supported)
	fmt.Fprintf(&b, "**Unsupported/Unverifiable citations:** %d\n\n", len(r.Unsupported))
	b.WriteString("## Problematic Citations:\n\n")
	for _, url := range r.Unsupported {
		d := r.Details[url]
		fmt.Fprintf(&b, "### `%s`\n", url)
		fmt.Fprintf(&b, "**Claim:** %s\n\n", d.Claim)
		fmt.Fprintf(&b, "**Issue:** %s\n", d.Explanation)
		fmt.Fprintf(&b, "**Confidence:** %s\n\n", d.Confidence)
	}
	b.WriteString(`
## Recommendation

**The answer contains citations that do not support the claims.** You must either:
1. Remove the unsupported claims from your answer
2. Use the web skill to find better sources that actually support your claims
3. Revise the claims to match what the sources actually say

Do NOT submit an answer with unsupported or unverifiable citations.
`)
	return b.String()
}

func successReport(r *Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Citation Verification Results\n\n")
	fmt.Fprintf(&b, "**Total citations checked:** %d\n", r.TotalURLs)
	b.WriteString("**All citations are verified and support the claims!**\n\n")
	b.WriteString("The response is ready to submit.\n")
	return b.String()
}
