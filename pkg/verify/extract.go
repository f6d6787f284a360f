// Copyright 2026 © The Heuris Authors
// SPDX-License-Identifier: Apache-2.0

// Package verify implements the citation-checking finalization pipeline:
// URLs are extracted from a candidate answer together with the sentence
// citing them, matched against the workspace page cache, and judged by
// the model for whether the cached content supports the claim.
package verify

import (
	"regexp"
	"strings"
)

// Citation pairs a URL with the sentence that cites it.
type Citation struct {
	URL   string
	Claim string
}

var (
	sentenceSplit = regexp.MustCompile(`[.!?]\s+`)
	markdownLink  = regexp.MustCompile(`\[([^\]]+)\]\(([^)]+)\)`)
	bareURL       = regexp.MustCompile(`https?://[^\s\)>\]"]+`)
)

// ExtractCitations finds every URL in the text, markdown links first,
// then bare URLs, each paired with its surrounding sentence. Duplicate
// URLs keep their first claim; order is preserved.
func ExtractCitations(text string) []Citation {
	var all []Citation
	for _, sentence := range sentenceSplit.Split(text, -1) {
		claim := strings.TrimSpace(sentence)
		if claim == "" {
			continue
		}
		for _, m := range markdownLink.FindAllStringSubmatch(sentence, -1) {
			all = append(all, Citation{URL: m[2], Claim: claim})
		}
		for _, url := range bareURL.FindAllString(sentence, -1) {
			all = append(all, Citation{URL: url, Claim: claim})
		}
	}

	seen := make(map[string]bool, len(all))
	out := make([]Citation, 0, len(all))
	for _, c := range all {
		if seen[c.URL] {
			continue
		}
		seen[c.URL] = true
		out = append(out, c)
	}
	return out
}
