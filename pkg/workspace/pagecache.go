// Copyright 2026 © The Heuris Authors
// SPDX-License-Identifier: Apache-2.0

package workspace

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// PageRecord is one fetched web page, cached in the workspace so the
// finalization pipeline can verify citations without re-fetching.
type PageRecord struct {
	URL       string    `json:"url"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	FetchedAt time.Time `json:"fetched_at"`
}

// SavePage caches a fetched page as url_<name>.json under the workspace
// root. The filename derives from the URL; re-fetching the same URL
// overwrites the record.
func (w *Workspace) SavePage(rec PageRecord) error {
	if rec.URL == "" {
		return fmt.Errorf("page record has no url")
	}
	if rec.FetchedAt.IsZero() {
		rec.FetchedAt = time.Now()
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode page record: %w", err)
	}
	return os.WriteFile(w.Path(pageFileName(rec.URL)), data, 0o644)
}

// LookupPage returns the cached record for a URL, or nil when the page
// was never fetched during the run. Corrupt cache files are skipped.
func (w *Workspace) LookupPage(target string) (*PageRecord, error) {
	matches, err := filepath.Glob(w.Path("url_*.json"))
	if err != nil {
		return nil, err
	}
	for _, path := range matches {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var rec PageRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			continue
		}
		if rec.URL == target {
			return &rec, nil
		}
	}
	return nil, nil
}

func pageFileName(raw string) string {
	name := "content"
	if parsed, err := url.Parse(raw); err == nil {
		host := strings.TrimPrefix(parsed.Host, "www.")
		path := strings.ReplaceAll(strings.Trim(parsed.Path, "/"), "/", "_")
		switch {
		case host != "" && path != "":
			name = host + "_" + path
		case host != "":
			name = host
		case path != "":
			name = path
		}
	}
	name = sanitizeName(name)
	if name == "" {
		name = "content"
	}
	if len(name) > 120 {
		name = name[:120]
	}
	return "url_" + name + ".json"
}
