// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/jeranaias/ilmchat/internal/model"
)

// Citation line shapes the backend is known to emit.
var (
	// **book_name:** Sahih Bukhari, **source_url:** https://host/book/56
	boldPairPattern = regexp.MustCompile(
		`(?i)\*\*\s*book[_ ]?name\s*:?\s*\*\*\s*:?\s*(.+?)\s*,\s*\*\*\s*source[_ ]?url\s*:?\s*\*\*\s*:?\s*(\S+)`)

	// [Sahih Bukhari 1:2](https://host/book/56)
	markdownLinkPattern = regexp.MustCompile(`\[([^\]]+)\]\(([^)\s]+)\)`)
)

// ParseAnswer splits a complete assistant answer into display content and
// structured citations.
//
// The first line that reads as a "Sources" heading (case-insensitive,
// bilingual "... / Sources" forms included) starts the citation section;
// everything before it is the display content. Answers without such a
// heading are returned whole with no sources. Citation lines that fail to
// parse are skipped rather than failing the answer.
func ParseAnswer(answer string) (string, []model.Source) {
	lines := strings.Split(answer, "\n")

	headingIdx := -1
	for i, line := range lines {
		if isSourcesHeading(line) {
			headingIdx = i
			break
		}
	}
	if headingIdx < 0 {
		return strings.TrimSpace(answer), nil
	}

	display := strings.TrimSpace(strings.Join(lines[:headingIdx], "\n"))

	var sources []model.Source
	for _, line := range lines[headingIdx+1:] {
		if src, ok := parseSourceLine(line); ok {
			sources = append(sources, src)
		}
	}
	return display, sources
}

// isSourcesHeading reports whether a line introduces the citation section.
func isSourcesHeading(line string) bool {
	stripped := strings.TrimSpace(line)
	stripped = strings.Trim(stripped, "#*_ \t")
	stripped = strings.TrimSuffix(stripped, ":")
	stripped = strings.TrimSpace(strings.Trim(stripped, "*_"))

	lower := strings.ToLower(stripped)
	if lower == "sources" {
		return true
	}
	// Bilingual headings like "المصادر / Sources".
	if idx := strings.LastIndex(lower, "/"); idx >= 0 {
		return strings.TrimSpace(lower[idx+1:]) == "sources"
	}
	return false
}

// parseSourceLine extracts one citation from a line in either known shape.
func parseSourceLine(line string) (model.Source, bool) {
	line = strings.TrimSpace(line)
	// A single leading bullet only: bold markers like **book_name:** must
	// survive the strip.
	for _, marker := range []string{"- ", "* ", "• "} {
		if strings.HasPrefix(line, marker) {
			line = strings.TrimSpace(line[len(marker):])
			break
		}
	}
	line = trimOrdinalPrefix(line)
	if line == "" {
		return model.Source{}, false
	}

	if m := boldPairPattern.FindStringSubmatch(line); m != nil {
		return newSource(m[1], m[2])
	}
	if m := markdownLinkPattern.FindStringSubmatch(line); m != nil {
		return newSource(m[1], m[2])
	}
	return model.Source{}, false
}

// trimOrdinalPrefix drops leading "1." / "2)" list numbering.
func trimOrdinalPrefix(line string) string {
	i := 0
	for i < len(line) && line[i] >= '0' && line[i] <= '9' {
		i++
	}
	if i > 0 && i < len(line) && (line[i] == '.' || line[i] == ')') {
		return strings.TrimSpace(line[i+1:])
	}
	return line
}

// newSource builds a Source, rejecting entries with a blank name or URL.
func newSource(name, rawURL string) (model.Source, bool) {
	name = strings.TrimSpace(name)
	cleanURL := strings.TrimRight(strings.TrimSpace(rawURL), ".,;:)]")
	if name == "" || cleanURL == "" {
		return model.Source{}, false
	}
	return model.Source{
		BookName:   name,
		SourceURL:  cleanURL,
		PageNumber: pageFromURL(cleanURL),
	}, true
}

// pageFromURL reads the trailing path segment as a page number when it is
// a plain integer.
func pageFromURL(rawURL string) *int {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil
	}
	path := strings.TrimRight(parsed.Path, "/")
	idx := strings.LastIndex(path, "/")
	if idx < 0 {
		return nil
	}
	page, err := strconv.Atoi(path[idx+1:])
	if err != nil {
		return nil
	}
	return &page
}
