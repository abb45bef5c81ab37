// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides small shared helpers.
package util

import "strings"

// TruncateRunes truncates s to at most maxLen runes, appending "..." when
// truncation occurs. The returned string is maxLen+3 runes long in that
// case. Rune-based so multi-byte text is never split mid-character.
func TruncateRunes(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "..."
}

// CollapseWhitespace trims s and flattens every run of whitespace,
// newlines included, into a single space. For single-line titles and
// previews.
func CollapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
