// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package util

import (
	"strings"
	"testing"
)

func TestTruncateRunes(t *testing.T) {
	if got := TruncateRunes("short", 50); got != "short" {
		t.Errorf("short string should be untouched, got %q", got)
	}

	long := strings.Repeat("A", 100)
	got := TruncateRunes(long, 50)
	if len([]rune(got)) != 53 {
		t.Errorf("truncated length = %d runes, want 53", len([]rune(got)))
	}
	if !strings.HasSuffix(got, "...") {
		t.Errorf("truncated string should end with ellipsis, got %q", got)
	}
}

func TestTruncateRunes_Unicode(t *testing.T) {
	long := strings.Repeat("م", 60)
	got := TruncateRunes(long, 50)
	if len([]rune(got)) != 53 {
		t.Errorf("truncated length = %d runes, want 53", len([]rune(got)))
	}
}

func TestCollapseWhitespace(t *testing.T) {
	got := CollapseWhitespace("  line one\r\nline two\n")
	if got != "line one line two" {
		t.Errorf("CollapseWhitespace = %q", got)
	}
	if got := CollapseWhitespace("a   b\t\tc"); got != "a b c" {
		t.Errorf("runs of whitespace should collapse, got %q", got)
	}
}
