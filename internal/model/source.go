// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
package model

import "strconv"

// =============================================================================
// SOURCE TYPE
// =============================================================================

// Source is a citation extracted from the trailing "Sources" section of an
// assistant answer. Pure value type with no independent identity.
type Source struct {
	BookName  string `json:"book_name"`
	SourceURL string `json:"source_url"`

	// PageNumber is derived from the trailing path segment of SourceURL
	// when it parses as an integer. Nil when absent.
	PageNumber *int `json:"page_number,omitempty"`
}

// Citation returns the display form: "<bookName>, p. <pageNumber>" when a
// page number exists, otherwise just the book name.
func (s Source) Citation() string {
	if s.PageNumber != nil {
		return s.BookName + ", p. " + strconv.Itoa(*s.PageNumber)
	}
	return s.BookName
}
