// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
)

func TestHTTPError_IsUnauthorized(t *testing.T) {
	for _, code := range []int{http.StatusUnauthorized, http.StatusForbidden} {
		err := FromStatus(code, "nope")
		if !errors.Is(err, ErrUnauthorized) {
			t.Errorf("status %d should match ErrUnauthorized", code)
		}
	}

	if errors.Is(FromStatus(500, ""), ErrUnauthorized) {
		t.Error("status 500 should not match ErrUnauthorized")
	}
}

func TestHTTPError_SpecialCases(t *testing.T) {
	if !errors.Is(FromStatus(429, ""), ErrTooManyRequests) {
		t.Error("status 429 should match ErrTooManyRequests")
	}
	if !errors.Is(FromStatus(422, ""), ErrValidation) {
		t.Error("status 422 should match ErrValidation")
	}
}

func TestFromStatus_Success(t *testing.T) {
	if err := FromStatus(200, ""); err != nil {
		t.Errorf("2xx should map to nil, got %v", err)
	}
	if err := FromStatus(204, ""); err != nil {
		t.Errorf("2xx should map to nil, got %v", err)
	}
}

func TestClassify_Kinds(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind Kind
		code string
	}{
		{"network", Network(errors.New("dial tcp: refused")), KindNetwork, "E-APP-001"},
		{"auth", FromStatus(401, "expired"), KindAuth, "E-APP-002"},
		{"api", FromStatus(500, "boom"), KindAPI, "E-APP-003"},
		{"database", Database("insert", errors.New("locked")), KindDatabase, "E-APP-004"},
		{"validation", fmt.Errorf("question is empty: %w", ErrValidation), KindAPI, "E-APP-003"},
		{"unknown", errors.New("huh"), KindUnknown, "E-APP-005"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := Classify(tt.err)
			if app.Kind != tt.kind {
				t.Errorf("Kind = %q, want %q", app.Kind, tt.kind)
			}
			if app.DebugCode != tt.code {
				t.Errorf("DebugCode = %q, want %q", app.DebugCode, tt.code)
			}
		})
	}
}

func TestClassify_APIStatusCode(t *testing.T) {
	app := Classify(FromStatus(503, "unavailable"))
	if app.StatusCode != 503 {
		t.Errorf("StatusCode = %d, want 503", app.StatusCode)
	}
}

func TestClassify_Passthrough(t *testing.T) {
	orig := Classify(Network(errors.New("down")))
	again := Classify(orig)
	if again != orig {
		t.Error("classifying an AppError should return it unchanged")
	}
}

func TestClassify_Nil(t *testing.T) {
	if Classify(nil) != nil {
		t.Error("Classify(nil) should be nil")
	}
}

func TestDisplay_Format(t *testing.T) {
	app := Classify(Network(errors.New("down")))
	display := app.Display()

	if !strings.Contains(display, "(E-APP-001)") {
		t.Errorf("display should contain the debug code, got %q", display)
	}
	if !strings.HasPrefix(display, app.Message+" (") {
		t.Errorf("display should start with the message, got %q", display)
	}
	if !strings.HasSuffix(display, supportSuffix) {
		t.Errorf("display should end with the support suffix, got %q", display)
	}
}

func TestNetwork_PreservesMessage(t *testing.T) {
	inner := errors.New("connection reset by peer")
	err := Network(inner)
	if !strings.Contains(err.Error(), inner.Error()) {
		t.Errorf("wrapped message lost: %q", err.Error())
	}
	if !errors.Is(err, inner) {
		t.Error("Unwrap chain should reach the inner error")
	}
}
