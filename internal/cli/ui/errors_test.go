package ui

import (
	"bytes"
	"strings"
	"testing"
)

func TestFormatError(t *testing.T) {
	got := FormatError(ErrorOptions{
		Context:      "load failed",
		Problem:      "Cannot read entities.yaml.",
		Details:      []string{"open entities.yaml: no such file"},
		Suggestions:  []string{"entity.yaml"},
		HelpCommands: []string{"Get help: rowmodel --help"},
		NoColor:      true,
	})

	want := strings.Join([]string{
		"❌ LOAD FAILED: Cannot read entities.yaml.",
		"",
		"   open entities.yaml: no such file",
		"",
		"   Did you mean: entity.yaml?",
		"",
		"   → Get help: rowmodel --help",
		"",
	}, "\n")
	if got != want {
		t.Errorf("FormatError() =\n%s\nwant\n%s", got, want)
	}
}

func TestFormatError_Levels(t *testing.T) {
	tests := []struct {
		level  ErrorLevel
		symbol string
	}{
		{ErrorLevelError, "❌"},
		{ErrorLevelWarning, "⚠️"},
		{ErrorLevelInfo, "ℹ️"},
	}

	for _, tt := range tests {
		got := FormatError(ErrorOptions{Level: tt.level, Problem: "message", NoColor: true})
		if got != tt.symbol+" message\n" {
			t.Errorf("level %d: got %q", tt.level, got)
		}
	}
}

func TestEntityNotFoundError(t *testing.T) {
	got := EntityNotFoundError("prodcut", []string{"inventory", "product"}, true)

	if !strings.Contains(got, "ENTITY NOT FOUND: Cannot find entity 'prodcut'.") {
		t.Errorf("missing header, got:\n%s", got)
	}
	if !strings.Contains(got, "Did you mean: product?") {
		t.Errorf("missing suggestion, got:\n%s", got)
	}
}

func TestValidationFailedError(t *testing.T) {
	got := ValidationFailedError("inventory", []string{"costPrice: is required", "origin: must be string"}, true)

	for _, want := range []string{
		"VALIDATION FAILED: The inventory record does not match its schema.",
		"   costPrice: is required\n",
		"   origin: must be string\n",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("missing %q in:\n%s", want, got)
		}
	}
}

func TestWriteSuccess(t *testing.T) {
	var buf bytes.Buffer
	WriteSuccess(&buf, "Deleted inventory 7", true)

	if got := buf.String(); got != "✓ Deleted inventory 7\n" {
		t.Errorf("WriteSuccess() = %q", got)
	}
}

func TestConfigErrorAndWarning(t *testing.T) {
	if got := ConfigError("database.url is empty", true); !strings.Contains(got, "CONFIGURATION ERROR: database.url is empty") {
		t.Errorf("ConfigError() = %q", got)
	}
	if got := Warning("cache disabled", true); got != "⚠️ cache disabled\n" {
		t.Errorf("Warning() = %q", got)
	}
}
