package ui

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
)

// ErrorLevel represents the severity of a message
type ErrorLevel int

const (
	ErrorLevelError ErrorLevel = iota
	ErrorLevelWarning
	ErrorLevelInfo
)

// ErrorOptions configures the error message formatting
type ErrorOptions struct {
	Level        ErrorLevel
	Context      string
	Problem      string
	Details      []string
	Suggestions  []string
	HelpCommands []string
	NoColor      bool
}

// FormatError creates a standardized error message with details, suggestions
// and help commands.
//
// Example output:
//
//	❌ ENTITY NOT FOUND: Cannot find entity 'prodcut'.
//
//	   Did you mean: product?
//
//	   → See all entities: rowmodel check
func FormatError(opts ErrorOptions) string {
	var b strings.Builder

	var symbol string
	var hue color.Attribute
	switch opts.Level {
	case ErrorLevelWarning:
		symbol, hue = "⚠️", color.FgYellow
	case ErrorLevelInfo:
		symbol, hue = "ℹ️", color.FgCyan
	default:
		symbol, hue = "❌", color.FgRed
	}
	header := paint(opts.NoColor, hue, color.Bold)
	body := paint(opts.NoColor, hue)

	if opts.Context != "" {
		header.Fprintf(&b, "%s %s: %s\n", symbol, strings.ToUpper(opts.Context), opts.Problem)
	} else {
		header.Fprintf(&b, "%s %s\n", symbol, opts.Problem)
	}

	if len(opts.Details) > 0 {
		b.WriteString("\n")
		for _, detail := range opts.Details {
			body.Fprintf(&b, "   %s\n", detail)
		}
	}

	if len(opts.Suggestions) > 0 {
		b.WriteString("\n")
		paint(opts.NoColor, color.FgYellow).Fprintf(&b, "   Did you mean: %s?\n", strings.Join(opts.Suggestions, ", "))
	}

	if len(opts.HelpCommands) > 0 {
		b.WriteString("\n")
		cyan := paint(opts.NoColor, color.FgCyan)
		for _, cmd := range opts.HelpCommands {
			cyan.Fprintf(&b, "   → %s\n", cmd)
		}
	}

	return b.String()
}

// WriteError writes a formatted error message to the writer
func WriteError(w io.Writer, opts ErrorOptions) {
	fmt.Fprint(w, FormatError(opts))
}

// FormatSuccess creates a success message
func FormatSuccess(message string, noColor bool) string {
	return paint(noColor, color.FgGreen, color.Bold).Sprintf("✓ %s", message)
}

// WriteSuccess writes a success message to the writer
func WriteSuccess(w io.Writer, message string, noColor bool) {
	fmt.Fprintln(w, FormatSuccess(message, noColor))
}

// EntityNotFoundError reports an unknown entity name with the closest
// registered names
func EntityNotFoundError(name string, known []string, noColor bool) string {
	return FormatError(ErrorOptions{
		Context:     "entity not found",
		Problem:     fmt.Sprintf("Cannot find entity '%s'.", name),
		Suggestions: FindSimilar(name, known, nil),
		HelpCommands: []string{
			"See all entities: rowmodel check",
		},
		NoColor: noColor,
	})
}

// ValidationFailedError lists the violations of one entity instance, one
// "path: message" line each
func ValidationFailedError(entity string, violations []string, noColor bool) string {
	return FormatError(ErrorOptions{
		Context: "validation failed",
		Problem: fmt.Sprintf("The %s record does not match its schema.", entity),
		Details: violations,
		HelpCommands: []string{
			"Load partial data: --ignore-required",
		},
		NoColor: noColor,
	})
}

// ConfigError creates a standardized configuration error
func ConfigError(message string, noColor bool) string {
	return FormatError(ErrorOptions{
		Context: "configuration error",
		Problem: message,
		HelpCommands: []string{
			"View config: cat rowmodel.yaml",
			"Get help: rowmodel --help",
		},
		NoColor: noColor,
	})
}

// Warning creates a standardized warning message
func Warning(message string, noColor bool) string {
	return FormatError(ErrorOptions{
		Level:   ErrorLevelWarning,
		Problem: message,
		NoColor: noColor,
	})
}
