package redact

import (
	"fmt"
	"strings"

	"golang.org/x/mod/semver"

	"errship.dev/sdk/internal/types"
)

// ValidationResult is the outcome of spec.md §4.4's Validate stage.
// Warnings never cause rejection; Err, if non-nil, does.
type ValidationResult struct {
	Err      error
	Warnings []Warning
}

// Validate checks the required fields (message, project, sessionId and a
// non-zero timestamp) and then the serialized size, and surfaces any
// sensitive pattern matches found pre-redaction in the message and stack
// trace as warnings (never as rejections).
// It also canonicalizes an optional semver-shaped Version (CommitHash is
// not touched) using
// golang.org/x/mod/semver, the library apps/cli/internal/update/update.go
// already depends on for release comparison; a non-semver value is left
// untouched, since spec.md §3 leaves Version free-form.
func Validate(report *types.ErrorReport, serializedSize, maxPayloadSize int) ValidationResult {
	if strings.TrimSpace(report.Message) == "" {
		return ValidationResult{Err: fmt.Errorf("redact: message is required")}
	}
	if strings.TrimSpace(report.Project) == "" {
		return ValidationResult{Err: fmt.Errorf("redact: project is required")}
	}
	if strings.TrimSpace(report.SessionID) == "" {
		return ValidationResult{Err: fmt.Errorf("redact: sessionId is required")}
	}
	if report.Timestamp.IsZero() {
		return ValidationResult{Err: fmt.Errorf("redact: timestamp is required")}
	}
	if serializedSize > maxPayloadSize {
		return ValidationResult{Err: fmt.Errorf("redact: payload size %d exceeds maxPayloadSize %d", serializedSize, maxPayloadSize)}
	}

	canonicalizeVersion(report)

	var warnings []Warning
	warnings = append(warnings, detectWarnings(report.Message, "message")...)
	warnings = append(warnings, detectWarnings(report.StackTrace, "stackTrace")...)
	return ValidationResult{Warnings: warnings}
}

func detectWarnings(s, field string) []Warning {
	if s == "" {
		return nil
	}
	var warnings []Warning
	for _, p := range Patterns {
		if p.Matcher.MatchString(s) {
			warnings = append(warnings, Warning{Kind: p.Kind, Field: field})
		}
	}
	return warnings
}

// canonicalizeVersion normalizes report.Version to semver's canonical
// "vMAJOR.MINOR.PATCH" form when it parses as one; otherwise it is left
// as-is (it's a free-form attribute per spec.md §3).
func canonicalizeVersion(report *types.ErrorReport) {
	if report.Version == "" {
		return
	}
	v := report.Version
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	if semver.IsValid(v) {
		report.Version = semver.Canonical(v)
	}
}
