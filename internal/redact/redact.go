// Package redact implements the sensitive-pattern pass and the recursive,
// cycle-safe object traversal of spec.md §4.4, plus the report validation
// of spec.md §4.1 stage 2. Object traversal depth/visited-set cycle
// guarding follows the design note in spec.md §9.
package redact

import (
	"reflect"
	"strings"

	"errship.dev/sdk/internal/types"
)

const (
	// maxDepth bounds recursive traversal of context/user/breadcrumb
	// data; spec.md §9 suggests 10.
	maxDepth = 10

	redactedPlaceholder = "[REDACTED]"
	circularPlaceholder = "[Circular]"
	maxDepthPlaceholder = "[Max Depth]"
)

// Redactor runs the sensitive-pattern pass over an ErrorReport.
type Redactor struct{}

// New creates a Redactor. It has no state — the pattern table in
// patterns.go is immutable and shared across every report.
func New() *Redactor {
	return &Redactor{}
}

// Warning is a detected-but-not-necessarily-redacted sensitive pattern
// match, surfaced to the Health Monitor per spec.md §4.4.
type Warning struct {
	Kind  Kind
	Field string
}

// Redact mutates report in place: message, stack trace, and a recursive
// pass over context/user/breadcrumb data. It returns one warning for each
// sensitive pattern that matched a string value as it was redacted; values
// replaced because of a sensitive key name produce no warning.
func (r *Redactor) Redact(report *types.ErrorReport) []Warning {
	var warnings []Warning

	redacted, w := redactString(report.Message)
	report.Message = redacted
	warnings = append(warnings, tag(w, "message")...)

	redacted, w = redactString(report.StackTrace)
	report.StackTrace = redacted
	warnings = append(warnings, tag(w, "stackTrace")...)

	if report.Context != nil {
		v := newVisitor()
		var walked any
		walked, w = v.walk(report.Context, 0)
		if m, ok := walked.(map[string]any); ok {
			report.Context = m
		}
		warnings = append(warnings, tag(w, "context")...)
	}
	if report.User != nil {
		v := newVisitor()
		var walked any
		walked, w = v.walk(report.User, 0)
		if m, ok := walked.(map[string]any); ok {
			report.User = m
		}
		warnings = append(warnings, tag(w, "user")...)
	}
	for i := range report.Breadcrumbs {
		if report.Breadcrumbs[i].Data == nil {
			continue
		}
		v := newVisitor()
		var walked any
		walked, w = v.walk(report.Breadcrumbs[i].Data, 0)
		if m, ok := walked.(map[string]any); ok {
			report.Breadcrumbs[i].Data = m
		}
		warnings = append(warnings, tag(w, "breadcrumbs")...)
	}

	return warnings
}

func tag(warnings []Warning, field string) []Warning {
	for i := range warnings {
		if warnings[i].Field == "" {
			warnings[i].Field = field
		}
	}
	return warnings
}

// redactString applies every pattern in order, replacing each match with
// the placeholder, and returns the warnings for whatever matched.
func redactString(s string) (string, []Warning) {
	if s == "" {
		return s, nil
	}
	var warnings []Warning
	out := s
	for _, p := range Patterns {
		if p.Matcher.MatchString(out) {
			warnings = append(warnings, Warning{Kind: p.Kind})
			out = p.Matcher.ReplaceAllString(out, redactedPlaceholder)
		}
	}
	return out, warnings
}

// visitor carries the cycle/depth guard state for one traversal.
type visitor struct {
	visited map[uintptr]bool
}

func newVisitor() *visitor {
	return &visitor{visited: make(map[uintptr]bool)}
}

// walk recursively redacts value: arrays/slices element-wise, maps
// key-wise (whole-value replacement on a sensitive key name), strings via
// the pattern pass. Cycles and excessive depth collapse to a sentinel
// rather than panicking or looping forever.
func (v *visitor) walk(value any, depth int) (any, []Warning) {
	if depth > maxDepth {
		return maxDepthPlaceholder, nil
	}

	switch val := value.(type) {
	case string:
		redacted, w := redactString(val)
		return redacted, w
	case map[string]any:
		ptr := reflect.ValueOf(val).Pointer()
		if v.visited[ptr] {
			return circularPlaceholder, nil
		}
		v.visited[ptr] = true
		defer delete(v.visited, ptr)

		out := make(map[string]any, len(val))
		var warnings []Warning
		for key, child := range val {
			if isSensitiveKey(key) {
				out[key] = redactedPlaceholder
				continue
			}
			walked, w := v.walk(child, depth+1)
			out[key] = walked
			warnings = append(warnings, w...)
		}
		return out, warnings
	case []any:
		rv := reflect.ValueOf(val)
		if rv.Len() > 0 {
			ptr := rv.Pointer()
			if v.visited[ptr] {
				return circularPlaceholder, nil
			}
			v.visited[ptr] = true
			defer delete(v.visited, ptr)
		}
		out := make([]any, len(val))
		var warnings []Warning
		for i, child := range val {
			walked, w := v.walk(child, depth+1)
			out[i] = walked
			warnings = append(warnings, w...)
		}
		return out, warnings
	default:
		return value, nil
	}
}

// isSensitiveKey reports whether key contains (case-insensitively) any of
// the sensitive substrings of spec.md §4.1 stage 3.
func isSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, s := range sensitiveKeySubstrings {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}
