// Static validation of mapping specifications. Checks over a fragment or a
// merged Spec return a list of issues (errors and warnings) that callers
// surface all at once, before any row is read.
package config

import (
	"fmt"
	"regexp"
	"strings"
)

// IssueSeverity represents the severity of a specification issue.
type IssueSeverity string

const (
	// SeverityError indicates a violation that blocks execution.
	SeverityError IssueSeverity = "error"
	// SeverityWarning indicates a finding surfaced to the user that does
	// not block execution.
	SeverityWarning IssueSeverity = "warning"
)

// Issue describes a single validation finding.
//
// Path is a dotted path into the spec (e.g. "columns[1].datestr").
type Issue struct {
	Severity IssueSeverity
	Path     string
	Message  string
}

// Error implements the error interface so an Issue can be treated as a
// single error where needed.
func (i Issue) Error() string {
	return fmt.Sprintf("%s at %s: %s", i.Severity, i.Path, i.Message)
}

// ValidationError aggregates every issue found in one fragment or in the
// merged specification.
type ValidationError struct {
	// Source is the fragment path the issues belong to, or "" for the
	// merged result.
	Source string
	Issues []Issue
}

func (e *ValidationError) Error() string {
	var b strings.Builder
	if e.Source != "" {
		fmt.Fprintf(&b, "invalid specification %s:", e.Source)
	} else {
		b.WriteString("invalid specification:")
	}
	for _, iss := range e.Issues {
		b.WriteString("\n  ")
		b.WriteString(iss.Error())
	}
	return b.String()
}

// hasError reports whether any issue is severity error.
func hasError(issues []Issue) bool {
	for _, iss := range issues {
		if iss.Severity == SeverityError {
			return true
		}
	}
	return false
}

var (
	// datestrRe accepts strptime-style date patterns: directives mixed
	// with common punctuation.
	datestrRe = regexp.MustCompile(`^(%[aAbBcdHIjmMpSUwWxXyYzZfGuvV]|[%\-\s:./,]+)+$`)

	// prefixIRIRe constrains declared prefix namespaces to http(s) IRIs,
	// with or without surrounding angle brackets.
	prefixIRIRe = regexp.MustCompile(`^<?http[s]?://.*>?$`)
)

// validateFragment checks a single decoded fragment before merging. Required
// fields are not enforced here: imports are allowed to omit them and the
// merged result is checked by validateMerged.
func validateFragment(s Spec) []Issue {
	var issues []Issue

	for name, iri := range s.Prefixes {
		if !prefixIRIRe.MatchString(iri) {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     fmt.Sprintf("prefixes.%s", name),
				Message:  fmt.Sprintf("namespace %q must be an http(s) IRI", iri),
			})
		}
	}

	if s.OnValueError != "" && s.OnValueError != OnValueErrorSkip && s.OnValueError != OnValueErrorFail {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "onValueError",
			Message:  fmt.Sprintf("must be %q or %q, got %q", OnValueErrorSkip, OnValueErrorFail, s.OnValueError),
		})
	}
	if s.MaxGraphSizeMb < 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "maxGraphSizeMb",
			Message:  "must not be negative",
		})
	}
	if s.SizeCheckFrequency < 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "sizeCheckFrequency",
			Message:  "must not be negative",
		})
	}
	if s.Workers < 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "workers",
			Message:  "must not be negative",
		})
	}

	for i, col := range s.Columns {
		path := func(field string) string { return fmt.Sprintf("columns[%d].%s", i, field) }

		if strings.TrimSpace(col.Column) == "" {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     path("column"),
				Message:  "column name must not be empty",
			})
		}
		if strings.TrimSpace(col.Predicate) == "" {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     path("predicate"),
				Message:  "predicate must not be empty",
			})
		}
		if col.Datestr != "" && !datestrRe.MatchString(col.Datestr) {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     path("datestr"),
				Message:  fmt.Sprintf("%q is not a date pattern (strptime directives expected)", col.Datestr),
			})
		}
		if col.Regex {
			if col.Separator == "" {
				issues = append(issues, Issue{
					Severity: SeverityError,
					Path:     path("separator"),
					Message:  "regex is set but separator is empty",
				})
			} else if _, err := regexp.Compile(col.Separator); err != nil {
				issues = append(issues, Issue{
					Severity: SeverityError,
					Path:     path("separator"),
					Message:  fmt.Sprintf("separator does not compile as a regular expression: %v", err),
				})
			}
		}
		if col.AsUUID && !col.AsIRI {
			issues = append(issues, Issue{
				Severity: SeverityWarning,
				Path:     path("as_uuid"),
				Message:  "as_uuid has no effect without as_iri",
			})
		}
		if col.AsUUID && col.Namespace == "" {
			issues = append(issues, Issue{
				Severity: SeverityWarning,
				Path:     path("as_uuid"),
				Message:  "as_uuid has no effect without a namespace",
			})
		}
	}

	return issues
}

// validateMerged checks cross-field invariants on the merged specification.
func validateMerged(s Spec) []Issue {
	var issues []Issue

	if strings.TrimSpace(s.Infile) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "infile",
			Message:  "infile is required (no fragment in the import chain sets it)",
		})
	}
	if len(s.Columns) > 0 && strings.TrimSpace(s.Identifier) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "identifier",
			Message:  "identifier is required when column rules are present",
		})
	}
	if s.Identifier == "" && s.Template == "" && len(s.Columns) == 0 {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "",
			Message:  "neither column rules nor a template are configured; the run will produce no statements",
		})
	}

	return issues
}
