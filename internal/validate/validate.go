// Package validate rejects malformed caller input before any side effect.
package validate

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"regexp/syntax"
	"strings"
	"time"

	"BucketCatalog/internal/domain"
)

// Error codes surfaced to callers.
const (
	CodeInvalidRegex   = "invalid_regex"
	CodeInvalidDate    = "invalid_date"
	CodeInvalidBoolean = "invalid_boolean"
	CodeInvalidRunID   = "invalid_db_name"
	CodeInvalidURL     = "invalid_url"
	CodeMissingURL     = "missing_url"
)

// Error is a validation failure with a stable code.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string { return e.Message }

// Unwrap lets callers match any validation failure with errors.Is(err, domain.ErrValidation).
func (e *Error) Unwrap() error { return domain.ErrValidation }

func fail(code, format string, args ...any) error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// regexMistakes are checked in order; the first match wins.
var regexMistakes = []struct {
	expr    *regexp.Regexp
	message string
}{
	{regexp.MustCompile(`^[*+?{]`), "Pattern cannot start with a quantifier (*+?{})"},
	{regexp.MustCompile(`[*+?][*+?]`), "Cannot have consecutive quantifiers"},
	{regexp.MustCompile(`\*\*+`), "Use .* instead of ** for wildcard matching"},
	{regexp.MustCompile(`^\*`), "Use .* at the start instead of just *"},
}

// Regex checks a user-supplied pattern. An empty pattern is valid and matches everything.
func Regex(pattern string) error {
	if pattern == "" {
		return nil
	}
	for _, m := range regexMistakes {
		if m.expr.MatchString(pattern) {
			return fail(CodeInvalidRegex, "%s", m.message)
		}
	}
	if _, err := regexp.Compile(pattern); err != nil {
		return fail(CodeInvalidRegex, "%s", describeRegexError(err))
	}
	return nil
}

func describeRegexError(err error) string {
	var serr *syntax.Error
	if !errors.As(err, &serr) {
		return "Invalid regex: " + err.Error()
	}
	switch serr.Code {
	case syntax.ErrMissingRepeatArgument, syntax.ErrInvalidRepeatOp:
		return "Invalid quantifier usage. Quantifiers (*+?{}) must follow a character or group."
	case syntax.ErrInvalidCharRange:
		return "Invalid character range in brackets. Use [a-z] format."
	case syntax.ErrMissingParen, syntax.ErrUnexpectedParen:
		return "Unmatched parentheses in pattern."
	case syntax.ErrInvalidEscape:
		return `Invalid escape sequence. Use \\ for literal backslash.`
	case syntax.ErrMissingBracket:
		return "Unmatched brackets in pattern."
	default:
		return "Invalid regex: " + serr.Error()
	}
}

// Patterns validates each non-empty pattern; label names the offending group in messages.
func Patterns(label string, patterns []string) error {
	for i, p := range patterns {
		if p == "" {
			continue
		}
		if err := Regex(p); err != nil {
			return fail(CodeInvalidRegex, "%s %d: %s", label, i+1, err.Error())
		}
	}
	return nil
}

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02",
}

// Date parses an ISO-8601 date or timestamp; values without a zone are taken as UTC.
func Date(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fail(CodeInvalidDate, "Date must be in ISO format (YYYY-MM-DD or YYYY-MM-DDTHH:MM:SS)")
}

// Presence parses a tri-state flag: empty is unconstrained, otherwise true/false/yes/no.
func Presence(raw string) (domain.Presence, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "":
		return domain.PresenceAny, nil
	case "true", "yes":
		return domain.PresencePresent, nil
	case "false", "no":
		return domain.PresenceAbsent, nil
	default:
		return domain.PresenceAny, fail(CodeInvalidBoolean, "has_custom_time must be true/false or yes/no")
	}
}

// RunID rejects empty identifiers and anything that could escape the store directory.
func RunID(id string) error {
	if id == "" || id == "." || strings.Contains(id, "..") || strings.ContainsAny(id, `/\`) || strings.ContainsRune(id, 0) {
		return fail(CodeInvalidRunID, "Invalid database name")
	}
	return nil
}

// ManifestURL requires an absolute http(s) URL.
func ManifestURL(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return fail(CodeMissingURL, "Manifest URL is required")
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fail(CodeInvalidURL, "URL must start with http:// or https://")
	}
	return nil
}

// Filter validates raw query inputs and assembles a domain.Filter.
func Filter(patterns []string, createdBefore, hasCustomTime, manifestMode string) (domain.Filter, error) {
	var f domain.Filter
	if err := Patterns("Filter", patterns); err != nil {
		return f, err
	}
	for _, p := range patterns {
		if p != "" {
			f.Patterns = append(f.Patterns, p)
		}
	}
	if createdBefore != "" {
		t, err := Date(createdBefore)
		if err != nil {
			return f, err
		}
		f.CreatedBefore = &t
	}
	presence, err := Presence(hasCustomTime)
	if err != nil {
		return f, err
	}
	f.CustomTime = presence
	f.Manifest = domain.ParseManifestMode(manifestMode)
	return f, nil
}

// FilterQuery validates the query-string form of a filter: a single legacy
// regex, additional regex filters and manifest-derived patterns are checked
// separately so messages name their source, then combined with OR.
func FilterQuery(single string, filters, manifestPatterns []string, createdBefore, hasCustomTime, manifestMode string) (domain.Filter, error) {
	if err := Regex(single); err != nil {
		return domain.Filter{}, fail(CodeInvalidRegex, "Single regex: %s", err.Error())
	}
	if err := Patterns("Filter", filters); err != nil {
		return domain.Filter{}, err
	}
	if err := Patterns("Manifest pattern", manifestPatterns); err != nil {
		return domain.Filter{}, err
	}

	all := make([]string, 0, 1+len(filters)+len(manifestPatterns))
	all = append(all, single)
	all = append(all, filters...)
	all = append(all, manifestPatterns...)
	return Filter(all, createdBefore, hasCustomTime, manifestMode)
}
