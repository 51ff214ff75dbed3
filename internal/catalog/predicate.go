package catalog

import (
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"

	"BucketCatalog/internal/domain"
)

// maxOrPatterns is the number of regex patterns above which they are folded
// into a single alternation.
const maxOrPatterns = 20

// Predicate is one typed query constraint. Every variant renders to a
// parameterised squirrel expression; no caller input reaches the SQL text.
type Predicate interface {
	apply(q sq.SelectBuilder) sq.SelectBuilder
}

// RegexPredicate matches names against any of its patterns.
type RegexPredicate struct {
	Patterns []string
}

func (p RegexPredicate) apply(q sq.SelectBuilder) sq.SelectBuilder {
	patterns := p.Patterns
	if len(patterns) > maxOrPatterns {
		patterns = []string{alternation(patterns)}
	}
	or := make(sq.Or, 0, len(patterns))
	for _, pattern := range patterns {
		or = append(or, sq.Expr("objects.name REGEXP ?", pattern))
	}
	return q.Where(or)
}

func alternation(patterns []string) string {
	var b strings.Builder
	for i, p := range patterns {
		if i > 0 {
			b.WriteByte('|')
		}
		b.WriteString("(?:")
		b.WriteString(p)
		b.WriteString(")")
	}
	return b.String()
}

// CreatedBeforePredicate keeps objects created strictly before Before.
type CreatedBeforePredicate struct {
	Before time.Time
}

func (p CreatedBeforePredicate) apply(q sq.SelectBuilder) sq.SelectBuilder {
	return q.Where(sq.Lt{"objects.time_created": formatTime(p.Before)})
}

// CustomTimePredicate constrains the presence of a custom timestamp.
type CustomTimePredicate struct {
	Present bool
}

func (p CustomTimePredicate) apply(q sq.SelectBuilder) sq.SelectBuilder {
	if p.Present {
		return q.Where(sq.NotEq{"objects.custom_time": nil})
	}
	return q.Where(sq.Eq{"objects.custom_time": nil})
}

// ManifestPredicate constrains the manifest-entry assignment.
type ManifestPredicate struct {
	Linked bool
}

func (p ManifestPredicate) apply(q sq.SelectBuilder) sq.SelectBuilder {
	if p.Linked {
		return q.Join("manifest_entries me ON me.id = objects.manifest_entry_id")
	}
	return q.Where(sq.Eq{"objects.manifest_entry_id": nil})
}

// Predicates translates a validated filter into its predicate set.
func Predicates(f domain.Filter) []Predicate {
	var preds []Predicate
	if len(f.Patterns) > 0 {
		preds = append(preds, RegexPredicate{Patterns: f.Patterns})
	}
	if f.CreatedBefore != nil {
		preds = append(preds, CreatedBeforePredicate{Before: *f.CreatedBefore})
	}
	switch f.CustomTime {
	case domain.PresencePresent:
		preds = append(preds, CustomTimePredicate{Present: true})
	case domain.PresenceAbsent:
		preds = append(preds, CustomTimePredicate{Present: false})
	}
	switch f.Manifest {
	case domain.ManifestLinked:
		preds = append(preds, ManifestPredicate{Linked: true})
	case domain.ManifestUnlinked:
		preds = append(preds, ManifestPredicate{Linked: false})
	}
	return preds
}

func applyAll(q sq.SelectBuilder, preds []Predicate) sq.SelectBuilder {
	for _, p := range preds {
		q = p.apply(q)
	}
	return q
}

// orderBy is the fixed mapping from sort order to ORDER BY terms.
func orderBy(s domain.SortOrder) []string {
	switch s {
	case domain.SortNameDesc:
		return []string{"objects.name DESC"}
	case domain.SortCreatedAsc:
		return []string{"objects.time_created ASC", "objects.name ASC"}
	case domain.SortCreatedDesc:
		return []string{"objects.time_created DESC", "objects.name DESC"}
	default:
		return []string{"objects.name ASC"}
	}
}
