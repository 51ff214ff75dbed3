package domain

import (
	"math"
	"time"
)

const (
	// DefaultPageSize applies when a caller does not ask for one.
	DefaultPageSize = 200
	// MaxPageSize bounds a single page.
	MaxPageSize = 1000
	// MaxPage keeps the row offset of any page inside int64.
	MaxPage = math.MaxInt64 / MaxPageSize
)

// SortOrder selects the ordering of query results.
type SortOrder string

const (
	SortNameAsc     SortOrder = "name_asc"
	SortNameDesc    SortOrder = "name_desc"
	SortCreatedAsc  SortOrder = "time_created_asc"
	SortCreatedDesc SortOrder = "time_created_desc"
)

// ParseSort maps a raw value to a SortOrder, defaulting to name ascending.
func ParseSort(raw string) SortOrder {
	switch SortOrder(raw) {
	case SortNameDesc, SortCreatedAsc, SortCreatedDesc:
		return SortOrder(raw)
	default:
		return SortNameAsc
	}
}

// Presence is a tri-state filter on an optional attribute.
type Presence int

const (
	PresenceAny Presence = iota
	PresencePresent
	PresenceAbsent
)

// ManifestMode constrains objects by their manifest-entry assignment.
type ManifestMode int

const (
	ManifestAny ManifestMode = iota
	ManifestLinked
	ManifestUnlinked
)

// ParseManifestMode maps "all", "linked" and "unlinked"; anything else is ManifestAny.
func ParseManifestMode(raw string) ManifestMode {
	switch raw {
	case "linked":
		return ManifestLinked
	case "unlinked":
		return ManifestUnlinked
	default:
		return ManifestAny
	}
}

// Filter is the validated predicate set of a catalog query.
// Patterns are OR-ed together; the other fields are AND-ed with them.
type Filter struct {
	Patterns      []string
	CreatedBefore *time.Time
	CustomTime    Presence
	Manifest      ManifestMode
}

// Page is one page of query results.
type Page struct {
	Items    []Object `json:"items"`
	Total    int64    `json:"total"`
	Page     int      `json:"page"`
	PageSize int      `json:"page_size"`
}

// ClampPage normalises page number and size to the accepted ranges.
func ClampPage(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	if page > MaxPage {
		page = MaxPage
	}
	if size <= 0 {
		size = DefaultPageSize
	}
	if size > MaxPageSize {
		size = MaxPageSize
	}
	return page, size
}
