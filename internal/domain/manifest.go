package domain

import "time"

// ManifestStatus tracks whether a manifest is being (re)applied to a store.
type ManifestStatus string

const (
	ManifestIdle       ManifestStatus = "idle"
	ManifestProcessing ManifestStatus = "processing"
)

// Manifest is the singleton record of the manifest loaded into a store.
type Manifest struct {
	SourceURL    string         `json:"source_url"`
	ContentHash  string         `json:"content_hash"`
	LoadedAt     time.Time      `json:"loaded_at"`
	PatternCount int            `json:"pattern_count"`
	Status       ManifestStatus `json:"status"`
}

// ManifestEntry is one compiled destination pattern.
type ManifestEntry struct {
	ID            int64  `json:"id" db:"id"`
	GroupKey      string `json:"group_key" db:"group_key"`
	PrettyName    string `json:"pretty_name" db:"pretty_name"`
	Destination   string `json:"destination" db:"destination"`
	Pattern       string `json:"pattern" db:"pattern"`
	LinkedObjects int64  `json:"linked_objects" db:"linked_objects"`
}

// LinkStats summarises a link pass.
type LinkStats struct {
	TotalObjects  int64 `json:"total_objects"`
	LinkedObjects int64 `json:"linked_objects"`
}

// ManifestLoad is the outcome of loading a manifest into a store.
type ManifestLoad struct {
	Cached        bool            `json:"cached"`
	Manifest      Manifest        `json:"manifest"`
	Entries       []ManifestEntry `json:"entries"`
	ArtifactCount int             `json:"artifact_count"`
	Link          LinkStats       `json:"link"`
}

// ManifestPreview is a compiled manifest that has not been stored.
type ManifestPreview struct {
	SourceURL     string          `json:"source_url"`
	ContentHash   string          `json:"content_hash"`
	ArtifactCount int             `json:"artifact_count"`
	Entries       []ManifestEntry `json:"entries"`
}
