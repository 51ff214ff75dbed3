package domain

import "errors"

var (
	// ErrAlreadyRunning is returned when a fetch is started while another is in flight.
	ErrAlreadyRunning = errors.New("fetch already running")
	// ErrValidation is returned for malformed caller input.
	ErrValidation = errors.New("invalid input")
	// ErrNotFound is returned for operations against an unknown run.
	ErrNotFound = errors.New("not found")
	// ErrRunActive is returned when an operation is refused because the run is still ingesting.
	ErrRunActive = errors.New("run is still active")
	// ErrStoreCreation is returned when a run's backing store cannot be created.
	ErrStoreCreation = errors.New("store creation failed")
	// ErrIngestion marks a failure captured while streaming objects into a store.
	ErrIngestion = errors.New("ingestion failed")
	// ErrManifestFetch is returned when a manifest document cannot be retrieved.
	ErrManifestFetch = errors.New("manifest fetch failed")
	// ErrManifestParse is returned when a manifest document cannot be decoded.
	ErrManifestParse = errors.New("manifest parse failed")
)
