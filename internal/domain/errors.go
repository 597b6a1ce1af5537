package domain

import "errors"

// Error taxonomy for the pipeline. Callers match with errors.Is; adapters wrap
// these with context via fmt.Errorf("...: %w", ...).
var (
	// ErrExtractionMethod marks a single method failing on a single document.
	// Absorbed by the extractor: logged, remaining methods continue.
	ErrExtractionMethod = errors.New("extraction method failed")

	// ErrDocumentProcessing marks a document that could not be aggregated at
	// all (empty or unparseable text). The document is skipped and left
	// unprocessed so a later batch retries it.
	ErrDocumentProcessing = errors.New("document processing failed")

	// ErrWriteConflict marks a concurrent aggregate update race detected by
	// the store. Retried with backoff before surfacing as a batch error.
	ErrWriteConflict = errors.New("aggregate write conflict")

	// ErrConfiguration marks missing or invalid team configuration. Fatal for
	// that team's run only; other teams proceed.
	ErrConfiguration = errors.New("invalid configuration")
)
