package contracts

import "errors"

// Failure taxonomy. Per-instrument errors (history, sources, cache) are
// skip-and-continue; empty training or feature sets abort the run.
var (
	// ErrInsufficientHistory: fewer bars than the configured minimum.
	ErrInsufficientHistory = errors.New("insufficient history")

	// ErrSourceUnavailable: every configured price source failed or
	// returned an empty/malformed payload.
	ErrSourceUnavailable = errors.New("no price source available")

	// ErrCacheCorrupt: the cached series does not parse to the required
	// schema. Treated as a cache miss by the store.
	ErrCacheCorrupt = errors.New("cache corrupt")

	// ErrEmptyTrainingSet: no rows at or before the training cutoff.
	ErrEmptyTrainingSet = errors.New("empty training set")

	// ErrEmptyFeatureSet: no feature vectors to rank, or none at the
	// latest date.
	ErrEmptyFeatureSet = errors.New("empty feature set")

	// ErrJoinMiss: no price row exists at the date needed to realize a
	// return. The affected row is recorded with an undefined return.
	ErrJoinMiss = errors.New("no matching price at join date")
)
