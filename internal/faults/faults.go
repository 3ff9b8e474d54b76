// Package faults defines the pipeline error taxonomy. Stage retry decisions
// and API status reporting both key off the Kind of an error, so every error
// crossing a stage boundary is either one of these sentinels or wraps one.
package faults

import (
	"context"
	"errors"
	"fmt"
)

type Kind string

const (
	// KindTransient errors (timeouts, rate limits) are retried with backoff.
	KindTransient Kind = "transient"
	// KindPermanent errors fail the run immediately, no retry.
	KindPermanent Kind = "permanent"
	// KindConflict is rejected synchronously and never starts a run.
	KindConflict Kind = "conflict"
	// KindIntegrity signals a bug (chunk/embedding mismatch); the run fails
	// and the error is logged for investigation.
	KindIntegrity Kind = "integrity"
)

var (
	ErrUnsupportedFormat    = errors.New("unsupported document format")
	ErrExtractionFailed     = errors.New("extraction failed")
	ErrOCRTimeout           = errors.New("ocr timeout")
	ErrOCRFailed            = errors.New("ocr failed")
	ErrEmbeddingUnavailable = errors.New("embedding backend unavailable")
	ErrRateLimited          = errors.New("rate limited")
	ErrTimeout              = errors.New("timeout")
	ErrUnverifiedCitation   = errors.New("claim cites chunk outside provided context")
	ErrMalformedGeneration  = errors.New("malformed generation output")
	ErrAnalysisInProgress   = errors.New("analysis already in progress for document")
	ErrNotReady             = errors.New("run is not terminal yet")
	ErrNotFound             = errors.New("not found")
	ErrCancelled            = errors.New("cancelled")
	ErrChunkMismatch        = errors.New("chunk/embedding mismatch")
)

// KindOf classifies err. Unknown errors are treated as permanent: retrying
// an unclassified failure hides bugs more often than it heals them.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrOCRTimeout),
		errors.Is(err, ErrEmbeddingUnavailable),
		errors.Is(err, ErrRateLimited),
		errors.Is(err, ErrTimeout),
		errors.Is(err, context.DeadlineExceeded):
		return KindTransient
	case errors.Is(err, ErrAnalysisInProgress):
		return KindConflict
	case errors.Is(err, ErrChunkMismatch):
		return KindIntegrity
	default:
		return KindPermanent
	}
}

func IsTransient(err error) bool {
	return KindOf(err) == KindTransient
}

// Stagef wraps err with stage context while preserving the sentinel chain.
func Stagef(stage string, err error) error {
	return fmt.Errorf("stage %s: %w", stage, err)
}
