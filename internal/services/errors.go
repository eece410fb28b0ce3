package services

import (
	"errors"
	"fmt"
)

// Error taxonomy. Every service error wraps exactly one of these roots so
// callers can decide how to respond with errors.Is.
var (
	// ErrValidation marks bad input: missing or inactive entities, bad names.
	// Nothing has been mutated and the request can be retried once corrected.
	ErrValidation = errors.New("validation failed")

	// ErrStateConflict marks requests the current state cannot accept.
	// Retrying unchanged will fail again.
	ErrStateConflict = errors.New("state conflict")

	// ErrIntegration marks failures talking to the external tagging platform.
	ErrIntegration = errors.New("tag integration failed")
)

// Validation errors
var (
	ErrPortfolioNotFound      = fmt.Errorf("%w: portfolio not found", ErrValidation)
	ErrPortfolioInactive      = fmt.Errorf("%w: portfolio is not active", ErrValidation)
	ErrBlockNotFound          = fmt.Errorf("%w: block not found", ErrValidation)
	ErrPropertyNotFound       = fmt.Errorf("%w: property not found", ErrValidation)
	ErrAssignmentNotFound     = fmt.Errorf("%w: assignment not found", ErrValidation)
	ErrInvalidBlockName       = fmt.Errorf("%w: invalid block name", ErrValidation)
	ErrDuplicateBlockName     = fmt.Errorf("%w: block name already exists in this portfolio", ErrValidation)
	ErrInvalidBlockKind       = fmt.Errorf("%w: invalid block kind", ErrValidation)
	ErrInvalidCapacity        = fmt.Errorf("%w: capacity must not be negative", ErrValidation)
	ErrInvalidPolicy          = fmt.Errorf("%w: unknown reassignment policy", ErrValidation)
	ErrBlockPortfolioMismatch = fmt.Errorf("%w: block does not belong to portfolio", ErrValidation)
	ErrNoProperties           = fmt.Errorf("%w: no properties given", ErrValidation)
	ErrInvalidOrder           = fmt.Errorf("%w: invalid block order", ErrValidation)
)

// State conflicts
var (
	ErrBlockInactive    = fmt.Errorf("%w: block is not active", ErrStateConflict)
	ErrCapacityExceeded = fmt.Errorf("%w: block capacity exceeded", ErrStateConflict)
	ErrSameBlock        = fmt.Errorf("%w: source and target block are the same", ErrStateConflict)
)

// ErrIntegrationDisabled is recorded when a sync path runs without a tag resolver.
var ErrIntegrationDisabled = fmt.Errorf("%w: integration disabled", ErrIntegration)

func integrationError(err error) error {
	if errors.Is(err, ErrIntegration) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrIntegration, err)
}
