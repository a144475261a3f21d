package service

import (
	"context"

	"github.com/timmy/trendplate/internal/domain"
)

// FallbackFunc is an alternative operation run by the fallback strategy.
type FallbackFunc func(ctx context.Context) error

// Attempt carries the recovery state shared by every phase.
type Attempt struct {
	RetryCount int
	Checkpoint *domain.Checkpoint
	Fallback   FallbackFunc
}

// RecoveryContext describes where an error happened. It is implemented only by
// ExtractionContext, TransformationContext, LoadingContext and ValidationContext,
// so each executor sees exactly the fields its phase carries. The engine
// substitutes an unscoped context for nil.
type RecoveryContext interface {
	Phase() domain.Phase
	itemID() string
	attempt() Attempt
	withRetryCount(n int) RecoveryContext
}

// ExtractionContext is the recovery context of a source query.
type ExtractionContext struct {
	Query string
	Attempt
}

// Phase implements RecoveryContext.
func (c ExtractionContext) Phase() domain.Phase { return domain.PhaseExtraction }

func (c ExtractionContext) itemID() string   { return "" }
func (c ExtractionContext) attempt() Attempt { return c.Attempt }

func (c ExtractionContext) withRetryCount(n int) RecoveryContext {
	c.RetryCount = n
	return c
}

// TransformationContext is the recovery context of analyzing one item.
type TransformationContext struct {
	ItemID string
	Attempt
}

// Phase implements RecoveryContext.
func (c TransformationContext) Phase() domain.Phase { return domain.PhaseTransformation }

func (c TransformationContext) itemID() string   { return c.ItemID }
func (c TransformationContext) attempt() Attempt { return c.Attempt }

func (c TransformationContext) withRetryCount(n int) RecoveryContext {
	c.RetryCount = n
	return c
}

// LoadingContext is the recovery context of a persistence write or read.
type LoadingContext struct {
	ItemID string
	Attempt
}

// Phase implements RecoveryContext.
func (c LoadingContext) Phase() domain.Phase { return domain.PhaseLoading }

func (c LoadingContext) itemID() string   { return c.ItemID }
func (c LoadingContext) attempt() Attempt { return c.Attempt }

func (c LoadingContext) withRetryCount(n int) RecoveryContext {
	c.RetryCount = n
	return c
}

// ValidationContext is the recovery context of an input check.
type ValidationContext struct {
	ItemID string
	Attempt
}

// Phase implements RecoveryContext.
func (c ValidationContext) Phase() domain.Phase { return domain.PhaseValidation }

func (c ValidationContext) itemID() string   { return c.ItemID }
func (c ValidationContext) attempt() Attempt { return c.Attempt }

func (c ValidationContext) withRetryCount(n int) RecoveryContext {
	c.RetryCount = n
	return c
}

// unscopedContext stands in for a missing recovery context. Errors handled
// under it are typed UNKNOWN_ERROR.
type unscopedContext struct{}

func (unscopedContext) Phase() domain.Phase                  { return domain.PhaseUnknown }
func (unscopedContext) itemID() string                       { return "" }
func (unscopedContext) attempt() Attempt                     { return Attempt{} }
func (c unscopedContext) withRetryCount(int) RecoveryContext { return c }
