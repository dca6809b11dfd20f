// Package extract obtains product data from the marketplace, trying a
// static HTTP fetch first and falling back to a headless browser when the
// page turns out to be script-rendered.
package extract

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/clicou/dealposter/internal/product"
)

// Reason classifies why an extraction failed.
type Reason string

// Extraction failure reasons.
const (
	ReasonNotFound     Reason = "not_found"
	ReasonTimeout      Reason = "timeout"
	ReasonParseFailure Reason = "parse_failure"
	ReasonBlocked      Reason = "blocked"
)

// Error is the failure type returned by extraction strategies.
type Error struct {
	Reason Reason
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("extraction failed (%s): %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("extraction failed (%s)", e.Reason)
}

// Unwrap exposes the underlying cause for errors.Is/As chains.
func (e *Error) Unwrap() error { return e.Err }

// NewError builds an extraction error with a reason and optional cause.
func NewError(reason Reason, err error) *Error {
	return &Error{Reason: reason, Err: err}
}

// ReasonOf extracts the failure reason from an error chain, defaulting to
// parse_failure for unclassified errors.
func ReasonOf(err error) Reason {
	var ee *Error
	if errors.As(err, &ee) {
		return ee.Reason
	}
	return ReasonParseFailure
}

// Strategy fetches a page for a product ref and extracts its fields.
// A strategy returns (Data, true, nil) on success and (_, false, nil) for a
// soft failure, meaning the next strategy should be tried. A hard error
// stops the chain.
type Strategy interface {
	Name() string
	Extract(ctx context.Context, ref product.Ref) (product.Data, bool, error)
}

// Selector runs strategies in order until one yields complete data.
type Selector struct {
	strategies []Strategy
	logger     *zap.Logger
}

// NewSelector builds a selector over the given strategies.
func NewSelector(logger *zap.Logger, strategies ...Strategy) *Selector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Selector{strategies: strategies, logger: logger}
}

// Extract returns product data for ref, or an *Error when every strategy
// came up empty. The first strategy to produce a title and a current price
// wins; soft failures fall through without raising.
func (s *Selector) Extract(ctx context.Context, ref product.Ref) (product.Data, error) {
	if len(s.strategies) == 0 {
		return product.Data{}, NewError(ReasonNotFound, errors.New("no extraction strategies configured"))
	}
	var lastErr error
	for _, strat := range s.strategies {
		if err := ctx.Err(); err != nil {
			return product.Data{}, fmt.Errorf("extraction canceled: %w", err)
		}
		data, ok, err := strat.Extract(ctx, ref)
		if err != nil {
			var ee *Error
			if errors.As(err, &ee) && ee.Reason == ReasonBlocked {
				// A block is not going to get better with a different
				// strategy against the same host.
				return product.Data{}, err
			}
			s.logger.Warn("extraction strategy failed",
				zap.String("strategy", strat.Name()),
				zap.String("identifier", ref.Identifier),
				zap.Error(err))
			lastErr = err
			continue
		}
		if !ok {
			s.logger.Debug("extraction strategy yielded incomplete data",
				zap.String("strategy", strat.Name()),
				zap.String("identifier", ref.Identifier))
			continue
		}
		s.logger.Info("product extracted",
			zap.String("strategy", strat.Name()),
			zap.String("identifier", ref.Identifier),
			zap.String("title", data.Title))
		return data, nil
	}
	if lastErr != nil {
		var ee *Error
		if errors.As(lastErr, &ee) {
			return product.Data{}, lastErr
		}
		return product.Data{}, NewError(ReasonParseFailure, lastErr)
	}
	return product.Data{}, NewError(ReasonNotFound,
		fmt.Errorf("no strategy produced a title and price for %s", ref.Identifier))
}
